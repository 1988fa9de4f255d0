package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/gwiz/internal/config"
	"github.com/mattjoyce/gwiz/internal/console"
	"github.com/mattjoyce/gwiz/internal/doctor"
	"github.com/mattjoyce/gwiz/internal/inspect"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/storage"
	"github.com/mattjoyce/gwiz/internal/transport"
	"github.com/mattjoyce/gwiz/internal/tui"
	"github.com/mattjoyce/gwiz/internal/vocab"
)

const version = "0.1.0"

const sessionEndTimeout = 2 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- MACHINE ---
	case "run":
		os.Exit(runTUI(args))
	case "console":
		os.Exit(runConsole(args))
	case "send":
		os.Exit(runSend(args))

	// --- NOUNS ---
	case "config":
		os.Exit(runConfigNoun(args))
	case "vocab":
		os.Exit(runVocabNoun(args))
	case "session":
		os.Exit(runSessionNoun(args))

	case "doctor":
		os.Exit(runConfigCheck(args))
	case "version":
		fmt.Printf("gwiz version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`gwiz - G-code dispatch engine and operator console

Usage:
  gwiz <command> [flags] [program.gcode ...]
  gwiz <noun> <action> [flags]

Machine Commands:
  run               Connect and open the operator display
  console           Connect and open a line console
  send              Stream programs headless, exit when drained

Config Commands:
  config check      Validate configuration and look for the device
  config show       Print the resolved configuration
  config convert    Convert a legacy machine file to YAML

Vocabulary Commands:
  vocab search      Find commands whose description matches every word
  vocab describe    Describe one command word

Session Commands:
  session list      Show recent sessions from the audit database
  session show <id> Show one session and its problems
  session replay <id>
                    Write the acknowledged commands as a program

General:
  version           Show version information
  help              Show this help message

Use 'gwiz <command> --help' for flags.
`)
}

// --- SHARED FLAGS ---

// machineFlags are accepted by every command that talks to a machine or
// reads its configuration.
type machineFlags struct {
	configPath string
	port       string
	address    string
	baud       int
	transport  string
}

func addMachineFlags(fs *flag.FlagSet) *machineFlags {
	mf := &machineFlags{}
	fs.StringVar(&mf.configPath, "config", "", "Path to machine configuration (YAML or legacy key=value file)")
	fs.StringVar(&mf.port, "port", "", "Serial device, overrides machine.port")
	fs.StringVar(&mf.address, "address", "", "host:port of a serial bridge, overrides machine.address")
	fs.IntVar(&mf.baud, "baud", 0, "Baud rate, overrides machine.baud_rate")
	fs.StringVar(&mf.transport, "transport", "", "serial, tcp or sim, overrides machine.transport")
	return mf
}

// load resolves the configuration and applies flag overrides.
func (mf *machineFlags) load() (*config.Config, error) {
	cfg, err := loadConfigForTool(mf.configPath)
	if err != nil {
		return nil, err
	}
	if mf.transport != "" {
		cfg.Machine.Transport = strings.ToLower(mf.transport)
	}
	if mf.port != "" {
		cfg.Machine.Port = mf.port
		if mf.transport == "" {
			cfg.Machine.Transport = config.TransportSerial
		}
	}
	if mf.address != "" {
		cfg.Machine.Address = mf.address
		if mf.transport == "" {
			cfg.Machine.Transport = config.TransportTCP
		}
	}
	if mf.baud > 0 {
		cfg.Machine.BaudRate = mf.baud
	}
	return cfg, nil
}

// loadConfigForTool loads YAML configs and falls back to the legacy
// key=value machine file for anything that is not .yaml or .yml.
func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return config.Load(configPath)
	}
	cfg, warnings, err := config.LoadLegacy(configPath)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", configPath, w)
	}
	return cfg, nil
}

// setupFileLogging sends the diagnostic log to log.path. Used when the
// terminal belongs to the operator.
func setupFileLogging(cfg *config.Config) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Log.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Log.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.Setup(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: f})
	return f, nil
}

func newInterpreter(e *engine) *console.Interpreter {
	return console.New(e.dc,
		console.WithMacros(e.cfg.Macros),
		console.WithDisplayLen(e.cfg.Display.PendingLen),
	)
}

func endReason(err error) string {
	if err == nil {
		return console.ErrQuit.Error()
	}
	return err.Error()
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// --- MACHINE COMMANDS ---

func runTUI(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	mf := addMachineFlags(fs)
	running := fs.Bool("run", false, "Start in run mode even if machine.start_paused is set")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := mf.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logFile, err := setupFileLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logFile.Close()
	logger := log.WithComponent("main")
	logger.Info("gwiz starting", "version", version, "config", cfg.SourcePath, "mode", "tui")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	pipe, err := tui.NewRedrawPipe()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create redraw pipe: %v\n", err)
		return 1
	}
	defer pipe.Close()

	eng, err := openEngine(ctx, cfg, engineOptions{
		programs: fs.Args(),
		notifier: pipe.Notifier(),
		running:  *running,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		return 1
	}

	model := tui.New(tui.Options{
		Context:     eng.dc,
		Interpreter: newInterpreter(eng),
		Vocab:       vocab.New(cfg.Commands),
		Redraw:      pipe.Reader(),
		Heaters:     cfg.Machine.Heaters,
		MaxTemp:     float64(cfg.Machine.MaxTemp),
		MaxPower:    cfg.Machine.MaxPower,
		AckLen:      cfg.Display.AckLen,
		PendingLen:  cfg.Display.PendingLen,
	})

	errCh := eng.start(ctx)
	go func() {
		// The display keeps running after a lost connection; the dispatch
		// context already raised a notice.
		for err := range errCh {
			logger.Error("component failed", "error", err)
		}
	}()

	_, runErr := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	cancel()
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		eng.close(runErr.Error())
		fmt.Fprintf(os.Stderr, "Display failed: %v\n", runErr)
		return 1
	}
	eng.close(endReason(nil))
	return 0
}

func runConsole(args []string) int {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	mf := addMachineFlags(fs)
	history := fs.String("history", console.DefaultHistoryFile(), "Readline history file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := mf.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logFile, err := setupFileLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logFile.Close()
	logger := log.WithComponent("main")
	logger.Info("gwiz starting", "version", version, "config", cfg.SourcePath, "mode", "console")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	eng, err := openEngine(ctx, cfg, engineOptions{programs: fs.Args()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		return 1
	}

	failCh := make(chan error, 1)
	errCh := eng.start(ctx)
	go func() {
		select {
		case err := <-errCh:
			failCh <- err
			fmt.Fprintf(os.Stderr, "\n%v\n", err)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Printf("gwiz %s connected to %s (%s). Type \"help\" for commands.\n", version, cfg.Machine.Name, endpointOf(cfg))
	sess := console.NewSession(newInterpreter(eng), vocab.New(cfg.Commands), os.Stdout)
	runErr := sess.Run(ctx, *history)
	cancel()
	var failure error
	select {
	case failure = <-failCh:
	default:
	}
	if runErr != nil {
		eng.close(runErr.Error())
		fmt.Fprintf(os.Stderr, "Console failed: %v\n", runErr)
		return 1
	}
	eng.close(endReason(failure))
	if failure != nil {
		return 1
	}
	return 0
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	mf := addMachineFlags(fs)
	var commands stringList
	fs.Var(&commands, "c", "Command to send before any program (repeatable)")
	timeout := fs.Duration("timeout", 0, "Give up after this long (0 waits forever)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if len(commands) == 0 && fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: gwiz send [flags] [-c CMD ...] [program.gcode ...]\n")
		return 1
	}

	cfg, err := mf.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, *timeout)
		defer stop()
	}

	return sendAndWait(ctx, cfg, engineOptions{programs: fs.Args(), running: true}, commands)
}

// sendAndWait queues commands, streams programs and returns once every pile
// has drained.
func sendAndWait(ctx context.Context, cfg *config.Config, opts engineOptions, commands []string) int {
	logger := log.WithComponent("main")

	eng, err := openEngine(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		return 1
	}

	interp := newInterpreter(eng)
	for _, c := range commands {
		if err := interp.Send(c); err != nil {
			eng.close(err.Error())
			fmt.Fprintf(os.Stderr, "Failed to queue %q: %v\n", c, err)
			return 1
		}
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	errCh := eng.start(loopCtx)

	waitErr := make(chan error, 1)
	go func() { waitErr <- eng.dc.WaitIdle(loopCtx, 50*time.Millisecond) }()

	var failure error
	select {
	case failure = <-errCh:
	case failure = <-waitErr:
	}
	stopLoop()

	if failure != nil {
		eng.close(failure.Error())
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", failure)
		return 1
	}
	snap := eng.dc.Snapshot(1)
	logger.Info("all commands acknowledged", "acked", snap.AckTotal, "unmatched_errors", snap.UnmatchedErrors)
	eng.close("drained")
	return 0
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// --- CONFIG ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "convert":
		if hasHelpFlag(actionArgs) {
			printConfigConvertHelp()
			return 0
		}
		return runConfigConvert(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: gwiz config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show, convert")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: gwiz config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate the machine configuration and look for the device.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: gwiz config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration with defaults applied.")
}

func printConfigConvertHelp() {
	fmt.Println("Usage: gwiz config convert <legacy-file> [-o PATH]")
	fmt.Println("Convert a key=value machine file to YAML.")
}

func runConfigCheck(args []string) int {
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	mf := addMachineFlags(fs)
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := mf.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg, transport.ListSerial).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	mf := addMachineFlags(fs)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := mf.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func runConfigConvert(args []string) int {
	var outPath string
	var legacyPath string
	var remaining []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && legacyPath == "" && !expectsValue(remaining) {
			legacyPath = arg
			continue
		}
		remaining = append(remaining, arg)
	}

	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.StringVar(&outPath, "o", "", "Write YAML here instead of stdout")
	if err := fs.Parse(remaining); err != nil {
		return 1
	}
	if legacyPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: gwiz config convert <legacy-file> [-o PATH]\n")
		return 1
	}

	cfg, warnings, err := config.LoadLegacy(legacyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Convert failed: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if outPath == "" {
		fmt.Print(string(data))
		return 0
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Write failed: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s (%d commands)\n", outPath, len(cfg.Commands))
	return 0
}

// --- VOCAB ---

func runVocabNoun(args []string) int {
	if len(args) < 1 {
		printVocabNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printVocabNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	fs := flag.NewFlagSet(action, flag.ContinueOnError)
	mf := addMachineFlags(fs)
	if err := fs.Parse(actionArgs); err != nil {
		return 1
	}

	switch action {
	case "search", "describe":
	default:
		fmt.Fprintf(os.Stderr, "Unknown vocab action: %s\n", action)
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: gwiz vocab %s [--config PATH] <words...>\n", action)
		return 1
	}

	cfg, err := mf.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	table := vocab.New(cfg.Commands)

	if action == "describe" {
		desc, ok := table.Describe(fs.Arg(0))
		if !ok {
			fmt.Fprintf(os.Stderr, "%s is not in the command vocabulary\n", strings.ToUpper(fs.Arg(0)))
			return 1
		}
		fmt.Println(desc)
		return 0
	}

	matches := table.Search(fs.Args()...)
	for _, m := range matches {
		fmt.Printf("%-8s %s\n", m.Command, m.Description)
	}
	if len(matches) == 0 {
		return 1
	}
	return 0
}

func printVocabNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: gwiz vocab <action> [--config PATH] <words...>")
	fmt.Fprintln(w, "Actions: search, describe")
}

// --- SESSION ---

func runSessionNoun(args []string) int {
	if len(args) < 1 {
		printSessionNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSessionNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	var sessionID string
	var remaining []string
	for _, arg := range actionArgs {
		if !strings.HasPrefix(arg, "-") && sessionID == "" && !expectsValue(remaining) {
			sessionID = arg
			continue
		}
		remaining = append(remaining, arg)
	}

	fs := flag.NewFlagSet(action, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to machine configuration")
	dbPath := fs.String("db", "", "Audit database, overrides audit.database")
	jsonOut := fs.Bool("json", false, "Output report in JSON")
	limit := fs.Int("n", 20, "Number of sessions to list")
	outPath := fs.String("o", "", "Write the program here instead of stdout")
	if err := fs.Parse(remaining); err != nil {
		return 1
	}

	path := *dbPath
	if path == "" {
		cfg, err := loadConfigForTool(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		path = cfg.Audit.Database
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "No audit database configured (set audit.database or pass --db)\n")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	switch action {
	case "list":
		sessions, err := storage.NewSessions(db).List(ctx, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if *jsonOut {
			data, _ := json.MarshalIndent(sessions, "", "  ")
			fmt.Println(string(data))
			return 0
		}
		for _, s := range sessions {
			state := "open"
			if s.EndReason != nil {
				state = *s.EndReason
			}
			fmt.Printf("%s  %s  %-12s %-16s %s\n", s.ID, s.StartedAt.Local().Format(time.DateTime), s.Machine, s.Port, state)
		}
		return 0

	case "show", "replay":
		if sessionID == "" {
			fmt.Fprintf(os.Stderr, "Usage: gwiz session %s <session_id> [--config PATH]\n", action)
			return 1
		}
		if action == "replay" {
			return replaySession(ctx, db, sessionID, *outPath)
		}
		var report string
		if *jsonOut {
			report, err = inspect.BuildJSONReport(ctx, db, sessionID)
		} else {
			report, err = inspect.BuildReport(ctx, db, sessionID)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
			return 1
		}
		fmt.Print(report)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown session action: %s\n", action)
		return 1
	}
}

func replaySession(ctx context.Context, db *sql.DB, sessionID, outPath string) int {
	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	n, err := inspect.WriteMachineLog(ctx, db, sessionID, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		return 1
	}
	if outPath != "" {
		fmt.Printf("Wrote %d commands to %s\n", n, outPath)
	}
	return 0
}

// expectsValue reports whether the last collected flag still needs its
// value.
func expectsValue(collected []string) bool {
	if len(collected) == 0 {
		return false
	}
	switch collected[len(collected)-1] {
	case "--config", "-config", "--db", "-db", "-n", "--n", "-o", "--o":
		return true
	}
	return false
}

func printSessionNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: gwiz session <action> [--config PATH | --db PATH]")
	fmt.Fprintln(w, "Actions: list, show <id> [--json], replay <id> [-o PATH]")
}
