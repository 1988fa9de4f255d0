// Package console interprets operator commands shared by the TUI command
// prompt and the line-oriented console.
package console

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/pile"
	"github.com/mattjoyce/gwiz/internal/program"
	"github.com/mattjoyce/gwiz/internal/queue"
)

var (
	// ErrQuit is returned by the quit command.
	ErrQuit = errors.New("quit on user request")
	// ErrUnknownCommand wraps every unrecognised operator command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage reports a known command with bad arguments.
	ErrUsage = errors.New("usage")
)

// MacroPlaceholder is substituted, in order, by macro arguments.
const MacroPlaceholder = "{}"

// UnknownCommandError carries the input that was not understood.
type UnknownCommandError struct {
	Input string
}

func (e *UnknownCommandError) Error() string { return fmt.Sprintf("uh? `%s`", e.Input) }
func (e *UnknownCommandError) Unwrap() error { return ErrUnknownCommand }

// Controller is the part of the dispatch context the interpreter drives.
type Controller interface {
	Enqueue(cmd gcode.Command, pos queue.Position) error
	Delete(i int) (gcode.Entry, error)
	LoadProgram(p *pile.Pending)
	Flush() int
	SetRunning(run bool)
	SetInFlightCapacity(n int) error
	Dump()
}

// Help lists the operator commands.
var Help = []string{
	"run",
	"pause",
	"flush",
	"load <file.gcode>",
	"buffsize <n>",
	"insert <n> <command>",
	"delete <n>",
	"macro <name> [args...]",
	"debug",
	"quit",
}

// Interpreter executes operator commands against a Controller.
type Interpreter struct {
	ctl        Controller
	macros     map[string]string
	displayLen int
	logger     *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMacros sets the macro table. Bodies hold one command per line.
func WithMacros(m map[string]string) Option {
	return func(in *Interpreter) { in.macros = m }
}

// WithDisplayLen sets the soft display limit of loaded program piles.
func WithDisplayLen(n int) Option {
	return func(in *Interpreter) { in.displayLen = n }
}

// New returns an interpreter for ctl.
func New(ctl Controller, opts ...Option) *Interpreter {
	in := &Interpreter{
		ctl:        ctl,
		displayLen: pile.DefaultPendingDisplay,
		logger:     log.WithComponent("console"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Macros returns the macro names in sorted order.
func (in *Interpreter) Macros() []string {
	names := make([]string, 0, len(in.macros))
	for name := range in.macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exec runs one operator command and returns a message for the operator.
// Failures leave the piles untouched.
func (in *Interpreter) Exec(line string) (string, error) {
	line = strings.TrimSpace(line)
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "run":
		in.ctl.SetRunning(true)
		return "running", nil
	case "pause":
		in.ctl.SetRunning(false)
		return "paused", nil
	case "flush":
		n := in.ctl.Flush()
		return fmt.Sprintf("flushed %d commands", n), nil
	case "load":
		return in.load(rest)
	case "buffsize":
		return in.buffsize(rest)
	case "insert":
		return in.insert(rest)
	case "delete":
		return in.delete(rest)
	case "macro":
		return in.macro(rest)
	case "debug":
		in.ctl.Dump()
		return "piles dumped to log", nil
	case "quit":
		in.logger.Info("quit on user request")
		return "", ErrQuit
	}
	return "", &UnknownCommandError{Input: line}
}

// Send queues a typed machine command at the tail of the pending pile.
func (in *Interpreter) Send(line string) error {
	cmd := gcode.Command(strings.TrimSpace(line))
	if cmd.IsBlank() {
		return nil
	}
	return in.ctl.Enqueue(cmd, queue.Tail)
}

func (in *Interpreter) load(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: load <file%s>", ErrUsage, program.Extension)
	}
	p, err := program.Load(path)
	if err != nil {
		return "", err
	}
	in.ctl.LoadProgram(p.Pile(in.displayLen))
	in.logger.Info("program loaded", "path", p.Path, "lines", len(p.Commands), "fingerprint", p.Fingerprint)
	return fmt.Sprintf("loaded %s (%d lines)", p.Name, len(p.Commands)), nil
}

func (in *Interpreter) buffsize(arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", fmt.Errorf("%w: buffsize <n>", ErrUsage)
	}
	if err := in.ctl.SetInFlightCapacity(n); err != nil {
		return "", err
	}
	return fmt.Sprintf("buffer size %d", n), nil
}

func (in *Interpreter) insert(arg string) (string, error) {
	idx, cmd, ok := strings.Cut(arg, " ")
	cmd = strings.TrimSpace(cmd)
	n, err := strconv.Atoi(idx)
	if !ok || err != nil || cmd == "" {
		return "", fmt.Errorf("%w: insert <n> <command>", ErrUsage)
	}
	if err := in.ctl.Enqueue(gcode.Command(cmd), queue.At(n)); err != nil {
		return "", err
	}
	return fmt.Sprintf("inserted %q at %d", cmd, n), nil
}

func (in *Interpreter) delete(arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", fmt.Errorf("%w: delete <n>", ErrUsage)
	}
	e, err := in.ctl.Delete(n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("deleted %q", e.Command), nil
}

func (in *Interpreter) macro(arg string) (string, error) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: macro <name> [args...]", ErrUsage)
	}
	body, ok := in.macros[fields[0]]
	if !ok {
		return "", fmt.Errorf("macro %q is not defined", fields[0])
	}
	cmds, err := ExpandMacro(body, fields[1:])
	if err != nil {
		return "", fmt.Errorf("macro %s: %w", fields[0], err)
	}
	for _, cmd := range cmds {
		if err := in.ctl.Enqueue(cmd, queue.Tail); err != nil {
			return "", fmt.Errorf("macro %s: %w", fields[0], err)
		}
	}
	return fmt.Sprintf("macro %s queued %d commands", fields[0], len(cmds)), nil
}

// ExpandMacro fills each placeholder in body with the next argument and
// splits the result into commands. Blank lines are dropped. The argument
// count must match the placeholder count.
func ExpandMacro(body string, args []string) ([]gcode.Command, error) {
	want := strings.Count(body, MacroPlaceholder)
	if want != len(args) {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", ErrUsage, want, len(args))
	}
	var b strings.Builder
	rest := body
	for _, a := range args {
		before, after, _ := strings.Cut(rest, MacroPlaceholder)
		b.WriteString(before)
		b.WriteString(a)
		rest = after
	}
	b.WriteString(rest)

	var cmds []gcode.Command
	for _, line := range strings.Split(b.String(), "\n") {
		cmd := gcode.Command(strings.TrimSpace(line))
		if cmd.IsBlank() {
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
