package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mattjoyce/gwiz/internal/vocab"
)

// Line prefixes of the console.
const (
	CommandPrefix = ":"
	SearchPrefix  = "?"
	HelpPrefix    = "help"
)

// Session is an interactive line console. Plain lines are machine commands,
// ':' lines are operator commands and '?' lines search the vocabulary.
type Session struct {
	in    *Interpreter
	vocab *vocab.Table
	out   io.Writer
}

// NewSession returns a console writing operator output to out.
func NewSession(in *Interpreter, table *vocab.Table, out io.Writer) *Session {
	if table == nil {
		table = vocab.New(nil)
	}
	return &Session{in: in, vocab: table, out: out}
}

// Handle processes one input line. It returns ErrQuit when the operator
// asks to leave; every other failure is reported to out.
func (s *Session) Handle(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == HelpPrefix:
		s.help()
		return nil
	case strings.HasPrefix(line, CommandPrefix):
		msg, err := s.in.Exec(strings.TrimPrefix(line, CommandPrefix))
		if errors.Is(err, ErrQuit) {
			return err
		}
		s.report(msg, err)
		return nil
	case strings.HasPrefix(line, SearchPrefix):
		s.search(strings.TrimPrefix(line, SearchPrefix))
		return nil
	}

	if err := s.in.Send(line); err != nil {
		s.report("", err)
		return nil
	}
	if d, ok := s.vocab.Describe(line); ok {
		fmt.Fprintf(s.out, "  %s\n", d)
	}
	return nil
}

func (s *Session) report(msg string, err error) {
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if msg != "" {
		fmt.Fprintln(s.out, msg)
	}
}

func (s *Session) search(input string) {
	matches := s.vocab.SearchLine(input)
	if len(matches) == 0 {
		fmt.Fprintln(s.out, "no match")
		return
	}
	for _, m := range matches {
		fmt.Fprintf(s.out, "%-6s %s\n", m.Command, m.Description)
	}
}

func (s *Session) help() {
	fmt.Fprintln(s.out, "machine commands are sent as typed")
	fmt.Fprintln(s.out, "?words        search the command vocabulary")
	for _, h := range Help {
		fmt.Fprintf(s.out, "%s%s\n", CommandPrefix, h)
	}
	if names := s.in.Macros(); len(names) > 0 {
		fmt.Fprintf(s.out, "macros: %s\n", strings.Join(names, ", "))
	}
}

func (s *Session) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, h := range Help {
		verb, _, _ := strings.Cut(h, " ")
		switch verb {
		case "load":
			items = append(items, readline.PcItem(CommandPrefix+verb, readline.PcItemDynamic(listPrograms)))
		case "macro":
			var macros []readline.PrefixCompleterInterface
			for _, name := range s.in.Macros() {
				macros = append(macros, readline.PcItem(name))
			}
			items = append(items, readline.PcItem(CommandPrefix+verb, macros...))
		default:
			items = append(items, readline.PcItem(CommandPrefix+verb))
		}
	}
	for _, w := range s.vocab.Words() {
		items = append(items, readline.PcItem(w))
	}
	return readline.NewPrefixCompleter(items...)
}

func listPrograms(string) []string {
	matches, _ := filepath.Glob("*.gcode")
	return matches
}

// Run reads lines until quit, EOF, interrupt or ctx cancellation.
func (s *Session) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		HistoryLimit:    500,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          s.out,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = rl.Close()
		case <-done:
		}
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if err := s.Handle(line); errors.Is(err, ErrQuit) {
			return nil
		}
	}
}

// DefaultHistoryFile is the console history location.
func DefaultHistoryFile() string {
	return filepath.Join(os.TempDir(), ".gwiz_history")
}
