// Package tui is the interactive operator display: the acknowledged,
// in-flight and waiting piles, machine status and heater bars, and a prompt
// that queues machine commands, searches the vocabulary or runs operator
// commands.
package tui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/gwiz/internal/console"
	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/pile"
	"github.com/mattjoyce/gwiz/internal/vocab"
)

// Mode is the prompt mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeCommand
)

func (m Mode) Prompt() string {
	switch m {
	case ModeSearch:
		return "??? "
	case ModeCommand:
		return "### "
	default:
		return ">>> "
	}
}

func (m Mode) String() string {
	switch m {
	case ModeSearch:
		return "search"
	case ModeCommand:
		return "command"
	default:
		return "normal"
	}
}

const (
	refreshInterval = time.Second
	maxNoticeLines  = 5
)

type tickMsg time.Time

// Options wires the TUI to a running dispatch context.
type Options struct {
	Context     *dispatch.Context
	Interpreter *console.Interpreter
	Vocab       *vocab.Table
	// Redraw is read line by line; every line triggers a refresh.
	Redraw     io.Reader
	Heaters    []string
	MaxTemp    float64
	MaxPower   int
	AckLen     int
	PendingLen int
}

// Model is the BubbleTea model of the operator display.
type Model struct {
	dc     *dispatch.Context
	interp *console.Interpreter
	vocab  *vocab.Table
	redraw *bufio.Reader

	heaters    []string
	maxTemp    float64
	maxPower   int
	ackLen     int
	pendingLen int

	width  int
	height int

	mode    Mode
	input   textinput.Model
	info    []string
	matches []vocab.Match

	tempBar  progress.Model
	powerBar progress.Model

	snap    dispatch.Snapshot
	spinner Spinner
	theme   Theme
}

// New creates the model.
func New(opts Options) Model {
	if opts.Vocab == nil {
		opts.Vocab = vocab.New(nil)
	}
	if opts.Interpreter == nil {
		opts.Interpreter = console.New(opts.Context)
	}
	if opts.MaxTemp <= 0 {
		opts.MaxTemp = 300
	}
	if opts.MaxPower <= 0 {
		opts.MaxPower = 127
	}
	if opts.AckLen <= 0 {
		opts.AckLen = 10
	}
	if opts.PendingLen <= 0 {
		opts.PendingLen = pile.DefaultPendingDisplay
	}

	in := textinput.New()
	in.Prompt = ModeNormal.Prompt()
	in.Placeholder = "G-code, ':' for commands, '?' to search"
	in.Focus()

	m := Model{
		dc:         opts.Context,
		interp:     opts.Interpreter,
		vocab:      opts.Vocab,
		heaters:    opts.Heaters,
		maxTemp:    opts.MaxTemp,
		maxPower:   opts.MaxPower,
		ackLen:     opts.AckLen,
		pendingLen: opts.PendingLen,
		input:      in,
		tempBar:    progress.New(progress.WithGradient("#FFA500", "#8B0000"), progress.WithWidth(30)),
		powerBar:   progress.New(progress.WithSolidFill("#BBBBBB"), progress.WithWidth(20)),
		theme:      NewDefaultTheme(),
	}
	if opts.Redraw != nil {
		m.redraw = bufio.NewReader(opts.Redraw)
	}
	m.input.PromptStyle = m.theme.Prompt
	m.refresh()
	return m
}

// Mode returns the current prompt mode.
func (m Model) Mode() Mode { return m.mode }

// Input returns the current prompt text.
func (m Model) Input() string { return m.input.Value() }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		waitRedraw(m.redraw),
		tick(),
		tea.EnterAltScreen,
	)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tempBar.Width = max(10, (m.width-20)/2)
		m.powerBar.Width = max(8, (m.width-20)/4)

	case redrawMsg:
		m.spinner.OnActivity(time.Now())
		for _, line := range msg.extra {
			m.dc.AddNotice(events.NoticeInfo, "watch pipe: "+line)
		}
		m.refresh()
		return m, waitRedraw(m.redraw)

	case redrawClosedMsg:
		m.dc.AddNotice(events.NoticeError, "redraw pipe was lost; display refresh issues ahead")
		m.redraw = nil
		m.refresh()

	case tickMsg:
		m.spinner.Decay(time.Time(msg))
		m.refresh()
		return m, tick()
	}

	return m, nil
}

func (m *Model) refresh() {
	m.snap = m.dc.Snapshot(m.ackLen)
}

func (m *Model) setMode(mode Mode) {
	m.mode = mode
	m.input.Prompt = mode.Prompt()
	m.matches = nil
	switch mode {
	case ModeCommand:
		m.info = commandHelp()
	default:
		m.info = nil
	}
}

func commandHelp() []string {
	lines := []string{"Available commands:"}
	return append(lines, console.Help...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.input.Reset()
		m.setMode(ModeNormal)
		return m, nil
	case "ctrl+p":
		state := "paused"
		if m.dc.ToggleRunning() {
			state = "running"
		}
		m.dc.AddNotice(events.NoticeInfo, state)
		m.refresh()
		return m, nil
	case "alt+s":
		m.setMode(ModeSearch)
		m.search()
		return m, nil
	case "?":
		if m.mode == ModeNormal && m.input.Value() == "" {
			m.setMode(ModeSearch)
			return m, nil
		}
	case ":":
		if m.mode == ModeNormal && m.input.Value() == "" {
			m.setMode(ModeCommand)
			return m, nil
		}
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	switch m.mode {
	case ModeNormal:
		if msg.String() == " " {
			m.describe()
		}
	case ModeSearch:
		m.search()
	}
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	switch m.mode {
	case ModeNormal:
		if err := m.interp.Send(text); err != nil {
			m.dc.AddNotice(events.NoticeError, err.Error())
		}
		m.info = nil
	case ModeSearch:
		m.matches = nil
	case ModeCommand:
		out, err := m.interp.Exec(text)
		if errors.Is(err, console.ErrQuit) {
			return m, tea.Quit
		}
		if err != nil {
			m.dc.AddNotice(events.NoticeError, err.Error())
		} else if out != "" {
			m.dc.AddNotice(events.NoticeInfo, out)
		}
		m.info = commandHelp()
	}
	m.refresh()
	return m, nil
}

func (m *Model) describe() {
	if d, ok := m.vocab.Describe(m.input.Value()); ok {
		m.info = []string{d}
		return
	}
	m.info = nil
}

// search refreshes the matches. A single match is completed into the prompt
// and the prompt returns to normal mode.
func (m *Model) search() {
	query := m.input.Value()
	m.matches = m.vocab.SearchLine(query)
	if len(m.matches) != 1 || strings.TrimSpace(query) == "" {
		return
	}
	hit := m.matches[0]
	m.setMode(ModeNormal)
	m.input.SetValue(hit.Command + " ")
	m.input.CursorEnd()
	m.info = []string{fmt.Sprintf("%s\t%s", hit.Command, hit.Description)}
}
