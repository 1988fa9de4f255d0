package tui

import (
	"bufio"
	"os"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gwiz/internal/console"
	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/vocab"
)

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR"}) // Suppress logs in tests
	os.Exit(m.Run())
}

func newModel(t *testing.T) (Model, *dispatch.Context) {
	t.Helper()
	dc := dispatch.NewContext(dispatch.Options{Machine: "bench", StartPaused: true})
	m := New(Options{
		Context:     dc,
		Interpreter: console.New(dc),
		Vocab: vocab.New(map[string]string{
			"G28":  "Auto home",
			"M104": "Set hotend temperature",
			"M140": "Set bed temperature",
		}),
		Heaters: []string{"T", "B"},
	})
	return m, dc
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func typed(s string) []tea.KeyMsg {
	keys := make([]tea.KeyMsg, 0, len(s))
	for _, r := range s {
		keys = append(keys, runes(string(r)))
	}
	return keys
}

func pendingOf(dc *dispatch.Context) []string {
	var out []string
	for _, e := range dc.Snapshot(0).Pending {
		out = append(out, string(e.Command))
	}
	return out
}

func TestTypedCommandIsQueued(t *testing.T) {
	m, dc := newModel(t)

	m = press(t, m, typed("G28")...)
	assert.Equal(t, "G28", m.Input())
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "", m.Input())
	assert.Equal(t, []string{"G28"}, pendingOf(dc))
}

func TestSpaceDescribesFirstWord(t *testing.T) {
	m, _ := newModel(t)
	m = press(t, m, typed("m104 ")...)
	assert.Equal(t, []string{"Set hotend temperature"}, m.info)
}

func TestCommandMode(t *testing.T) {
	m, dc := newModel(t)

	m = press(t, m, runes(":"))
	require.Equal(t, ModeCommand, m.Mode())
	assert.Equal(t, "", m.Input())

	m = press(t, m, typed("run")...)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, dc.Running())
	assert.Equal(t, ModeCommand, m.Mode())

	m = press(t, m, typed("bogus")...)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	notices := dc.Snapshot(0).Notices
	require.NotEmpty(t, notices)
	assert.Equal(t, "uh? `bogus`", notices[len(notices)-1].Message)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ModeNormal, m.Mode())

	m = press(t, m, runes(":"))
	m = press(t, m, typed("quit")...)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
}

func TestSearchAutofillsSingleMatch(t *testing.T) {
	m, _ := newModel(t)

	m = press(t, m, runes("?"))
	require.Equal(t, ModeSearch, m.Mode())

	m = press(t, m, typed("temp")...)
	assert.Equal(t, ModeSearch, m.Mode())
	assert.Len(t, m.matches, 2)

	m = press(t, m, typed(" b")...)
	assert.Equal(t, ModeNormal, m.Mode())
	assert.Equal(t, "M140 ", m.Input())
}

func TestQuestionMarkInsideCommandIsText(t *testing.T) {
	m, _ := newModel(t)
	m = press(t, m, typed("M117 ok?")...)
	assert.Equal(t, ModeNormal, m.Mode())
	assert.Equal(t, "M117 ok?", m.Input())
}

func TestCtrlPTogglesRun(t *testing.T) {
	m, dc := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlP})
	assert.True(t, dc.Running())
	press(t, m, tea.KeyMsg{Type: tea.KeyCtrlP})
	assert.False(t, dc.Running())
}

func TestViewRendersPiles(t *testing.T) {
	m, dc := newModel(t)
	assert.Equal(t, "Initializing...", m.View())

	require.NoError(t, console.New(dc).Send("G28"))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, _ = next.Update(redrawMsg{extra: []string{"hello"}})
	m = next.(Model)

	view := m.View()
	for _, want := range []string{"gwiz bench", "PAUSED", "WAITING", "pending (1)", "G28", "no reading", "watch pipe: hello"} {
		assert.True(t, strings.Contains(view, want), "view missing %q", want)
	}
	assert.Equal(t, 5, m.spinner.Dots())
}

func TestRedrawPipeCoalesces(t *testing.T) {
	p, err := NewRedrawPipe()
	require.NoError(t, err)
	defer p.Close()

	n := p.Notifier()
	require.NoError(t, n.Notify())
	require.NoError(t, n.Notify())
	_, err = p.w.WriteString("status\n")
	require.NoError(t, err)

	cmd := waitRedraw(bufio.NewReader(p.Reader()))
	msg := cmd()
	rm, ok := msg.(redrawMsg)
	require.True(t, ok)
	assert.Equal(t, []string{"status"}, rm.extra)

	require.NoError(t, p.w.Close())
	_, closed := cmd().(redrawClosedMsg)
	assert.True(t, closed)
}
