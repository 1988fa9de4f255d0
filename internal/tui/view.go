package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/pile"
	"github.com/mattjoyce/gwiz/internal/reply"
	"github.com/mattjoyce/gwiz/internal/vocab"
)

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	parts := []string{
		m.renderHeader(),
		m.renderHeaters(),
		m.box("ACKNOWLEDGED", m.renderAcked()),
		m.box(fmt.Sprintf("IN FLIGHT %d/%d", len(m.snap.InFlight), m.snap.InFlightCapacity), m.renderInFlight()),
		m.box("WAITING", m.renderWaiting()),
		m.input.View(),
	}
	if info := m.renderInfo(); info != "" {
		parts = append(parts, info)
	}
	if notices := m.renderNotices(); notices != "" {
		parts = append(parts, notices)
	}
	parts = append(parts, m.theme.Dim.Render(" [:] command • [?] search • [space] describe • [ctrl+p] run/pause • [esc] normal • [ctrl+c] quit"))

	return lipgloss.NewStyle().Margin(0, 1).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) box(title, body string) string {
	return m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render(title), body),
	)
}

func (m Model) renderHeader() string {
	mc := m.snap.Machine

	badge := m.theme.StatusUnknown.Render(string(mc.Status))
	switch mc.Status {
	case dispatch.StatusOK:
		badge = m.theme.StatusOK.Render(string(mc.Status))
	case dispatch.StatusErrored:
		badge = m.theme.StatusErrored.Render(string(mc.Status))
	}

	run := m.theme.Waiting.Render("PAUSED")
	if mc.Running {
		run = m.theme.InFlight.Render("RUN")
	}
	ready := m.theme.Dim.Render("busy")
	if mc.Ready {
		ready = m.theme.InFlight.Render("ready")
	}

	pos := mc.Position
	if pos == "" {
		pos = "position unknown"
	}

	line := fmt.Sprintf("%s %s %s %s  %s  %s",
		m.theme.Title.Render("gwiz "+mc.Name),
		badge, run, ready,
		m.theme.Dim.Render(pos),
		m.spinner.Render(m.theme),
	)
	return m.theme.Border.Width(m.width - 4).Render(line)
}

func (m Model) renderHeaters() string {
	if len(m.heaters) == 0 {
		return ""
	}
	var lines []string
	for _, label := range m.heaters {
		h, ok := findHeater(m.snap.Machine.Heaters, label)
		if !ok {
			lines = append(lines, fmt.Sprintf("%-2s %s", label, m.theme.Dim.Render("no reading")))
			continue
		}
		target := "  -   "
		if h.HasTarget {
			target = fmt.Sprintf("/%5.1f", h.Target)
		}
		line := fmt.Sprintf("%-2s %s %6.1f%s", label,
			m.tempBar.ViewAs(clamp(h.Current/m.maxTemp)),
			h.Current, target)
		if h.HasPower {
			line += "  @ " + m.powerBar.ViewAs(clamp(float64(h.Power)/float64(m.maxPower)))
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func findHeater(hs []reply.Heater, label string) (reply.Heater, bool) {
	for _, h := range hs {
		if strings.EqualFold(h.Label, label) {
			return h, true
		}
	}
	return reply.Heater{}, false
}

func clamp(f float64) float64 {
	return min(max(f, 0), 1)
}

func (m Model) renderAcked() string {
	if len(m.snap.Acked) == 0 {
		return m.theme.Dim.Render("  nothing acknowledged yet")
	}
	lines := make([]string, 0, len(m.snap.Acked))
	for _, a := range m.snap.Acked {
		lines = append(lines, m.formatAck(a))
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatAck(a pile.AckEntry) string {
	ts := m.theme.Dim.Render(a.At.Format("15:04:05"))
	var style lipgloss.Style
	switch a.Kind {
	case pile.AckOK:
		style = m.theme.Acked
	case pile.AckError:
		style = m.theme.Error
	case pile.AckEcho:
		style = m.theme.Echo
	case pile.AckComment:
		style = m.theme.Comment
	default:
		style = m.theme.Status
	}
	if a.Entry == nil {
		return fmt.Sprintf("%s %s", ts, style.Render(a.Payload))
	}
	return fmt.Sprintf("%s %s %s", ts, style.Render(string(a.Entry.Command)), m.theme.AckMsg.Render(a.Payload))
}

func (m Model) renderInFlight() string {
	if len(m.snap.InFlight) == 0 {
		return m.theme.Dim.Render("  idle")
	}
	lines := make([]string, len(m.snap.InFlight))
	for i, e := range m.snap.InFlight {
		if i == 0 {
			lines[i] = m.theme.Current.Render(string(e.Command))
			continue
		}
		lines[i] = m.theme.InFlight.Render(string(e.Command))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderWaiting() string {
	cols := []string{m.column("pending", m.snap.Pending, len(m.snap.Pending))}
	for _, p := range m.snap.Programs {
		cols = append(cols, m.column(p.Name, p.Head, p.Remaining))
	}
	colWidth := max(16, (m.width-8)/len(cols))
	for i, c := range cols {
		cols[i] = lipgloss.NewStyle().Width(colWidth).Render(c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m Model) column(name string, entries []gcode.Entry, total int) string {
	lines := []string{m.theme.Dim.Render(fmt.Sprintf("%s (%d)", name, total))}
	for i, e := range entries {
		if i >= m.pendingLen {
			break
		}
		lines = append(lines, m.theme.Waiting.Render(string(e.Command)))
	}
	if hidden := total - min(len(entries), m.pendingLen); hidden > 0 {
		lines = append(lines, m.theme.Dim.Render(fmt.Sprintf("… +%d", hidden)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderInfo() string {
	if m.mode == ModeSearch && len(m.matches) > 0 {
		lines := make([]string, 0, len(m.matches))
		for _, match := range m.matches {
			lines = append(lines, fmt.Sprintf("%-6s %s", match.Command, m.highlight(match)))
		}
		return strings.Join(lines, "\n")
	}
	return strings.Join(m.info, "\n")
}

// highlight alternates two styles over the matched spans.
func (m Model) highlight(match vocab.Match) string {
	var b strings.Builder
	last := 0
	for i, sp := range match.Spans {
		b.WriteString(match.Description[last:sp.Start])
		b.WriteString(m.theme.Highlight[i%2].Render(match.Description[sp.Start:sp.End]))
		last = sp.End
	}
	b.WriteString(match.Description[last:])
	return b.String()
}

func (m Model) renderNotices() string {
	n := m.snap.Notices
	if len(n) == 0 {
		return ""
	}
	var lines []string
	for i := len(n) - 1; i >= 0 && len(lines) < maxNoticeLines; i-- {
		style := m.theme.Dim
		switch n[i].Level {
		case events.NoticeError:
			style = m.theme.Error
		case events.NoticeWarn:
			style = m.theme.Echo
		}
		lines = append(lines, style.Render(n[i].Message))
	}
	return strings.Join(lines, "\n")
}
