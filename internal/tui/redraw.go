package tui

import (
	"bufio"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/gwiz/internal/dispatch"
)

// redrawMsg is sent when the dispatch loop pokes the redraw pipe. Lines
// other than the nop token are surfaced to the operator.
type redrawMsg struct {
	extra []string
}

// redrawClosedMsg reports that the redraw pipe is gone.
type redrawClosedMsg struct{ err error }

// RedrawPipe carries redraw pokes from the dispatch loop to the TUI.
type RedrawPipe struct {
	r *os.File
	w *os.File
}

// NewRedrawPipe opens the pipe.
func NewRedrawPipe() (*RedrawPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &RedrawPipe{r: r, w: w}, nil
}

// Notifier returns the dispatch side of the pipe.
func (p *RedrawPipe) Notifier() dispatch.Notifier {
	return dispatch.WriterNotifier{W: p.w}
}

// Reader returns the TUI side of the pipe.
func (p *RedrawPipe) Reader() io.Reader { return p.r }

// Close closes both ends.
func (p *RedrawPipe) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// waitRedraw blocks for the next poke and coalesces whatever else is
// already buffered into one message.
func waitRedraw(r *bufio.Reader) tea.Cmd {
	if r == nil {
		return nil
	}
	return func() tea.Msg {
		var msg redrawMsg
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return redrawClosedMsg{err: err}
			}
			if line = strings.TrimSpace(line); line != "" && line != dispatch.RedrawToken {
				msg.extra = append(msg.extra, line)
			}
			if r.Buffered() == 0 {
				return msg
			}
		}
	}
}
