package dispatch

import (
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/queue"
)

// maxPendingErrors bounds the correlation buffer. Reports that never match
// would otherwise accumulate for the whole session.
const maxPendingErrors = 64

// errorCorrelation holds "Unknown command" texts until the ack that retires
// the offending command arrives.
type errorCorrelation struct {
	q *queue.Queue[string]
}

func newErrorCorrelation() *errorCorrelation {
	return &errorCorrelation{q: queue.New[string](maxPendingErrors, queue.Hooks[string]{})}
}

func (c *errorCorrelation) push(text string) {
	if c.q.Saturated() {
		_, _ = c.q.PopFront()
	}
	_ = c.q.Append(text, queue.Tail)
}

// consume reports whether cmd matches the oldest report, consuming it.
// Only the head is ever compared.
func (c *errorCorrelation) consume(cmd gcode.Command) bool {
	head, ok := c.q.Front()
	if !ok || head != string(cmd) {
		return false
	}
	_, _ = c.q.PopFront()
	return true
}

func (c *errorCorrelation) len() int { return c.q.Len() }
