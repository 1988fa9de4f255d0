package pile

import (
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/queue"
)

// DefaultInFlightCapacity matches the command buffer of a stock Marlin build.
const DefaultInFlightCapacity = 5

// InFlight holds commands written to the machine and not yet acknowledged.
// Its capacity models the firmware's command buffer depth.
type InFlight struct {
	q   *queue.Queue[gcode.Entry]
	ack *AckLog
}

// NewInFlight returns an empty pile. onRetire, if set, observes every entry
// leaving the pile.
func NewInFlight(capacity int, ack *AckLog, onRetire func(gcode.Entry)) *InFlight {
	p := &InFlight{ack: ack}
	p.q = queue.New(capacity, queue.Hooks[gcode.Entry]{
		BeforeAppend: p.retireLeadingComments,
		OnRetire:     onRetire,
	})
	return p
}

// retireLeadingComments moves comment-only and blank entries off the front.
// They are never transmitted, so no reply will ever retire them.
func (p *InFlight) retireLeadingComments(q *queue.Queue[gcode.Entry], _ gcode.Entry) {
	for {
		front, ok := q.Front()
		if !ok || front.Command.Transmittable() {
			return
		}
		e, _ := q.PopFront()
		p.ack.Append(AckEntry{Entry: &e, Kind: AckComment, Payload: string(e.Command)})
	}
}

// Push appends e at the tail. The capacity is checked by the caller.
func (p *InFlight) Push(e gcode.Entry) {
	_ = p.q.Append(e, queue.Tail)
}

// Settle retires untransmittable entries sitting at the front. A trailing
// comment would otherwise occupy a slot until the next push.
func (p *InFlight) Settle() {
	p.retireLeadingComments(p.q, gcode.Entry{})
}

// Retire removes the oldest entry.
func (p *InFlight) Retire() (gcode.Entry, error) {
	return p.q.PopFront()
}

func (p *InFlight) Len() int                { return p.q.Len() }
func (p *InFlight) Saturated() bool         { return p.q.Saturated() }
func (p *InFlight) Capacity() int           { return p.q.Capacity() }
func (p *InFlight) SetCapacity(n int)       { p.q.SetCapacity(n) }
func (p *InFlight) Snapshot() []gcode.Entry { return p.q.Snapshot() }
