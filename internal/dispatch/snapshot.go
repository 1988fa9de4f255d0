package dispatch

import (
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/pile"
)

// ProgramView is the visible head of a loaded program.
type ProgramView struct {
	Name      string
	Remaining int
	Head      []gcode.Entry
}

// Snapshot is a consistent copy of everything a display needs.
type Snapshot struct {
	State   State
	Machine Machine

	Pending         []gcode.Entry
	PendingOverflow bool
	Programs        []ProgramView

	InFlight         []gcode.Entry
	InFlightCapacity int

	// Acked is the trailing window of the acknowledged log, oldest first.
	Acked    []pile.AckEntry
	AckTotal int

	Notices         []Notice
	UnmatchedErrors int
}

// Snapshot copies the current state. ackWindow bounds the acknowledged
// entries returned; <= 0 returns everything retained.
func (c *Context) Snapshot(ackWindow int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.machine
	m.Heaters = cloneHeaters(c.machine.Heaters)

	programs := make([]ProgramView, len(c.programs))
	for i, p := range c.programs {
		programs[i] = ProgramView{Name: p.Name(), Remaining: p.Len(), Head: p.Head(c.pendingDisplay)}
	}
	if ackWindow <= 0 {
		ackWindow = -1
	}

	return Snapshot{
		State:            c.state,
		Machine:          m,
		Pending:          c.pending.Snapshot(),
		PendingOverflow:  c.pending.Saturated(),
		Programs:         programs,
		InFlight:         c.inFlight.Snapshot(),
		InFlightCapacity: c.inFlight.Capacity(),
		Acked:            c.ack.Tail(ackWindow),
		AckTotal:         c.ack.Len(),
		Notices:          c.notices.Snapshot(),
		UnmatchedErrors:  c.errs.len(),
	}
}
