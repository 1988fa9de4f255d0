// Package pile implements the three stages of the dispatch pipeline on top
// of queue.Queue: commands waiting to be sent (Pending, also used for loaded
// programs), commands sent and awaiting a reply (InFlight) and the record of
// completed exchanges (AckLog).
package pile

import (
	"time"

	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/queue"
)

// DefaultPendingDisplay is the soft limit past which the pending pile no
// longer fits its display pane.
const DefaultPendingDisplay = 10

// Pending is an editable pile of commands awaiting dispatch. Its soft limit
// only drives a display warning; appends are never refused.
type Pending struct {
	name string
	q    *queue.Queue[gcode.Entry]
}

// NewPending returns an empty pile.
func NewPending(name string, softLimit int) *Pending {
	return &Pending{name: name, q: queue.New[gcode.Entry](softLimit, queue.Hooks[gcode.Entry]{})}
}

// NewProgram returns a pile pre-loaded with cmds, e.g. the lines of a file.
func NewProgram(name string, cmds []gcode.Command, softLimit int) *Pending {
	now := time.Now()
	entries := make([]gcode.Entry, len(cmds))
	for i, c := range cmds {
		entries[i] = gcode.Entry{EnqueuedAt: now, Command: c}
	}
	return &Pending{name: name, q: queue.From(entries, softLimit, queue.Hooks[gcode.Entry]{})}
}

func (p *Pending) Name() string { return p.name }

// Add inserts cmd at pos.
func (p *Pending) Add(cmd gcode.Command, pos queue.Position) error {
	return p.q.Append(gcode.NewEntry(cmd), pos)
}

// Pop removes the next entry to dispatch.
func (p *Pending) Pop() (gcode.Entry, error) { return p.q.PopFront() }

// Delete removes the entry at offset i.
func (p *Pending) Delete(i int) (gcode.Entry, error) { return p.q.PopAt(i) }

func (p *Pending) Len() int                 { return p.q.Len() }
func (p *Pending) Saturated() bool          { return p.q.Saturated() }
func (p *Pending) Snapshot() []gcode.Entry  { return p.q.Snapshot() }
func (p *Pending) Head(n int) []gcode.Entry { return p.q.Head(n) }
func (p *Pending) Clear()                   { p.q.Clear() }
