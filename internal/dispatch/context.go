package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/metrics"
	"github.com/mattjoyce/gwiz/internal/pile"
	"github.com/mattjoyce/gwiz/internal/queue"
	"github.com/mattjoyce/gwiz/internal/reply"
	"github.com/mattjoyce/gwiz/internal/transport"
)

const maxNotices = 32

// Options configures a Context. Zero values select the defaults of the
// pile package.
type Options struct {
	Machine          string
	InFlightCapacity int
	PendingDisplay   int
	AckRetain        int
	// Router receives every acknowledged-log entry for auditing.
	Router pile.Router
	// StartPaused leaves run mode off so loaded programs wait for the
	// operator.
	StartPaused bool
	// WaitForStart holds dispatch until the firmware reports start,
	// pages_ready or a heartbeat.
	WaitForStart bool
	Events       events.Publisher
	Metrics      *metrics.Recorder
}

// Machine is the last known state of the controller.
type Machine struct {
	Name        string
	Status      Status
	Ready       bool
	Running     bool
	Position    string
	Heaters     []reply.Heater
	TelemetryAt time.Time
}

// Notice is an operator-facing message raised by the dispatch path.
type Notice struct {
	At      time.Time
	Level   events.NoticeLevel
	Message string
}

// Context owns every pile and the machine state. One mutex guards all of it;
// the loop holds it for the duration of one line, foreground callers for one
// edit or snapshot.
type Context struct {
	mu sync.Mutex

	pending  *pile.Pending
	programs []*pile.Pending
	inFlight *pile.InFlight
	ack      *pile.AckLog
	errs     *errorCorrelation
	machine  Machine
	state    State
	notices  *queue.Queue[Notice]

	pendingDisplay int
	kick           chan struct{}
	events         events.Publisher
	metrics        *metrics.Recorder
	logger         *slog.Logger
}

type discardPublisher struct{}

func (discardPublisher) Publish(events.Type, any) {}

// NewContext returns an empty context.
func NewContext(opts Options) *Context {
	if opts.InFlightCapacity <= 0 {
		opts.InFlightCapacity = pile.DefaultInFlightCapacity
	}
	if opts.PendingDisplay <= 0 {
		opts.PendingDisplay = pile.DefaultPendingDisplay
	}
	if opts.Events == nil {
		opts.Events = discardPublisher{}
	}

	c := &Context{
		pending:        pile.NewPending("pending", opts.PendingDisplay),
		ack:            pile.NewAckLog(opts.Router, opts.AckRetain),
		errs:           newErrorCorrelation(),
		notices:        queue.New[Notice](queue.Unbounded, queue.Hooks[Notice]{}),
		pendingDisplay: opts.PendingDisplay,
		kick:           make(chan struct{}, 1),
		events:         opts.Events,
		metrics:        opts.Metrics,
		logger:         log.WithComponent("dispatch"),
		machine: Machine{
			Name:    opts.Machine,
			Status:  StatusUnknown,
			Ready:   !opts.WaitForStart,
			Running: !opts.StartPaused,
		},
	}
	if opts.Machine != "" {
		c.logger = c.logger.With("machine", opts.Machine)
	}
	c.inFlight = pile.NewInFlight(opts.InFlightCapacity, c.ack, nil)
	return c
}

// Kicks fires after a foreground edit that may let the loop send more.
func (c *Context) Kicks() <-chan struct{} { return c.kick }

func (c *Context) signal() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Enqueue adds cmd to the pending pile at pos.
func (c *Context) Enqueue(cmd gcode.Command, pos queue.Position) error {
	c.mu.Lock()
	err := c.pending.Add(cmd, pos)
	if err == nil {
		c.publishCountsLocked()
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("enqueue at %s: %w", pos, err)
	}
	c.signal()
	return nil
}

// Delete removes the pending entry at offset i.
func (c *Context) Delete(i int) (gcode.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.pending.Delete(i)
	if err != nil {
		return gcode.Entry{}, fmt.Errorf("delete pending %d: %w", i, err)
	}
	c.publishCountsLocked()
	return e, nil
}

// LoadProgram appends a program pile. Programs drain in load order while run
// mode is active.
func (c *Context) LoadProgram(p *pile.Pending) {
	c.mu.Lock()
	c.programs = append(c.programs, p)
	c.addNoticeLocked(events.NoticeInfo, fmt.Sprintf("loaded %s (%d lines)", p.Name(), p.Len()))
	c.publishCountsLocked()
	c.mu.Unlock()
	c.signal()
}

// Flush drops everything not yet sent and returns how many entries went.
// In-flight entries are already in the machine buffer and stay.
func (c *Context) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.pending.Len()
	for _, p := range c.programs {
		n += p.Len()
	}
	c.pending.Clear()
	c.programs = nil
	c.publishCountsLocked()
	return n
}

// Running reports whether programs are being drained.
func (c *Context) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Running
}

// SetRunning switches run mode.
func (c *Context) SetRunning(run bool) {
	c.mu.Lock()
	c.machine.Running = run
	c.publishStatusLocked()
	c.mu.Unlock()
	if run {
		c.signal()
	}
}

// ToggleRunning flips run mode and returns the new value.
func (c *Context) ToggleRunning() bool {
	c.mu.Lock()
	run := !c.machine.Running
	c.mu.Unlock()
	c.SetRunning(run)
	return run
}

// SetInFlightCapacity changes the modelled firmware buffer depth. Shrinking
// below the current depth only delays further sends.
func (c *Context) SetInFlightCapacity(n int) error {
	if n < 1 {
		return fmt.Errorf("buffer size must be at least 1, got %d", n)
	}
	c.mu.Lock()
	c.inFlight.SetCapacity(n)
	c.mu.Unlock()
	c.signal()
	return nil
}

// AddNotice records an operator message.
func (c *Context) AddNotice(level events.NoticeLevel, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addNoticeLocked(level, msg)
}

func (c *Context) addNoticeLocked(level events.NoticeLevel, msg string) {
	n := Notice{At: time.Now(), Level: level, Message: msg}
	_ = c.notices.Append(n, queue.Tail)
	for c.notices.Len() > maxNotices {
		_, _ = c.notices.PopFront()
	}
	c.events.Publish(events.Notice, events.NoticeMessage{Level: level, Message: msg})
}

// Outstanding counts copies of cmd waiting in the pending pile or in
// flight. Program piles are not searched.
func (c *Context) Outstanding(cmd gcode.Command) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.pending.Snapshot() {
		if e.Command == cmd {
			n++
		}
	}
	for _, e := range c.inFlight.Snapshot() {
		if e.Command == cmd {
			n++
		}
	}
	return n
}

// Idle reports whether nothing is waiting to be sent or acknowledged.
func (c *Context) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleLocked()
}

func (c *Context) idleLocked() bool {
	if c.pending.Len() > 0 || c.inFlight.Len() > 0 {
		return false
	}
	for _, p := range c.programs {
		if p.Len() > 0 {
			return false
		}
	}
	return true
}

// WaitIdle polls until Idle or until ctx ends. It also returns early when the
// connection is lost.
func (c *Context) WaitIdle(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		idle, status := c.idleLocked(), c.machine.Status
		c.mu.Unlock()
		if status == StatusErrored {
			return transport.ErrDisconnected
		}
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dump logs the contents of every pile at debug level.
func (c *Context) Dump() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("pile dump",
		"state", c.state.String(),
		"ready", c.machine.Ready,
		"running", c.machine.Running,
		"pending", commandsOf(c.pending.Snapshot()),
		"in_flight", commandsOf(c.inFlight.Snapshot()),
		"unmatched_errors", c.errs.len(),
		"acked", c.ack.Len(),
	)
	for _, p := range c.programs {
		c.logger.Debug("program pile", "name", p.Name(), "remaining", p.Len())
	}
}

func commandsOf(entries []gcode.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Command)
	}
	return out
}

func (c *Context) publishCountsLocked() {
	programs := 0
	for _, p := range c.programs {
		programs += p.Len()
	}
	c.metrics.Depths(c.pending.Len()+programs, c.inFlight.Len())
	c.events.Publish(events.PileChanged, events.PileCounts{
		Pending:  c.pending.Len(),
		Programs: programs,
		InFlight: c.inFlight.Len(),
		Acked:    c.ack.Len(),
	})
}

func (c *Context) publishStatusLocked() {
	c.events.Publish(events.MachineStatus, events.StatusChange{
		Status:  string(c.machine.Status),
		Ready:   c.machine.Ready,
		Running: c.machine.Running,
	})
}

func (c *Context) setStatusLocked(s Status) {
	if c.machine.Status == s {
		return
	}
	c.machine.Status = s
	c.publishStatusLocked()
}

func cloneHeaters(h []reply.Heater) []reply.Heater {
	return slices.Clone(h)
}
