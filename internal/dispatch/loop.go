package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/metrics"
	"github.com/mattjoyce/gwiz/internal/reply"
	"github.com/mattjoyce/gwiz/internal/transport"
)

var nowFunc = time.Now

// NoticeConnectionLost is shown when the transport fails.
const NoticeConnectionLost = "connection to machine was lost"

// NoticeRedrawBroken is shown once per streak of notifier failures.
const NoticeRedrawBroken = "display notification pipe is broken, screen may lag"

// Loop is the background worker. It is the only writer of the transport.
type Loop struct {
	dc       *Context
	tr       transport.Transport
	notifier Notifier
	metrics  *metrics.Recorder
	logger   *slog.Logger

	notifyBroken bool
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithNotifier sets the redraw notifier.
func WithNotifier(n Notifier) LoopOption {
	return func(l *Loop) { l.notifier = n }
}

// NewLoop binds a context to a transport.
func NewLoop(dc *Context, tr transport.Transport, opts ...LoopOption) *Loop {
	l := &Loop{
		dc:      dc,
		tr:      tr,
		metrics: dc.metrics,
		logger:  dc.logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.WithComponent("dispatch")
	}
	return l
}

// Run processes device lines until the transport fails or ctx is done. It
// does not close the transport; closing it is how the caller unblocks the
// reader goroutine after cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("dispatch loop started")
	defer l.logger.Info("dispatch loop stopped")

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			line, err := l.tr.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()

	// Commands queued before the machine spoke go out now if allowed.
	l.drain()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return l.fail(err)
		case line := <-lines:
			l.Step(line)
		case <-l.dc.Kicks():
			l.drain()
			l.notify()
		}
	}
}

// Step handles one device line: classify, update piles, refill in-flight,
// notify the display. A panic is recovered and logged.
func (l *Loop) Step(line string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic while handling device line", "line", line, "panic", r)
		}
	}()

	l.logger.Debug("<<<", "line", line)
	r := reply.Classify(line)

	l.dc.mu.Lock()
	l.dc.handleLocked(r)
	if l.dc.machine.Ready {
		l.dc.state = Ready
	}
	l.dc.publishCountsLocked()
	l.dc.mu.Unlock()

	l.drain()
	l.notify()
}

// drain refills the in-flight pile and writes the moved entries.
// Untransmittable entries occupy a slot but are never written; write errors
// are logged only, replies drive the accounting.
func (l *Loop) drain() {
	l.dc.mu.Lock()
	sent := l.dc.drainLocked()
	l.dc.state = AwaitingReply
	if len(sent) > 0 {
		l.dc.publishCountsLocked()
	}
	l.dc.mu.Unlock()

	for _, e := range sent {
		l.transmit(e)
	}
}

func (l *Loop) transmit(e gcode.Entry) {
	if !e.Command.Transmittable() {
		return
	}
	if _, err := l.tr.Write([]byte(string(e.Command) + "\n")); err != nil {
		l.metrics.WriteError()
		l.logger.Error("write to machine failed", "command", string(e.Command), "error", err)
		return
	}
	l.metrics.Transmitted()
	l.logger.Debug(">>>", "command", string(e.Command))
}

func (l *Loop) notify() {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(); err != nil {
		l.metrics.NotifierFailure()
		l.dc.mu.Lock()
		l.dc.setStatusLocked(StatusUnknown)
		if !l.notifyBroken {
			l.logger.Warn("redraw notification failed", "error", err)
			l.dc.addNoticeLocked(events.NoticeWarn, NoticeRedrawBroken)
		}
		l.dc.mu.Unlock()
		l.notifyBroken = true
		return
	}
	l.notifyBroken = false
}

func (l *Loop) fail(err error) error {
	l.logger.Error("transport read failed", "error", err)
	l.dc.mu.Lock()
	l.dc.setStatusLocked(StatusErrored)
	l.dc.machine.Ready = false
	l.dc.addNoticeLocked(events.NoticeError, NoticeConnectionLost)
	l.dc.mu.Unlock()
	l.notify()

	if errors.Is(err, transport.ErrDisconnected) {
		return err
	}
	return fmt.Errorf("%w: %w", transport.ErrDisconnected, err)
}
