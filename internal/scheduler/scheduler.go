// Package scheduler queues recurring commands, usually telemetry polls,
// into the pending pile.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/gwiz/internal/config"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/queue"
)

// DefaultTick is how often due polls are checked.
const DefaultTick = 100 * time.Millisecond

// Skip reasons.
const (
	ReasonPaused      = "paused"
	ReasonOutstanding = "poll_guard_outstanding"
)

type job struct {
	command gcode.Command
	every   time.Duration
	jitter  time.Duration
	next    time.Time
	skipped string
}

// Scheduler manages the recurring commands of one machine.
type Scheduler struct {
	target Target
	events events.Publisher
	logger *slog.Logger
	tick   time.Duration

	mu   sync.Mutex
	jobs []*job

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler for the configured polls. The first run of each
// poll is due immediately.
func New(polls []config.PollConfig, target Target, pub events.Publisher, logger *slog.Logger) *Scheduler {
	if pub == nil {
		pub = events.NewHub(events.DefaultRing)
	}
	s := &Scheduler{
		target: target,
		events: pub,
		logger: logger.With("component", "scheduler"),
		tick:   DefaultTick,
		stopCh: make(chan struct{}),
	}
	now := time.Now()
	for _, p := range polls {
		s.jobs = append(s.jobs, &job{
			command: gcode.Command(p.Command),
			every:   p.Every,
			jitter:  p.Jitter,
			next:    now,
		})
	}
	return s
}

// Len reports the number of configured polls.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Start begins the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if len(s.jobs) == 0 {
		return
	}
	s.logger.Info("Starting scheduler", "polls", len(s.jobs))
	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
	}
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.runDue(now)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runDue queues every poll whose time has come. A poll that cannot be queued
// keeps its due time and is retried on the next tick.
func (s *Scheduler) runDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}

		if reason := s.skipReason(j); reason != "" {
			if j.skipped != reason {
				j.skipped = reason
				s.events.Publish(events.PollSkipped, events.PollSkip{Command: string(j.command), Reason: reason})
				s.logger.Debug("Skipped poll", "command", string(j.command), "reason", reason)
			}
			continue
		}
		j.skipped = ""

		if err := s.target.Enqueue(j.command, queue.Tail); err != nil {
			s.logger.Error("Failed to queue poll", "command", string(j.command), "error", err)
			continue
		}
		j.next = now.Add(calculateJitteredInterval(j.every, j.jitter))
		s.logger.Debug("Queued poll", "command", string(j.command), "next", j.next)
	}
}

func (s *Scheduler) skipReason(j *job) string {
	if !s.target.Running() {
		return ReasonPaused
	}
	if s.target.Outstanding(j.command) > 0 {
		return ReasonOutstanding
	}
	return ""
}

// calculateJitteredInterval adds a random jitter to the base interval.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	randomJitter := time.Duration(rand.Int63n(jitter.Nanoseconds()))
	return baseInterval + randomJitter
}
