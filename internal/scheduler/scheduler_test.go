package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gwiz/internal/config"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/queue"
	"github.com/mattjoyce/gwiz/internal/scheduler/mocks"
)

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR"})
	os.Exit(m.Run())
}

type recordingPublisher struct {
	mu    sync.Mutex
	skips []events.PollSkip
}

func (p *recordingPublisher) Publish(t events.Type, data any) {
	if t != events.PollSkipped {
		return
	}
	p.mu.Lock()
	p.skips = append(p.skips, data.(events.PollSkip))
	p.mu.Unlock()
}

func (p *recordingPublisher) reasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.skips))
	for _, s := range p.skips {
		out = append(out, s.Reason)
	}
	return out
}

func newTestScheduler(target Target, pub events.Publisher, polls ...config.PollConfig) *Scheduler {
	return New(polls, target, pub, log.WithComponent("test"))
}

func TestRunDueQueuesAtTail(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := mocks.NewMockTarget(ctrl)

	s := newTestScheduler(target, &recordingPublisher{}, config.PollConfig{Command: "M105", Every: time.Second})

	target.EXPECT().Running().Return(true)
	target.EXPECT().Outstanding(gcode.Command("M105")).Return(0)
	target.EXPECT().Enqueue(gcode.Command("M105"), queue.Tail).Return(nil)

	now := time.Now()
	s.runDue(now)

	// Not due again until the interval has passed.
	s.runDue(now.Add(500 * time.Millisecond))

	target.EXPECT().Running().Return(true)
	target.EXPECT().Outstanding(gcode.Command("M105")).Return(0)
	target.EXPECT().Enqueue(gcode.Command("M105"), queue.Tail).Return(nil)
	s.runDue(now.Add(time.Second))
}

func TestRunDueSkipsWhilePaused(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := mocks.NewMockTarget(ctrl)
	pub := &recordingPublisher{}

	s := newTestScheduler(target, pub, config.PollConfig{Command: "M105", Every: time.Second})

	target.EXPECT().Running().Return(false).Times(3)
	now := time.Now()
	s.runDue(now)
	s.runDue(now.Add(100 * time.Millisecond))
	s.runDue(now.Add(200 * time.Millisecond))

	assert.Equal(t, []string{ReasonPaused}, pub.reasons(), "skip is published once per reason change")
}

func TestRunDueSkipsOutstandingCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := mocks.NewMockTarget(ctrl)
	pub := &recordingPublisher{}

	s := newTestScheduler(target, pub, config.PollConfig{Command: "M105", Every: time.Second})
	now := time.Now()

	gomock.InOrder(
		target.EXPECT().Running().Return(true),
		target.EXPECT().Outstanding(gcode.Command("M105")).Return(1),
		target.EXPECT().Running().Return(false),
		target.EXPECT().Running().Return(true),
		target.EXPECT().Outstanding(gcode.Command("M105")).Return(0),
		target.EXPECT().Enqueue(gcode.Command("M105"), queue.Tail).Return(nil),
	)

	s.runDue(now)
	s.runDue(now.Add(100 * time.Millisecond))
	s.runDue(now.Add(200 * time.Millisecond))

	assert.Equal(t, []string{ReasonOutstanding, ReasonPaused}, pub.reasons())
}

func TestRunDueRetriesAfterEnqueueError(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := mocks.NewMockTarget(ctrl)

	s := newTestScheduler(target, &recordingPublisher{}, config.PollConfig{Command: "M114", Every: time.Minute})
	now := time.Now()

	target.EXPECT().Running().Return(true).Times(2)
	target.EXPECT().Outstanding(gcode.Command("M114")).Return(0).Times(2)
	gomock.InOrder(
		target.EXPECT().Enqueue(gcode.Command("M114"), queue.Tail).Return(errors.New("pile closed")),
		target.EXPECT().Enqueue(gcode.Command("M114"), queue.Tail).Return(nil),
	)

	s.runDue(now)
	s.runDue(now.Add(100 * time.Millisecond))
}

func TestStartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := mocks.NewMockTarget(ctrl)

	queued := make(chan struct{}, 1)
	target.EXPECT().Running().Return(true).AnyTimes()
	target.EXPECT().Outstanding(gomock.Any()).Return(0).AnyTimes()
	target.EXPECT().Enqueue(gcode.Command("M105"), queue.Tail).DoAndReturn(func(gcode.Command, queue.Position) error {
		select {
		case queued <- struct{}{}:
		default:
		}
		return nil
	}).AnyTimes()

	s := newTestScheduler(target, nil, config.PollConfig{Command: "M105", Every: time.Hour})
	s.tick = 5 * time.Millisecond
	require.Equal(t, 1, s.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-queued:
	case <-time.After(2 * time.Second):
		t.Fatal("poll was not queued")
	}

	s.Stop()
	s.Stop()
}

func TestStartWithoutPollsIsNoop(t *testing.T) {
	s := newTestScheduler(nil, nil)
	s.Start(context.Background())
	s.Stop()
}

func TestCalculateJitteredInterval(t *testing.T) {
	base := time.Second
	assert.Equal(t, base, calculateJitteredInterval(base, 0))

	for i := 0; i < 50; i++ {
		got := calculateJitteredInterval(base, 200*time.Millisecond)
		assert.GreaterOrEqual(t, got, base)
		assert.Less(t, got, base+200*time.Millisecond)
	}
}
