package pile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/queue"
)

// AckKind classifies a completed exchange.
type AckKind string

const (
	AckOK      AckKind = "ack"
	AckError   AckKind = "error"
	AckEcho    AckKind = "echo"
	AckStatus  AckKind = "status"
	AckComment AckKind = "comment"
)

// PayloadUnknownCommand is the payload of an ack turned into an error by a
// preceding unknown-command report.
const PayloadUnknownCommand = "Unknown command"

// AckEntry records one completed exchange. Entry is nil for unsolicited
// device output.
type AckEntry struct {
	Entry   *gcode.Entry
	Kind    AckKind
	Payload string
	At      time.Time
}

// Solicited reports whether the record answers a command we sent.
func (a AckEntry) Solicited() bool { return a.Entry != nil }

func (a AckEntry) String() string {
	if a.Entry == nil {
		return fmt.Sprintf("<%s %q>", a.Kind, a.Payload)
	}
	return fmt.Sprintf("<%s %q -> %q>", a.Kind, a.Entry.Command, a.Payload)
}

// Router receives every appended entry for audit side effects.
type Router interface {
	Route(AckEntry) error
}

// DefaultAckRetain bounds how many records stay in memory. Older records have
// already been routed to the audit sinks.
const DefaultAckRetain = 10_000

// AckLog is the append-only record of completed exchanges.
type AckLog struct {
	q        *queue.Queue[AckEntry]
	retain   int
	appended int
	router   Router
	logger   *slog.Logger
}

// NewAckLog returns an empty log routing to router (which may be nil).
// retain <= 0 selects DefaultAckRetain.
func NewAckLog(router Router, retain int) *AckLog {
	if retain <= 0 {
		retain = DefaultAckRetain
	}
	return &AckLog{
		q:      queue.New[AckEntry](queue.Unbounded, queue.Hooks[AckEntry]{}),
		retain: retain,
		router: router,
		logger: log.WithComponent("ack_log"),
	}
}

// Append records e. It always succeeds: routing failures are logged and
// swallowed.
func (l *AckLog) Append(e AckEntry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_ = l.q.Append(e, queue.Tail)
	l.appended++
	for l.q.Len() > l.retain {
		_, _ = l.q.PopFront()
	}
	l.route(e)
}

func (l *AckLog) route(e AckEntry) {
	if l.router == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("audit routing panicked", "entry", e.String(), "panic", r)
		}
	}()
	if err := l.router.Route(e); err != nil {
		l.logger.Warn("audit routing failed", "entry", e.String(), "error", err)
	}
}

// Len returns the number of records ever appended.
func (l *AckLog) Len() int { return l.appended }

// Tail returns up to n of the most recent records, oldest first.
func (l *AckLog) Tail(n int) []AckEntry { return l.q.Tail(n) }
