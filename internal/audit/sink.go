// Package audit persists the record of what the machine was asked to do.
//
// Three logical streams exist: the machine log (replayable G-code of every
// acknowledged instruction), the diagnostic log and the debug log. Each stream
// is a Sink; the Router decides which stream an acknowledged-log entry lands
// in.
package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Level orders records by severity. Values match the numeric levels of the
// legacy text logs so existing --out-level settings keep their meaning.
type Level int

const (
	LevelDebug Level = 10
	LevelInfo  Level = 20
	LevelWarn  Level = 30
	LevelError Level = 40
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel accepts level names case-insensitively (WARN and WARNING both
// work) or a bare number.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "CRITICAL":
		return LevelError, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		return Level(n), nil
	}
	return 0, fmt.Errorf("unknown audit level %q", s)
}

// Stream names the logical destination of a record.
type Stream string

const (
	StreamMachine    Stream = "machine"
	StreamDiagnostic Stream = "diagnostic"
	StreamDebug      Stream = "debug"
)

// Record is one line of audit output.
type Record struct {
	Stream  Stream
	Level   Level
	Message string
	At      time.Time
}

// Sink accepts audit records. Implementations need not be goroutine safe;
// the dispatch context serializes writes.
type Sink interface {
	Write(Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Record) error

func (f SinkFunc) Write(r Record) error { return f(r) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(Record) error { return nil })

// MultiSink fans a record out to every sink. All sinks are tried; the
// returned error joins every failure.
type MultiSink []Sink

func (m MultiSink) Write(r Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LevelFilter forwards records at or above Min.
type LevelFilter struct {
	Min  Level
	Next Sink
}

func (f LevelFilter) Write(r Record) error {
	if r.Level < f.Min {
		return nil
	}
	return f.Next.Write(r)
}
