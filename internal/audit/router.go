package audit

import (
	"errors"
	"strings"

	"github.com/mattjoyce/gwiz/internal/pile"
)

// Router maps acknowledged-log entries onto the three audit streams. It
// implements pile.Router. Nil sinks are treated as Discard.
type Router struct {
	Machine    Sink
	Diagnostic Sink
	Debug      Sink
}

var _ pile.Router = (*Router)(nil)

func (r *Router) Route(e pile.AckEntry) error {
	switch {
	case e.Entry != nil && e.Kind == pile.AckOK && strings.HasPrefix(e.Payload, "ok"):
		return r.write(StreamMachine, LevelInfo, e, string(e.Entry.Command))

	case e.Entry == nil && strings.HasPrefix(e.Payload, ";"):
		// Device output that already looks like a comment.
		return r.write(StreamMachine, LevelWarn, e, e.Payload)

	case e.Entry == nil && e.Kind == pile.AckStatus:
		// Double comment keeps the machine log replayable.
		return r.write(StreamMachine, LevelInfo, e, ";; "+e.Payload)

	case e.Entry != nil && e.Kind == pile.AckError:
		msg := e.Payload + ":" + string(e.Entry.Command)
		return errors.Join(
			r.write(StreamDiagnostic, LevelError, e, msg),
			r.write(StreamDebug, LevelDebug, e, msg),
		)

	case e.Entry != nil && e.Kind == pile.AckComment:
		return r.write(StreamMachine, LevelWarn, e, string(e.Entry.Command))

	default:
		return r.write(StreamDiagnostic, LevelDebug, e, e.String())
	}
}

func (r *Router) write(stream Stream, level Level, e pile.AckEntry, msg string) error {
	var s Sink
	switch stream {
	case StreamMachine:
		s = r.Machine
	case StreamDiagnostic:
		s = r.Diagnostic
	case StreamDebug:
		s = r.Debug
	}
	if s == nil {
		return nil
	}
	return s.Write(Record{Stream: stream, Level: level, Message: msg, At: e.At})
}
