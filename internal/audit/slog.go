package audit

import (
	"context"
	"log/slog"
)

// LogSink forwards records into a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(r Record) error {
	s.Logger.Log(context.Background(), slogLevel(r.Level), r.Message, "stream", string(r.Stream))
	return nil
}

func slogLevel(l Level) slog.Level {
	switch {
	case l >= LevelError:
		return slog.LevelError
	case l >= LevelWarn:
		return slog.LevelWarn
	case l >= LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
