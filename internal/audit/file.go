package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink appends "LEVEL\tmessage" lines to a text file. The machine log
// written this way can be fed back as a program after stripping the level
// column.
type FileSink struct {
	f *os.File
	w *bufio.Writer
}

// OpenFile opens path for appending, creating parent directories.
func OpenFile(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *FileSink) Write(r Record) error {
	if _, err := fmt.Fprintf(s.w, "%s\t%s\n", r.Level, r.Message); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	// Flush per record: a crash must not lose the tail of the machine log.
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush audit record: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
