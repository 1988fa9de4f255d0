package dispatch

import (
	"fmt"
	"io"
)

// Notifier wakes the display after each loop iteration.
type Notifier interface {
	Notify() error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func() error

func (f NotifierFunc) Notify() error { return f() }

// RedrawToken is the line WriterNotifier writes.
const RedrawToken = "nop"

// WriterNotifier writes "nop\n" to W, typically the write end of a pipe the
// display reads to trigger a redraw.
type WriterNotifier struct {
	W io.Writer
}

func (n WriterNotifier) Notify() error {
	if _, err := io.WriteString(n.W, RedrawToken+"\n"); err != nil {
		return fmt.Errorf("write redraw notification: %w", err)
	}
	return nil
}
