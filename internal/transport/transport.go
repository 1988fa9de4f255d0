// Package transport provides line-oriented connections to a machine
// controller: a serial port, a TCP serial bridge and an in-process simulator.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/mattjoyce/gwiz/internal/transport Transport

// ErrDisconnected wraps every read failure. The dispatch loop treats it as
// fatal; there is no reconnect.
var ErrDisconnected = errors.New("connection to machine was lost")

// Transport is a full-duplex, newline-delimited connection.
type Transport interface {
	// Write sends raw bytes. The caller supplies the line terminator.
	Write(p []byte) (int, error)
	// ReadLine blocks until a full line arrives and returns it without the
	// terminator.
	ReadLine() (string, error)
	Close() error
}

// lineConn adapts a byte stream to Transport.
type lineConn struct {
	rwc      io.ReadWriteCloser
	r        *bufio.Reader
	classify func(error) string

	mu     sync.Mutex
	closed bool
}

func newLineConn(rwc io.ReadWriteCloser, classify func(error) string) *lineConn {
	return &lineConn{rwc: rwc, r: bufio.NewReader(rwc), classify: classify}
}

func (c *lineConn) Write(p []byte) (int, error) {
	return c.rwc.Write(p)
}

func (c *lineConn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		// A final unterminated line before EOF is still delivered.
		if line != "" && errors.Is(err, io.EOF) {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", c.disconnected(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *lineConn) disconnected(err error) error {
	reason := "read failed"
	if c.classify != nil {
		reason = c.classify(err)
	}
	return fmt.Errorf("%w (%s): %w", ErrDisconnected, reason, err)
}

func (c *lineConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rwc.Close()
}
