package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DialTCP connects to a serial-over-TCP bridge (ser2net, esp3d and the
// like) that passes the controller's line protocol through unchanged.
func DialTCP(ctx context.Context, addr string) (Transport, error) {
	if addr == "" {
		return nil, fmt.Errorf("tcp address is empty")
	}
	d := net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newLineConn(conn, classifyNetError), nil
}

func classifyNetError(err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return "bridge closed the connection"
	case errors.Is(err, net.ErrClosed):
		return "connection closed"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op + " failed"
	}
	return "i/o error"
}
