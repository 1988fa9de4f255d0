package transport

import (
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is the Marlin default.
const DefaultBaudRate = 115200

// OpenSerial opens a serial device at 8N1. Reads block without timeout.
func OpenSerial(path string, baud int) (Transport, error) {
	if path == "" {
		return nil, fmt.Errorf("serial port is empty")
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return newLineConn(port, classifySerialError), nil
}

// ListSerial returns the serial ports present on the host.
func ListSerial() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return ports, nil
}

func classifySerialError(err error) string {
	if portErr, ok := asPortError(err); ok {
		switch portErr.Code() {
		case serial.PortNotFound:
			return "device removed"
		case serial.PortClosed:
			return "port closed"
		case serial.InvalidSerialPort:
			return "device is no longer a serial port"
		default:
			return portErr.EncodedErrorString()
		}
	}
	if errors.Is(err, io.EOF) {
		return "end of stream"
	}
	return "i/o error"
}

// asPortError finds a serial.PortError in the chain; the library returns it
// by pointer from Open and by value from some read paths.
func asPortError(err error) (serial.PortError, bool) {
	var ptr *serial.PortError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val serial.PortError
	if errors.As(err, &val) {
		return val, true
	}
	return serial.PortError{}, false
}
