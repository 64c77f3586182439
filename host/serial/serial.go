// Package serial opens the line to a board console: a tty through
// tarm/serial, or a TCP socket when talking to the simulator.
package serial

import (
	"io"
	"strings"
)

// Port is an open console line
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device is a tty path ("/dev/ttyUSB0", "COM3") or tcp://host:port
	Device string

	// Baud rate of the board UART
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the console settings of the RTPS UART
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// tcpAddr returns the address of a tcp:// device
func tcpAddr(device string) (string, bool) {
	return strings.CutPrefix(device, "tcp://")
}
