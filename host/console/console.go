// Package console is the host client of the firmware console bridge: it
// sends link requests over a serial line and decodes the replies.
package console

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"rtps/config"
	"rtps/host/serial"
	"rtps/protocol"
	"rtps/server"
)

// DefaultTimeout covers the firmware's own request timeout plus transit
const DefaultTimeout = 2 * time.Second

var (
	ErrNotConnected = errors.New("console: not connected")
	ErrUnknownLink  = errors.New("console: unknown link")
	ErrEmptyReply   = errors.New("console: empty response")
)

// StatusError is a non-ok status reported by the firmware
type StatusError struct {
	Status protocol.Status
}

func (e *StatusError) Error() string {
	return "console: firmware reported " + e.Status.String()
}

// Client talks to one board
type Client struct {
	transport *protocol.HostTransport
	links     []string

	// Timeout bounds each request
	Timeout time.Duration
}

// Connect opens device and starts a client on it
func Connect(device string) (*Client, error) {
	port, err := serial.Open(serial.DefaultConfig(device))
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// New starts a client on an open port
func New(port io.ReadWriteCloser) *Client {
	return &Client{
		transport: protocol.NewHostTransport(port),
		Timeout:   DefaultTimeout,
	}
}

// UseMap names the bridged links after the client links of sys, in the
// order the firmware bridges them
func (c *Client) UseMap(sys *config.System) {
	c.links = c.links[:0]
	for _, l := range sys.ClientLinks() {
		c.links = append(c.links, l.Label)
	}
}

// Links returns the known link labels by index
func (c *Client) Links() []string {
	return c.links
}

// Resolve turns a label or a decimal index into a link index
func (c *Client) Resolve(name string) (uint32, error) {
	for i, l := range c.links {
		if l == name {
			return uint32(i), nil
		}
	}
	idx, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLink, name)
	}
	return uint32(idx), nil
}

// Request sends opcode and args on the link with index idx and returns the
// reply words
func (c *Client) Request(idx, opcode uint32, args ...uint32) ([]uint32, error) {
	if c.transport == nil {
		return nil, ErrNotConnected
	}

	words := append([]uint32{idx, opcode}, args...)
	var reply [protocol.MaxFrameWords]uint32
	n, err := c.transport.Call(words, reply[:], c.Timeout)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmptyReply
	}
	if st := protocol.Status(reply[0]); st != protocol.StatusOK {
		return nil, &StatusError{Status: st}
	}
	return append([]uint32(nil), reply[1:n]...), nil
}

// Echo sends ECHO and returns the echoed words
func (c *Client) Echo(idx uint32, args ...uint32) ([]uint32, error) {
	reply, err := c.Request(idx, server.CmdEcho, args...)
	if err != nil {
		return nil, err
	}
	if len(reply) > len(args) {
		reply = reply[:len(args)]
	}
	return reply, nil
}

// Reset asks the peer to reset target and returns its status word
func (c *Client) Reset(idx, target uint32) (uint32, error) {
	reply, err := c.Request(idx, server.CmdReset, target)
	if err != nil {
		return 0, err
	}
	if len(reply) == 0 {
		return 0, ErrEmptyReply
	}
	return reply[0], nil
}

// Close shuts the transport and the port
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}
