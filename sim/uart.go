package sim

import (
	"io"
	"sync"
)

// UART is the device side of a console line. Bytes fed from the host queue
// up until the firmware reads them; firmware writes go straight to tx.
type UART struct {
	mu sync.Mutex
	rx []byte
	tx io.Writer
}

// NewUART creates a UART whose output goes to tx
func NewUART(tx io.Writer) *UART {
	return &UART{tx: tx}
}

// Buffered returns the number of received bytes not yet read
func (u *UART) Buffered() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rx)
}

// Read never blocks
func (u *UART) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := copy(p, u.rx)
	u.rx = u.rx[n:]
	return n, nil
}

func (u *UART) Write(p []byte) (int, error) {
	return u.tx.Write(p)
}

// Input returns the writer the host side feeds received bytes into
func (u *UART) Input() io.Writer {
	return (*uartInput)(u)
}

type uartInput UART

func (in *uartInput) Write(p []byte) (int, error) {
	in.mu.Lock()
	in.rx = append(in.rx, p...)
	in.mu.Unlock()
	return len(p), nil
}

// hostEnd is the terminal side of a Pipe
type hostEnd struct {
	in io.Writer
	r  *io.PipeReader
	w  *io.PipeWriter
}

func (h *hostEnd) Read(p []byte) (int, error)  { return h.r.Read(p) }
func (h *hostEnd) Write(p []byte) (int, error) { return h.in.Write(p) }

func (h *hostEnd) Close() error {
	h.w.Close()
	return h.r.Close()
}

// Pipe returns a UART and the terminal connected to it
func Pipe() (*UART, io.ReadWriteCloser) {
	r, w := io.Pipe()
	u := NewUART(w)
	return u, &hostEnd{in: u.Input(), r: r, w: w}
}
