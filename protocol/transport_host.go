package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTimeout = errors.New("protocol: response timeout")
	ErrStopped = errors.New("protocol: transport stopped")
)

// Message is a received frame
type Message struct {
	Sequence uint8
	Payload  []byte
}

// HostTransport is the host end of the console: it sends one request frame
// at a time and waits for the response carrying the same sequence
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq uint32 // 0x10-0x1F

	dec          Decoder
	inputBuffer  *FifoBuffer
	responseChan chan *Message

	callMutex sync.Mutex
	readMutex sync.Mutex

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewHostTransport starts a reader on port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		inputBuffer:  NewFifoBuffer(4 * MessageMax),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Exchange sends one frame and returns the payload of its response.
// Responses to earlier, abandoned requests are discarded.
func (t *HostTransport) Exchange(args func(output OutputBuffer), timeout time.Duration) ([]byte, error) {
	t.callMutex.Lock()
	defer t.callMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	scratch := NewScratchOutput()
	// leading sync byte resynchronizes a receiver that saw garbage
	scratch.Output([]byte{MessageValueSync})
	EncodeFrame(scratch, seq, args)
	msg := scratch.Result()
	if len(msg)-1 > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", len(msg)-1, MessageLengthMax)
	}

	atomic.StoreUint32(&t.currentSeq, uint32(NextSequence(seq)))

	n, err := t.port.Write(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	if n != len(msg) {
		return nil, fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case resp := <-t.responseChan:
			if resp.Sequence != seq {
				continue
			}
			return resp.Payload, nil
		case <-deadline.C:
			return nil, fmt.Errorf("%w after %v (seq 0x%02x)", ErrTimeout, timeout, seq)
		case <-t.stopChan:
			return nil, ErrStopped
		}
	}
}

// Call sends words and decodes the response words into reply
func (t *HostTransport) Call(words []uint32, reply []uint32, timeout time.Duration) (int, error) {
	payload, err := t.Exchange(func(output OutputBuffer) {
		EncodeWords(output, words...)
	}, timeout)
	if err != nil {
		return 0, err
	}
	return DecodeWords(payload, reply)
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processMessages()
		}
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
			}
			// serial ports report read timeouts as EOF
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	data := t.inputBuffer.Data()
	used := 0
	for used < len(data) {
		seq, payload, n, ok := t.dec.Next(data[used:])
		used += n
		if !ok {
			break
		}
		msg := &Message{Sequence: seq, Payload: append([]byte(nil), payload...)}
		select {
		case t.responseChan <- msg:
		default:
			// drop the oldest
			select {
			case <-t.responseChan:
			default:
			}
			t.responseChan <- msg
		}
	}
	t.inputBuffer.Pop(used)
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Errors returns the number of framing errors seen on the input
func (t *HostTransport) Errors() uint32 {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()
	return t.dec.Errors
}

// CurrentSequence returns the sequence the next request will carry
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
