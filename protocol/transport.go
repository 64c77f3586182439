package protocol

// FrameHandler receives the sequence byte and payload of each valid frame.
// payload is only valid for the duration of the call.
type FrameHandler func(seq uint8, payload []byte)

// Transport is the firmware end of the console. It parses request frames out
// of an InputBuffer and writes responses to an OutputBuffer.
type Transport struct {
	dec           Decoder
	output        OutputBuffer
	handler       FrameHandler
	flushCallback func()
	frames        uint32
}

func NewTransport(output OutputBuffer, handler FrameHandler) *Transport {
	return &Transport{
		output:  output,
		handler: handler,
	}
}

// Receive handles every complete frame queued in input and pops the bytes
// it consumed. A partial frame is left for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	used := 0
	for used < len(data) {
		seq, payload, n, ok := t.dec.Next(data[used:])
		used += n
		if !ok {
			break
		}
		t.frames++
		t.dispatch(seq, payload)
	}
	if used > 0 {
		input.Pop(used)
	}
}

// dispatch runs the handler. A panic in the handler drops the frame and
// counts as an error.
func (t *Transport) dispatch(seq uint8, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.dec.Errors++
		}
	}()
	if t.handler != nil {
		t.handler(seq, payload)
	}
}

// Respond writes a response frame echoing the request sequence
func (t *Transport) Respond(seq uint8, frameData func(output OutputBuffer)) {
	EncodeFrame(t.output, seq, frameData)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SetFlushCallback installs a function run after every response, used to
// push the output buffer to the UART
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// Frames returns the number of valid frames received
func (t *Transport) Frames() uint32 { return t.frames }

// Errors returns the number of framing errors seen
func (t *Transport) Errors() uint32 { return t.dec.Errors }

// Reset drops the decoder state
func (t *Transport) Reset() {
	t.dec.Reset()
}
