package bridge

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"rtps/command"
	"rtps/link"
	"rtps/mailbox"
	"rtps/protocol"
	"rtps/server"
	"rtps/sim"
)

// fakeUART feeds queued input and records output
type fakeUART struct {
	in  []byte
	out []byte
}

func (u *fakeUART) Buffered() int { return len(u.in) }

func (u *fakeUART) Read(p []byte) (int, error) {
	n := copy(p, u.in)
	u.in = u.in[n:]
	return n, nil
}

func (u *fakeUART) Write(p []byte) (int, error) {
	u.out = append(u.out, p...)
	return len(p), nil
}

type fakeLink struct {
	err   error
	reply []uint32
	got   []uint32
}

func (l *fakeLink) Request(opcode uint32, args []uint32, reply []uint32) (int, error) {
	l.got = append([]uint32{opcode}, args...)
	if l.err != nil {
		return 0, l.err
	}
	return copy(reply, l.reply), nil
}

func request(seq uint8, words ...uint32) []byte {
	out := protocol.NewScratchOutput()
	protocol.EncodeFrame(out, seq, func(output protocol.OutputBuffer) {
		protocol.EncodeWords(output, words...)
	})
	return append([]byte(nil), out.Result()...)
}

// responses decodes every frame the bridge wrote
func responses(t *testing.T, raw []byte) [][]uint32 {
	t.Helper()
	var dec protocol.Decoder
	var frames [][]uint32
	for len(raw) > 0 {
		_, payload, n, ok := dec.Next(raw)
		if !ok {
			break
		}
		raw = raw[n:]
		var words [protocol.MaxFrameWords]uint32
		cnt, err := protocol.DecodeWords(payload, words[:])
		if err != nil {
			t.Fatalf("Bad response payload: %v", err)
		}
		frames = append(frames, append([]uint32(nil), words[:cnt]...))
	}
	return frames
}

func TestBridgeStatuses(t *testing.T) {
	testCases := []struct {
		name     string
		link     *fakeLink
		req      []uint32
		expected []uint32
	}{
		{"ok", &fakeLink{reply: []uint32{42}}, []uint32{0, 1, 42}, []uint32{0, 42}},
		{"unknown link", &fakeLink{}, []uint32{3, 1}, []uint32{uint32(protocol.StatusUnknownLink)}},
		{"too long", &fakeLink{err: mailbox.ErrMessageTooLong}, []uint32{0, 1}, []uint32{uint32(protocol.StatusTooLong)}},
		{"timeout", &fakeLink{err: link.ErrTimeout}, []uint32{0, 1}, []uint32{uint32(protocol.StatusTimeout)}},
		{"busy", &fakeLink{err: link.ErrBusy}, []uint32{0, 1}, []uint32{uint32(protocol.StatusBusy)}},
		{"server link", &fakeLink{err: link.ErrServerLink}, []uint32{0, 1}, []uint32{uint32(protocol.StatusTransport)}},
		{"malformed", &fakeLink{}, []uint32{0}, []uint32{uint32(protocol.StatusTransport)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			uart := &fakeUART{in: request(0x14, tc.req...)}
			b := New(uart, tc.link)

			if !b.Poll() {
				t.Fatal("Expected bytes read")
			}
			frames := responses(t, uart.out)
			if len(frames) != 1 {
				t.Fatalf("Expected one response, got %d", len(frames))
			}
			if len(frames[0]) != len(tc.expected) {
				t.Fatalf("Expected %v, got %v", tc.expected, frames[0])
			}
			for i := range tc.expected {
				if frames[0][i] != tc.expected[i] {
					t.Errorf("Expected %v, got %v", tc.expected, frames[0])
					break
				}
			}
			if uart.out[1] != 0x14 {
				t.Errorf("Expected response sequence 0x14, got 0x%02x", uart.out[1])
			}
		})
	}
}

func TestBridgeForwardsArgs(t *testing.T) {
	l := &fakeLink{}
	uart := &fakeUART{in: request(0x10, 0, server.CmdEcho, 7, 8, 9)}
	b := New(uart, l)
	b.Poll()

	if len(l.got) != 4 || l.got[0] != server.CmdEcho || l.got[3] != 9 {
		t.Errorf("Expected [1 7 8 9] forwarded, got %v", l.got)
	}
}

func TestBridgeIdleAndSplitInput(t *testing.T) {
	l := &fakeLink{reply: []uint32{1}}
	uart := &fakeUART{}
	b := New(uart, l)
	if b.Poll() {
		t.Error("Expected idle poll to report nothing read")
	}

	// More than one read's worth of garbage, then a sync byte and a request
	garbage := make([]byte, 100)
	for i := range garbage {
		garbage[i] = 0x55
	}
	uart.in = append(garbage, protocol.MessageValueSync)
	uart.in = append(uart.in, request(0x11, 0, 2)...)
	for uart.Buffered() > 0 {
		b.Poll()
	}

	if frames := responses(t, uart.out); len(frames) != 1 || frames[0][0] != 0 {
		t.Errorf("Expected one ok response after garbage, got %v", frames)
	}
}

func TestBridgeEndToEnd(t *testing.T) {
	const base, irqBase = 0xf9220000, 136

	soc := sim.NewSoC()
	soc.AddMailbox(base, irqBase)

	// RTPS serves, HPPS bridges its client link to the console
	rtps := soc.NewCore("rtps")
	rdrv := mailbox.NewDriver(mailbox.Config{Mapper: rtps.Mapper(), Intc: rtps.Intc(), Lock: rtps})
	queue := command.NewQueue(0, rtps)
	rlinks := link.NewTable(rdrv, queue, 0)
	disp := command.NewDispatcher(queue, server.New(), rdrv)
	rtps.SetVector(func(irq uint32) { rdrv.Dispatch(irq) })

	hpps := soc.NewCore("hpps")
	hdrv := mailbox.NewDriver(mailbox.Config{Mapper: hpps.Mapper(), Intc: hpps.Intc(), Lock: hpps})
	hlinks := link.NewTable(hdrv, nil, 0)
	hpps.SetVector(func(irq uint32) { hdrv.Dispatch(irq) })

	if _, err := rlinks.Connect(link.Config{
		Label: "hpps", Base: base, IRQBase: irqBase,
		InInstance: 2, OutInstance: 3, RcvInt: 2, AckInt: 3,
		Owner: 0x2e, Remote: 0x80,
	}); err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	cli, err := hlinks.Connect(link.Config{
		Label: "rtps", Base: base, IRQBase: irqBase,
		InInstance: 3, OutInstance: 2, RcvInt: 4, AckInt: 5,
		Local: 0x80, Remote: 0x2e, Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			disp.Poll()
			runtime.Gosched()
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	uart := &fakeUART{in: request(0x10, 0, server.CmdEcho, 42)}
	New(uart, cli).Poll()

	frames := responses(t, uart.out)
	if len(frames) != 1 || len(frames[0]) < 2 || frames[0][0] != 0 || frames[0][1] != 42 {
		t.Errorf("Expected [0 42 ...], got %v", frames)
	}
}
