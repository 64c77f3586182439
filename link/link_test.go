package link

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"rtps/command"
	"rtps/core"
	"rtps/mailbox"
	"rtps/server"
	"rtps/sim"
)

const (
	hppsBase    = 0xf9220000
	hppsIRQBase = 136

	idRTPS = 0x2e
	idHPPS = 0x80
)

// node is one core's firmware stack on the simulated SoC
type node struct {
	cpu   *sim.Core
	drv   *mailbox.Driver
	queue *command.Queue
	links *Table
	disp  *command.Dispatcher
}

func newNode(soc *sim.SoC, name string, queueSize int) *node {
	n := &node{cpu: soc.NewCore(name)}
	n.drv = mailbox.NewDriver(mailbox.Config{Mapper: n.cpu.Mapper(), Intc: n.cpu.Intc(), Lock: n.cpu})
	n.queue = command.NewQueue(queueSize, n.cpu)
	n.links = NewTable(n.drv, n.queue, 2)
	n.disp = command.NewDispatcher(n.queue, server.New(), n.drv)
	n.cpu.SetVector(func(irq uint32) { n.drv.Dispatch(irq) })
	return n
}

// run polls the dispatcher until stop is closed
func (n *node) run(stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		n.disp.Poll()
		runtime.Gosched()
	}
}

func serverConfig() Config {
	return Config{
		Label: "hpps", Base: hppsBase, IRQBase: hppsIRQBase,
		InInstance: 2, OutInstance: 3, RcvInt: 2, AckInt: 3,
		Owner: idRTPS, Remote: idHPPS,
	}
}

func clientConfig() Config {
	return Config{
		Label: "rtps", Base: hppsBase, IRQBase: hppsIRQBase,
		InInstance: 3, OutInstance: 2, RcvInt: 4, AckInt: 5,
		Local: idHPPS, Remote: idRTPS,
	}
}

// pair connects an RTPS server link and an HPPS client link
func pair(t *testing.T) (rtps, hpps *node, srv, cli *Link) {
	t.Helper()
	soc := sim.NewSoC()
	soc.AddMailbox(hppsBase, hppsIRQBase)
	rtps = newNode(soc, "rtps", 0)
	hpps = newNode(soc, "hpps", 0)

	var err error
	srv, err = rtps.links.Connect(serverConfig())
	if err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	cli, err = hpps.links.Connect(clientConfig())
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	return rtps, hpps, srv, cli
}

func TestEchoRoundTrip(t *testing.T) {
	rtps, _, srv, cli := pair(t)
	if !srv.Server() || cli.Server() {
		t.Fatal("Expected RTPS side server and HPPS side client")
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go rtps.run(stop, &wg)
	defer func() {
		close(stop)
		wg.Wait()
	}()

	var reply [1]uint32
	n, err := cli.Request(server.CmdEcho, []uint32{42}, reply[:])
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if n != 1 || reply[0] != 42 {
		t.Errorf("Expected reply [42], got %d words %v", n, reply)
	}

	// A second exchange on the same link
	var full [mailbox.MaxWords]uint32
	n, err = cli.Request(server.CmdEcho, []uint32{7, 8, 9}, full[:])
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if n != mailbox.MaxWords || full[0] != 7 || full[1] != 8 || full[2] != 9 {
		t.Errorf("Expected 7 8 9 echoed, got %d words %v", n, full[:3])
	}
}

func TestRequestTooLong(t *testing.T) {
	rtps, hpps, _, cli := pair(t)
	takenRTPS, takenHPPS := rtps.cpu.Taken(), hpps.cpu.Taken()

	args := make([]uint32, mailbox.MaxWords)
	_, err := cli.Request(server.CmdEcho, args, nil)
	if !errors.Is(err, mailbox.ErrMessageTooLong) {
		t.Fatalf("Expected ErrMessageTooLong, got %v", err)
	}
	if rtps.cpu.Taken() != takenRTPS || hpps.cpu.Taken() != takenHPPS {
		t.Error("Expected no interrupt raised")
	}
	if rtps.queue.Len() != 0 {
		t.Error("Expected nothing queued on the server")
	}
}

func TestRequestTimesOutWithoutReply(t *testing.T) {
	rtps, _, _, cli := pair(t)
	cli.timeout = 10 * time.Millisecond

	// Nobody polls the server: the request is acked but never answered
	_, err := cli.Request(server.CmdEcho, []uint32{1}, make([]uint32, 1))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	if cli.ack.Pending() {
		t.Error("Expected the request to have been acked")
	}
	if rtps.queue.Len() != 1 {
		t.Errorf("Expected the command queued on the server, got %d", rtps.queue.Len())
	}
}

func TestLateReplyAfterTimeout(t *testing.T) {
	rtps, _, _, cli := pair(t)
	cli.timeout = 10 * time.Millisecond

	first := make([]uint32, 1)
	if _, err := cli.Request(server.CmdEcho, []uint32{1}, first); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if _, err := cli.Request(server.CmdEcho, []uint32{2}, make([]uint32, 1)); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy while the first reply is owed, got %v", err)
	}
	if rtps.queue.Len() != 1 {
		t.Errorf("Expected only the first command queued, got %d", rtps.queue.Len())
	}

	// The server now answers ECHO 1; that reply must not satisfy ECHO 2
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go rtps.run(stop, &wg)
	defer func() {
		close(stop)
		wg.Wait()
	}()

	cli.timeout = time.Second
	deadline := time.Now().Add(time.Second)
	var reply [1]uint32
	for {
		n, err := cli.Request(server.CmdEcho, []uint32{2}, reply[:])
		if errors.Is(err, ErrBusy) && time.Now().Before(deadline) {
			runtime.Gosched()
			continue
		}
		if err != nil {
			t.Fatalf("Second request failed: %v", err)
		}
		if n != 1 || reply[0] != 2 {
			t.Errorf("Expected reply [2], got %d words %v", n, reply)
		}
		break
	}
	if first[0] != 0 {
		t.Errorf("Expected the timed-out buffer untouched, got %v", first)
	}
}

func TestRequestOnServerLink(t *testing.T) {
	_, _, srv, _ := pair(t)
	if _, err := srv.Request(server.CmdEcho, nil, nil); !errors.Is(err, ErrServerLink) {
		t.Errorf("Expected ErrServerLink, got %v", err)
	}
}

func TestConnectReleasesFirstSlotOnFailure(t *testing.T) {
	soc := sim.NewSoC()
	soc.AddMailbox(hppsBase, hppsIRQBase)
	rtps := newNode(soc, "rtps", 0)
	other := newNode(soc, "trch", 0)

	// Someone else owns the incoming instance
	if _, err := other.drv.Claim(mailbox.SlotConfig{
		Base: hppsBase, IRQBase: hppsIRQBase, Instance: 2, IntIndex: 0,
		Owner: 0x2d, Src: 0x2d, Dest: 0x2d, Dir: mailbox.Outgoing,
	}, mailbox.Ack(func() {})); err != nil {
		t.Fatalf("Setup claim failed: %v", err)
	}

	_, err := rtps.links.Connect(serverConfig())
	if !errors.Is(err, mailbox.ErrAlreadyOwned) {
		t.Fatalf("Expected ErrAlreadyOwned, got %v", err)
	}
	if rtps.drv.InUse() != 0 {
		t.Errorf("Expected outgoing slot released, %d still claimed", rtps.drv.InUse())
	}
	if rtps.links.InUse() != 0 {
		t.Error("Expected link state freed")
	}
	if soc.Mailbox(hppsBase).Config(3) != 0 {
		t.Error("Expected outgoing instance ownership cleared")
	}
}

func TestDisconnect(t *testing.T) {
	rtps, hpps, srv, cli := pair(t)

	if rtps.links.Find("hpps") != srv {
		t.Error("Expected to find the server link by label")
	}
	if err := hpps.links.Disconnect(cli); err != nil {
		t.Errorf("Client disconnect failed: %v", err)
	}
	if err := rtps.links.Disconnect(srv); err != nil {
		t.Errorf("Server disconnect failed: %v", err)
	}
	if err := rtps.links.Disconnect(srv); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("Expected ErrInvalidLink on second disconnect, got %v", err)
	}
	if rtps.drv.InUse() != 0 || hpps.drv.InUse() != 0 {
		t.Error("Expected all slots released")
	}
	if rtps.cpu.Intc().Enabled(hppsIRQBase+2) || rtps.cpu.Intc().Enabled(hppsIRQBase+3) {
		t.Error("Expected interrupt lines disabled")
	}
	if rtps.links.Find("hpps") != nil {
		t.Error("Expected no link after disconnect")
	}

	// The instances are claimable again
	if _, err := rtps.links.Connect(serverConfig()); err != nil {
		t.Errorf("Reconnect failed: %v", err)
	}
}

func TestLinkTableExhausted(t *testing.T) {
	soc := sim.NewSoC()
	soc.AddMailbox(hppsBase, hppsIRQBase)
	n := newNode(soc, "rtps", 0)

	for i := uint32(0); i < 2; i++ {
		cfg := serverConfig()
		cfg.InInstance, cfg.OutInstance = 10+2*i, 11+2*i
		if _, err := n.links.Connect(cfg); err != nil {
			t.Fatalf("Connect %d failed: %v", i, err)
		}
	}

	cfg := serverConfig()
	_, err := n.links.Connect(cfg)
	if !errors.Is(err, mailbox.ErrPoolExhausted) {
		t.Errorf("Expected ErrPoolExhausted, got %v", err)
	}
	if n.drv.InUse() != 4 {
		t.Errorf("Expected the first links untouched, got %d slots", n.drv.InUse())
	}
}

func TestQueueFullHalts(t *testing.T) {
	var reason string
	core.SetHaltHandler(func(r string) { reason = r })
	defer core.SetHaltHandler(nil)

	soc := sim.NewSoC()
	soc.AddMailbox(hppsBase, hppsIRQBase)
	n := newNode(soc, "rtps", 2)
	srv, err := n.links.Connect(serverConfig())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msg := make([]uint32, mailbox.MaxWords)
	msg[0] = server.CmdEcho
	srv.handleCommand(msg)
	if reason != "" {
		t.Fatalf("Expected first command queued, got halt %q", reason)
	}
	srv.handleCommand(msg)
	if reason != "failed to enqueue command" {
		t.Errorf("Expected halt on full queue, got %q", reason)
	}
}

func TestHandleCommandCopiesArgs(t *testing.T) {
	soc := sim.NewSoC()
	soc.AddMailbox(hppsBase, hppsIRQBase)
	n := newNode(soc, "rtps", 0)
	srv, err := n.links.Connect(serverConfig())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msg := make([]uint32, mailbox.MaxWords)
	for i := range msg {
		msg[i] = uint32(i + 1)
	}
	srv.handleCommand(msg)

	var cmd command.Command
	if err := n.queue.Dequeue(&cmd); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if cmd.Opcode != 1 || cmd.Args[0] != 2 || cmd.Args[command.MaxArgs-1] != mailbox.MaxWords {
		t.Errorf("Unexpected command %d %v", cmd.Opcode, cmd.Args)
	}
	if cmd.Reply != srv.Out() || cmd.Acked != &srv.ack {
		t.Error("Expected reply routed to the link's outgoing slot and ack flag")
	}
}
