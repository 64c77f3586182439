// Package firmware wires the mailbox stack of one core together: driver,
// links, command queue, dispatcher and the optional console bridge. The
// board entry points and the simulator both run it.
package firmware

import (
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"rtps/bridge"
	"rtps/command"
	"rtps/config"
	"rtps/core"
	"rtps/hal"
	"rtps/intc"
	"rtps/link"
	"rtps/mailbox"
	"rtps/server"
)

// ErrSelfTest means a link answered the boot ECHO with the wrong word
var ErrSelfTest = errors.New("firmware: self-test reply mismatch")

// selfTestWord is the ECHO argument sent at boot
const selfTestWord = 42

// Board is what the platform provides
type Board struct {
	Mapper  hal.Mapper
	Intc    intc.Controller
	Lock    sync.Locker // masks this core's interrupts
	Console drivers.UART
	Reset   server.ResetHook
	Wait    func() // idles until the next interrupt
}

// Firmware is the running stack of one core
type Firmware struct {
	sys    *config.System
	board  Board
	drv    *mailbox.Driver
	queue  *command.Queue
	links  *link.Table
	disp   *command.Dispatcher
	srv    *server.Server
	bridge *bridge.Bridge
	errors uint32
}

// New builds the stack for sys. Nothing touches the hardware until Boot.
func New(sys *config.System, b Board) *Firmware {
	f := &Firmware{sys: sys, board: b}
	f.drv = mailbox.NewDriver(mailbox.Config{
		Mapper: b.Mapper,
		Intc:   b.Intc,
		Lock:   b.Lock,
	})
	f.queue = command.NewQueue(sys.QueueSize, b.Lock)
	f.links = link.NewTable(f.drv, f.queue, sys.MaxLinks)

	f.srv = server.New()
	if b.Reset != nil {
		f.srv.SetResetHook(b.Reset)
	}
	f.disp = command.NewDispatcher(f.queue, f.srv, f.drv)
	f.disp.AckTimeout = time.Duration(sys.AckTimeoutMS) * time.Millisecond

	if sys.Debug {
		core.SetDebugEnabled(true)
	}
	return f
}

// Dispatch is the interrupt vector entry point
func (f *Firmware) Dispatch(irq uint32) {
	if !f.drv.Dispatch(irq) {
		core.DebugPrintln("[FW] no ISR registered for IRQ #" + core.Utoa(irq))
	}
}

// Boot connects every link of the map, runs the self-tests of client links
// that ask for one and starts the console bridge over the client links
func (f *Firmware) Boot() error {
	core.DebugPrintln("[FW] " + f.sys.Name + " is alive")

	for _, l := range f.sys.Links {
		cfg, err := f.sys.LinkConfig(l)
		if err != nil {
			return err
		}
		if _, err := f.links.Connect(cfg); err != nil {
			core.DebugPrintln("[FW] failed to connect " + l.Label + ": " + err.Error())
			return err
		}
	}

	clients := f.sys.ClientLinks()
	requesters := make([]bridge.Requester, 0, len(clients))
	for _, l := range clients {
		lk := f.links.Find(l.Label)
		if l.SelfTest {
			if err := f.SelfTest(lk); err != nil {
				core.DebugPrintln("[FW] " + l.Label + " self-test failed: " + err.Error())
				return err
			}
		}
		requesters = append(requesters, lk)
	}

	if f.board.Console != nil {
		f.bridge = bridge.New(f.board.Console, requesters...)
	}
	core.DebugPrintln("[FW] Done.")
	return nil
}

// SelfTest sends ECHO 42 on l and checks the reply
func (f *Firmware) SelfTest(l *link.Link) error {
	core.DebugPrintln("[FW] sending ECHO " + core.Itoa(selfTestWord) + " to " + l.Label())

	var reply [1]uint32
	n, err := l.Request(server.CmdEcho, []uint32{selfTestWord}, reply[:])
	if err != nil {
		return err
	}
	if n != 1 || reply[0] != selfTestWord {
		return ErrSelfTest
	}
	core.DebugPrintln("[FW] " + l.Label() + " replied")
	return nil
}

// Step runs one main loop iteration. It reports whether there was work.
func (f *Firmware) Step() bool {
	took, err := f.disp.Poll()
	if err != nil {
		f.errors++
	}
	if f.bridge != nil && f.bridge.Poll() {
		took = true
	}
	return took
}

// Run is the main loop. It idles between interrupts and returns once stop
// is closed; firmware passes nil and never returns.
func (f *Firmware) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !f.Step() && f.board.Wait != nil {
			f.board.Wait()
		}
	}
}

// Links returns the link table
func (f *Firmware) Links() *link.Table { return f.links }

// Driver returns the mailbox driver
func (f *Firmware) Driver() *mailbox.Driver { return f.drv }

// Queue returns the command queue
func (f *Firmware) Queue() *command.Queue { return f.queue }

// Errors returns the number of commands that failed to complete
func (f *Firmware) Errors() uint32 { return f.errors }
