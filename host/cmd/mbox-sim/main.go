// mbox-sim runs the TRCH, RTPS and HPPS firmware on a simulated chiplet and
// exposes one core's console bridge on a TCP port for mbox-console.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"rtps/config"
	"rtps/core"
	"rtps/firmware"
	"rtps/sim"
)

var (
	listen  = flag.String("listen", "127.0.0.1:7300", "Console listen address")
	target  = flag.String("console", "rtps", "Core whose console is exposed (rtps, hpps)")
	debug   = flag.Bool("debug", false, "Print firmware debug output")
	timeout = flag.Int("timeout-ms", 1000, "Link request timeout in milliseconds")
)

// boot order: every core's peers must own their instances before it claims
var cores = []string{"trch", "rtps", "hpps"}

func main() {
	flag.Parse()

	if *debug {
		core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
		core.SetDebugEnabled(true)
	}
	core.SetHaltHandler(func(reason string) {
		fmt.Fprintf(os.Stderr, "PANIC HALT: %s\n", reason)
		core.DumpEventRing()
		os.Exit(2)
	})

	soc := sim.NewSoC()
	soc.AddMailbox(0x3000a000, 72)
	soc.AddMailbox(0xf9220000, 136)

	out := &switchWriter{}
	uart := sim.NewUART(out)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, name := range cores {
		sys, _ := config.Preset(name)
		for i := range sys.Links {
			sys.Links[i].TimeoutMS = uint32(*timeout)
		}

		cpu := soc.NewCore(name)
		board := firmware.Board{
			Mapper: cpu.Mapper(),
			Intc:   cpu.Intc(),
			Lock:   cpu,
			Wait:   func() { cpu.WaitForInterrupt(time.Millisecond) },
			Reset: func(t uint32) uint32 {
				fmt.Printf("%s: reset request for target %d\n", cpu.Name(), t)
				return 0
			},
		}
		if name == *target {
			board.Console = uart
		}

		fw := firmware.New(sys, board)
		cpu.SetVector(fw.Dispatch)
		if err := fw.Boot(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s boot failed: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("%s: booted, %d link(s)\n", name, fw.Links().InUse())

		wg.Add(1)
		go func() {
			defer wg.Done()
			fw.Run(stop)
		}()
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s console on tcp://%s\n", *target, ln.Addr())
	go serve(ln, uart, out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	ln.Close()
	close(stop)
	wg.Wait()
	fmt.Printf("%d mailbox events\n", core.EventCount())
}

// serve attaches one console connection at a time to the UART
func serve(ln net.Listener, uart *sim.UART, out *switchWriter) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fmt.Printf("console connected from %s\n", conn.RemoteAddr())
		out.set(conn)
		io.Copy(uart.Input(), conn)
		out.set(nil)
		conn.Close()
		fmt.Println("console disconnected")
	}
}

// switchWriter forwards to the current connection, or drops the bytes
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}
