//go:build tinygo && rtps

package main

import (
	"device/arm"

	"rtps/config"
	"rtps/core"
	"rtps/firmware"
	"rtps/hal"
	"rtps/intc"
	"rtps/uart"
)

var fw *firmware.Firmware

func main() {
	sys := config.Default()
	var mmio hal.Physical

	board := firmware.Board{
		Mapper: mmio,
		Intc:   intc.NewGIC(mmio.Map(uintptr(sys.GICBase))),
		Lock:   &core.InterruptLock{},
		Reset:  softReset,
	}

	if sys.UARTBase != 0 {
		console := uart.NewCadence(mmio.Map(uintptr(sys.UARTBase)))
		console.Configure()
		core.SetDebugUART(console)
		board.Console = console
	} else {
		// Nothing to poll: sleep until a mailbox interrupt
		board.Wait = waitForInterrupt
	}

	core.DebugPrintln("R52 is alive")

	fw = firmware.New(sys, board)
	if err := fw.Boot(); err != nil {
		core.Halt("boot failed: " + err.Error())
	}
	fw.Run(nil)
}

// irqHandler is called by the startup code with the acknowledged IRQ number
//
//export irq_handler
func irqHandler(irq uint32) {
	if fw != nil {
		fw.Dispatch(irq)
	}
}

func waitForInterrupt() {
	arm.Asm("wfi")
}

// softReset requests a warm reset through HRMR. From EL1 the access traps,
// in which case the reply reports failure.
func softReset(target uint32) uint32 {
	core.DebugPrintln("Resetting...")
	arm.Asm("mov r1, #2\nmcr p15, 4, r1, c12, c0, 2")
	core.DebugPrintln("ERROR: soft reset failed")
	return 1
}
