package sim

import (
	"sync"
	"testing"

	"rtps/intc"
	"rtps/mailbox"
)

const (
	testBase    = 0x3000a000
	testIRQBase = 72
)

func TestDistributorAliases(t *testing.T) {
	dist := &Distributor{}
	gic := intc.NewGIC(dist)

	gic.Enable(72, intc.Edge)
	gic.Enable(75, intc.Level)
	if !gic.Enabled(72) || !gic.Enabled(75) {
		t.Fatal("Expected both lines enabled")
	}
	if !dist.Edge(72+intc.SPIOffset) || dist.Edge(75+intc.SPIOffset) {
		t.Error("Expected 72 edge and 75 level")
	}

	gic.Disable(72)
	if gic.Enabled(72) {
		t.Error("Expected 72 disabled")
	}
	if !gic.Enabled(75) {
		t.Error("Disabling 72 must not touch 75")
	}
	if !dist.Edge(72 + intc.SPIOffset) {
		t.Error("Disable must leave the trigger configuration")
	}
}

func TestMailboxConfigOwnership(t *testing.T) {
	m := NewMailbox(testBase, testIRQBase, func(uint32) {})
	off := mailbox.InstanceOffset(3)

	first := mailbox.EncodeConfig(0x80, 0x80, 0x2e)
	m.Write32(off, first)
	if m.Read32(off) != first {
		t.Fatalf("Expected free instance to accept config, got %#x", m.Read32(off))
	}

	// Different owner is rejected
	m.Write32(off, mailbox.EncodeConfig(0x2e, 0x2e, 0x80))
	if m.Read32(off) != first {
		t.Errorf("Expected foreign owner write to be ignored, got %#x", m.Read32(off))
	}

	// Same owner may reprogram
	second := mailbox.EncodeConfig(0x80, 0x80, 0x2f)
	m.Write32(off, second)
	if m.Read32(off) != second {
		t.Errorf("Expected owner to reprogram, got %#x", m.Read32(off))
	}

	m.Write32(off, 0)
	if m.Config(3) != 0 {
		t.Errorf("Expected clear, got %#x", m.Config(3))
	}
	if m.Writes(3) != 4 {
		t.Errorf("Expected 4 writes, got %d", m.Writes(3))
	}
}

func TestMailboxEventRouting(t *testing.T) {
	var raised []uint32
	m := NewMailbox(testBase, testIRQBase, func(irq uint32) { raised = append(raised, irq) })
	off := mailbox.InstanceOffset(1)

	m.Write32(off+offIntEnable, mailbox.IntA(2)|mailbox.IntB(3))

	m.Write32(off+offStatus, mailbox.EventA)
	if len(raised) != 1 || raised[0] != testIRQBase+2 {
		t.Fatalf("Expected IRQ %d, got %v", testIRQBase+2, raised)
	}

	m.Write32(off+offStatus, mailbox.EventB)
	if len(raised) != 2 || raised[1] != testIRQBase+3 {
		t.Fatalf("Expected IRQ %d, got %v", testIRQBase+3, raised)
	}

	if got := m.Read32(off + offEvent); got != mailbox.EventA|mailbox.EventB {
		t.Errorf("Expected cause A|B, got %#x", got)
	}
	m.Write32(off+offEvent, mailbox.EventA)
	if got := m.Status(1); got != mailbox.EventB {
		t.Errorf("Expected only B left, got %#x", got)
	}
}

func TestCoreDeliveryMasked(t *testing.T) {
	soc := NewSoC()
	c := soc.NewCore("rtps")

	var mu sync.Mutex
	var taken []uint32
	c.SetVector(func(irq uint32) {
		mu.Lock()
		taken = append(taken, irq)
		mu.Unlock()
	})

	// Disabled line is dropped
	soc.Raise(74)
	if c.Taken() != 0 || c.Pending(74) {
		t.Fatal("Expected disabled line to be ignored")
	}

	c.Intc().Enable(74, intc.Edge)
	c.Lock()
	soc.Raise(74)
	if !c.Pending(74) {
		t.Error("Expected IRQ to stay pending while masked")
	}
	if c.Taken() != 0 {
		t.Error("Expected no delivery while masked")
	}
	c.Unlock()

	if c.Pending(74) {
		t.Error("Expected IRQ delivered on unmask")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(taken) != 1 || taken[0] != 74 {
		t.Errorf("Expected [74], got %v", taken)
	}
}

func TestCoreHandlersDoNotNest(t *testing.T) {
	soc := NewSoC()
	c := soc.NewCore("rtps")
	c.Intc().Enable(72, intc.Edge)
	c.Intc().Enable(73, intc.Edge)

	var order []uint32
	depth := 0
	c.SetVector(func(irq uint32) {
		depth++
		if depth > 1 {
			t.Errorf("Handler for %d nested", irq)
		}
		order = append(order, irq)
		if irq == 72 {
			// Raised from within a handler: must wait for it to finish
			soc.Raise(73)
		}
		depth--
	})

	soc.Raise(72)
	if len(order) != 2 || order[0] != 72 || order[1] != 73 {
		t.Errorf("Expected [72 73], got %v", order)
	}
}
