package core

import (
	"sync/atomic"

	"tinygo.org/x/drivers"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// EventKind identifies a mailbox event in the trace ring
type EventKind uint8

// Event kinds
const (
	EvtClaim   EventKind = 1 // Slot claimed
	EvtRelease EventKind = 2 // Slot released
	EvtSend    EventKind = 3 // Message written, event A raised
	EvtReceive EventKind = 4 // Event A serviced on an incoming slot
	EvtAck     EventKind = 5 // Event B serviced on an outgoing slot
	EvtEnqueue EventKind = 6 // Command queued from interrupt context
	EvtDequeue EventKind = 7 // Command taken by the main loop
	EvtReply   EventKind = 8 // Reply sent by the dispatcher
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

// eventSlot holds one trace entry. Fields are stored individually so that an
// interrupt handler can record while the main loop dumps; a dump racing with
// a record may show a torn entry, never a corrupted ring.
type eventSlot struct {
	kind     atomic.Uint32
	instance atomic.Uint32
	value1   atomic.Uint32
	value2   atomic.Uint32
}

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled atomic.Bool

	eventRing     [EventRingSize]eventSlot
	eventRingHead atomic.Uint32
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(s string) {}
	}
	debugPrintln = writer
}

// SetDebugUART routes debug output to a UART, one line per message
func SetDebugUART(uart drivers.UART) {
	SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled.Load() {
		debugPrintln(msg)
	}
}

// RecordEvent captures a mailbox event in the trace ring.
// Never blocks; safe from interrupt context.
func RecordEvent(kind EventKind, instance, value1, value2 uint32) {
	idx := (eventRingHead.Add(1) - 1) % EventRingSize
	slot := &eventRing[idx]
	slot.kind.Store(uint32(kind))
	slot.instance.Store(instance)
	slot.value1.Store(value1)
	slot.value2.Store(value2)
}

// EventName returns a short printable name for an event kind
func EventName(kind EventKind) string {
	switch kind {
	case EvtClaim:
		return "CLAIM"
	case EvtRelease:
		return "RELEASE"
	case EvtSend:
		return "SEND"
	case EvtReceive:
		return "RECEIVE"
	case EvtAck:
		return "ACK"
	case EvtEnqueue:
		return "ENQUEUE"
	case EvtDequeue:
		return "DEQUEUE"
	case EvtReply:
		return "REPLY"
	default:
		return "UNKNOWN"
	}
}

// DumpEventRing outputs the trace ring oldest to newest, regardless of
// whether debug output is enabled (call on halt or from a console command)
func DumpEventRing() {
	debugPrintln("[TRACE] === Mailbox Event Dump ===")

	start := eventRingHead.Load()
	for i := uint32(0); i < EventRingSize; i++ {
		evt := &eventRing[(start+i)%EventRingSize]
		kind := EventKind(evt.kind.Load())
		if kind == 0 {
			continue // Empty slot
		}
		debugPrintln("[TRACE] " + EventName(kind) +
			" inst=" + Utoa(evt.instance.Load()) +
			" v1=" + Hex32(evt.value1.Load()) +
			" v2=" + Hex32(evt.value2.Load()))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// EventCount returns how many events have been recorded since the last clear
func EventCount() uint32 {
	return eventRingHead.Load()
}

// ClearEventRing clears the trace buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i].kind.Store(0)
		eventRing[i].instance.Store(0)
		eventRing[i].value1.Store(0)
		eventRing[i].value2.Store(0)
	}
	eventRingHead.Store(0)
}
