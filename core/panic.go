package core

// HaltHandler is called once the halt reason has been printed
type HaltHandler func(reason string)

var haltHandler HaltHandler = defaultHalt

// SetHaltHandler replaces the platform halt behavior (tests use this to
// observe fatal conditions instead of stopping the process)
func SetHaltHandler(h HaltHandler) {
	if h == nil {
		h = defaultHalt
	}
	haltHandler = h
}

// Halt stops the firmware. There is no supervisor to restart us, so this is
// the escalation path for conditions the protocol cannot report back.
func Halt(reason string) {
	debugPrintln("PANIC HALT: " + reason)
	haltHandler(reason)
}

// Assert halts when an invariant does not hold
func Assert(cond bool, msg string) {
	if !cond {
		Halt("ASSERT: " + msg)
	}
}
