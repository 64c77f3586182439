package mailbox

import (
	"errors"

	"rtps/core"
	"rtps/object"
)

var (
	// ErrAlreadyOwned matches an *OwnershipError
	ErrAlreadyOwned = errors.New("mailbox: instance already owned")

	// ErrIdentityMismatch means the hardware source/destination do not name us
	ErrIdentityMismatch = errors.New("mailbox: source/destination mismatch")

	// ErrMessageTooLong means the message does not fit the data registers
	ErrMessageTooLong = errors.New("mailbox: message too long")

	// ErrReleaseFailed means the owner could not clear the configuration
	ErrReleaseFailed = errors.New("mailbox: failed to release instance")

	// ErrInvalidSlot is returned for a nil or already released slot
	ErrInvalidSlot = errors.New("mailbox: invalid slot")

	// ErrInvalidCallback means the callback kind does not fit the direction
	ErrInvalidCallback = errors.New("mailbox: callback does not match direction")

	// ErrInvalidInstance is returned for instance or interrupt indices out of range
	ErrInvalidInstance = errors.New("mailbox: instance or interrupt index out of range")

	// ErrPoolExhausted means no slot or IP block record is free; it matches
	// object.ErrExhausted as well
	ErrPoolExhausted error = &exhaustedError{}
)

type exhaustedError struct{}

func (*exhaustedError) Error() string { return "mailbox: pool exhausted" }
func (*exhaustedError) Unwrap() error { return object.ErrExhausted }

// OwnershipError reports a failed owner claim and who holds the instance
type OwnershipError struct {
	Instance uint32
	Owner    uint32
}

func (e *OwnershipError) Error() string {
	return "mailbox: instance " + core.Utoa(e.Instance) + " already owned by 0x" + core.Hex32(e.Owner)
}

// Is makes errors.Is(err, ErrAlreadyOwned) hold
func (e *OwnershipError) Is(target error) bool {
	return target == ErrAlreadyOwned
}
