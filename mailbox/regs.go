package mailbox

// Per-instance register offsets
const (
	regConfig      = 0x00
	regIntEnable   = 0x04
	regEventCause  = 0x08
	regEventClear  = 0x08 // write alias of cause
	regEventStatus = 0x0C
	regEventSet    = 0x0C // write alias of status
	regData        = 0x20
)

// IP block geometry
const (
	MaxWords       = 16                   // data registers per instance
	InstanceRegion = regData + MaxWords*4 // byte stride between instances
	Instances      = 32                   // instances per IP block
	IntIndices     = 16                   // interrupt lines per IP block
	DefaultBlocks  = 2                    // LSIO and HPPS
	DefaultSlots   = DefaultBlocks * Instances
)

// Events
const (
	EventA = 0x1 // request
	EventB = 0x2 // acknowledge
)

// Configuration register fields
const (
	ConfigUnsecure = 0x1

	configOwnerShift = 8
	configOwnerMask  = 0xff << configOwnerShift
	configSrcShift   = 16
	configSrcMask    = 0xff << configSrcShift
	configDestShift  = 24
	configDestMask   = 0xff << configDestShift
)

// IntA returns the interrupt-enable bit routing event A to interrupt idx
func IntA(idx uint32) uint32 {
	return 1 << (2 * idx)
}

// IntB returns the interrupt-enable bit routing event B to interrupt idx
func IntB(idx uint32) uint32 {
	return 1 << (2*idx + 1)
}

// EncodeConfig builds a configuration register value
func EncodeConfig(owner, src, dest uint32) uint32 {
	return ConfigUnsecure |
		((owner << configOwnerShift) & configOwnerMask) |
		((src << configSrcShift) & configSrcMask) |
		((dest << configDestShift) & configDestMask)
}

// ConfigOwner extracts the owner field
func ConfigOwner(val uint32) uint32 {
	return (val & configOwnerMask) >> configOwnerShift
}

// ConfigSrc extracts the source field
func ConfigSrc(val uint32) uint32 {
	return (val & configSrcMask) >> configSrcShift
}

// ConfigDest extracts the destination field
func ConfigDest(val uint32) uint32 {
	return (val & configDestMask) >> configDestShift
}

// InstanceOffset is the byte offset of an instance within its IP block
func InstanceOffset(instance uint32) uint32 {
	return instance * InstanceRegion
}
