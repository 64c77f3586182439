// Package protocol implements the framed console protocol a host uses to
// drive mailbox links on the firmware over a serial line.
//
// A frame is
//
//	[len][seq][payload...][crc16 hi][crc16 lo][0x7E]
//
// where len counts the whole frame and seq is 0x10|n. The payload is a run of
// VLQ encoded 32-bit words. A request payload is the link index, the opcode
// and its arguments; the response carries the request's sequence and a
// payload of a status word followed by the reply words.
package protocol

// Version of the console protocol
const Version = "0.1.0"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 128
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax sizes scratch output buffers
	MessageMax = 256

	// MaxFrameWords is the most words that fit one payload at the widest
	// VLQ encoding
	MaxFrameWords = (MessageLengthMax - MessageLengthMin) / 5
)

// Status is the first word of every response payload
type Status uint32

const (
	StatusOK Status = iota
	StatusUnknownLink
	StatusTooLong
	StatusTimeout
	StatusTransport
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnknownLink:
		return "unknown link"
	case StatusTooLong:
		return "message too long"
	case StatusTimeout:
		return "timeout"
	case StatusTransport:
		return "transport error"
	case StatusBusy:
		return "link busy"
	}
	return "status " + utoa(uint32(s))
}

// NextSequence advances a sequence byte within 0x10-0x1F
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

func utoa(v uint32) string {
	var buf [10]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return string(buf[i:])
}
