package protocol

import "bytes"

// Decoder splits a byte stream into frames. After a length, sequence, sync
// or CRC error it drops bytes up to the next sync byte.
type Decoder struct {
	lost bool

	// Errors counts the framing errors seen
	Errors uint32
}

// Next returns the first complete frame in data. consumed is the number of
// bytes the caller may drop, including discarded garbage. ok is false when
// data holds no complete frame yet.
func (d *Decoder) Next(data []byte) (seq uint8, payload []byte, consumed int, ok bool) {
	for consumed < len(data) {
		rest := data[consumed:]

		if d.lost {
			i := bytes.IndexByte(rest, MessageValueSync)
			if i < 0 {
				return 0, nil, len(data), false
			}
			consumed += i + 1
			d.lost = false
			continue
		}

		if rest[0] == MessageValueSync {
			consumed++
			continue
		}
		if len(rest) < MessageLengthMin {
			break
		}

		msgLen := int(rest[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.desync()
			continue
		}
		seq = rest[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}
		if len(rest) < msgLen {
			break
		}
		if rest[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}
		crc := uint16(rest[msgLen-MessageTrailerCRC])<<8 | uint16(rest[msgLen-MessageTrailerCRC+1])
		if crc != CRC16(rest[:msgLen-MessageTrailerSize]) {
			d.desync()
			continue
		}

		return seq, rest[MessageHeaderSize : msgLen-MessageTrailerSize], consumed + msgLen, true
	}
	return 0, nil, consumed, false
}

// Synchronized reports whether the decoder is aligned on frame boundaries
func (d *Decoder) Synchronized() bool { return !d.lost }

// Reset drops any error state
func (d *Decoder) Reset() { d.lost = false }

func (d *Decoder) desync() {
	d.lost = true
	d.Errors++
}

// EncodeFrame writes a complete frame with sequence seq around the payload
// produced by frameData
func EncodeFrame(output OutputBuffer, seq uint8, frameData func(output OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if frameData != nil {
		frameData(output)
	}
	frameLen := len(output.DataSince(cursor)) + MessageTrailerSize
	output.Update(cursor+MessagePositionLen, uint8(frameLen))
	appendTrailer(output, output.DataSince(cursor))
}
