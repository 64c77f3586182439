package protocol

// CRC16 is the CCITT variant used by the frame trailer, seeded with 0xFFFF
// and processed low nibble first
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}

// appendTrailer writes the CRC of frame and the sync byte
func appendTrailer(output OutputBuffer, frame []byte) {
	crc := CRC16(frame)
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}
