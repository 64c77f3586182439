package protocol

import "errors"

var (
	ErrBufferTooSmall = errors.New("protocol: truncated VLQ")
	ErrTooManyWords   = errors.New("protocol: too many words in payload")
)

// EncodeVLQInt writes v most significant group first. Values in
// [-32, 96) take a single byte.
func EncodeVLQInt(output OutputBuffer, v int32) {
	if !(-(1<<26) <= v && v < (3<<26)) {
		output.Output([]byte{byte((v>>28)&0x7F) | 0x80})
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		output.Output([]byte{byte((v>>21)&0x7F) | 0x80})
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		output.Output([]byte{byte((v>>14)&0x7F) | 0x80})
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		output.Output([]byte{byte((v>>7)&0x7F) | 0x80})
	}
	output.Output([]byte{byte(v & 0x7F)})
}

// EncodeVLQUint writes v reinterpreted as signed, so words with the top bit
// set stay short
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value and advances data past it
func DecodeVLQInt(data *[]byte) (int32, error) {
	if len(*data) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(*data) == 0 {
			return 0, ErrBufferTooSmall
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = v<<7 | c&0x7F
	}
	return int32(v), nil
}

// DecodeVLQUint reads one word
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeWords writes each word in turn
func EncodeWords(output OutputBuffer, words ...uint32) {
	for _, w := range words {
		EncodeVLQUint(output, w)
	}
}

// DecodeWords decodes a whole payload into dst and returns the word count.
// It fails if the payload holds more words than dst.
func DecodeWords(payload []byte, dst []uint32) (int, error) {
	n := 0
	for len(payload) > 0 {
		if n == len(dst) {
			return n, ErrTooManyWords
		}
		w, err := DecodeVLQUint(&payload)
		if err != nil {
			return n, err
		}
		dst[n] = w
		n++
	}
	return n, nil
}
