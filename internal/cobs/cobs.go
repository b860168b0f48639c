// Package cobs implements Consistent Overhead Byte Stuffing. Stuffed
// frames contain no interior zero byte, so a reader that lands
// mid-stream — a truncated storage record, a corrupted byte on the
// debug serial channel — can resynchronize on the next zero.
package cobs

import "fmt"

// Encode removes every zero byte from data by replacing runs between
// zeroes with a length-prefix byte.
func Encode(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/254+2)
	codeIdx := len(out)
	out = append(out, 0) // placeholder for the first code byte
	code := byte(1)

	for _, b := range data {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 0xff {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}
	out[codeIdx] = code
	return out
}

// Decode reverses Encode. It returns an error if the frame is malformed
// (a code byte whose run length overruns the buffer).
func Decode(frame []byte) ([]byte, error) {
	out := make([]byte, 0, len(frame))
	i := 0
	for i < len(frame) {
		code := int(frame[i])
		if code == 0 {
			return nil, fmt.Errorf("cobs: zero code byte at %d", i)
		}
		i++
		if i+code-1 > len(frame) {
			return nil, fmt.Errorf("cobs: code %d overruns frame at %d", code, i-1)
		}
		out = append(out, frame[i:i+code-1]...)
		i += code - 1
		if code < 0xff && i < len(frame) {
			out = append(out, 0)
		}
	}
	return out, nil
}

// Frame encodes data and appends the single zero delimiter byte used to
// mark frame boundaries on the wire.
func Frame(data []byte) []byte {
	enc := Encode(data)
	return append(enc, 0)
}

// Unframe strips the trailing zero delimiter (if present) and decodes
// the remaining COBS-encoded payload.
func Unframe(frame []byte) ([]byte, error) {
	if n := len(frame); n > 0 && frame[n-1] == 0 {
		frame = frame[:n-1]
	}
	return Decode(frame)
}
