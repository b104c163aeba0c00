package sas

import (
	"encoding/base64"
	"fmt"
)

// decodeChunk is the number of Base64 characters decoded per step. It is a multiple
// of four, so every chunk but the last one is a run of complete quanta.
const decodeChunk = 64

// decodedLen validates src as padded standard Base64 and returns the exact number of
// bytes it decodes to. Nothing is written outside a stack buffer.
func decodedLen(src []byte) (int, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("empty key: %w", ErrMalformedInput)
	}
	if len(src)%4 != 0 {
		return 0, fmt.Errorf("key length %d is not a multiple of 4: %w", len(src), ErrMalformedInput)
	}
	for i, c := range src {
		if c == '\r' || c == '\n' || (c == '=' && i < len(src)-2) {
			return 0, fmt.Errorf("illegal base64 data at input byte %d: %w", i, ErrMalformedInput)
		}
	}

	var tmp [decodeChunk / 4 * 3]byte
	total := 0
	for off := 0; off < len(src); off += decodeChunk {
		end := min(off+decodeChunk, len(src))
		n, err := base64.StdEncoding.Decode(tmp[:], src[off:end])
		if err != nil {
			return 0, fmt.Errorf("%v: %w", err, ErrMalformedInput)
		}
		total += n
	}
	clear(tmp[:])
	return total, nil
}

// decodeInto decodes the padded standard Base64 text src into dst and returns the
// number of bytes written. The input is validated before anything is written, then
// the exact decoded size is checked against len(dst).
func decodeInto(dst, src []byte) (int, error) {
	n, err := decodedLen(src)
	if err != nil {
		return 0, err
	}
	if n > len(dst) {
		return 0, fmt.Errorf("decoded key needs %d bytes, buffer has %d: %w", n, len(dst), ErrCapacityExceeded)
	}

	// all quanta but the last one decode to exactly three bytes
	head := len(src) - 4
	w, err := base64.StdEncoding.Decode(dst, src[:head])
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrMalformedInput)
	}
	var last [3]byte
	m, err := base64.StdEncoding.Decode(last[:], src[head:])
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ErrMalformedInput)
	}
	w += copy(dst[w:], last[:m])
	clear(last[:])
	return w, nil
}

// encodeInto writes the padded standard Base64 encoding of src into dst and
// returns the number of bytes written.
func encodeInto(dst, src []byte) (int, error) {
	n := base64.StdEncoding.EncodedLen(len(src))
	if n > len(dst) {
		return 0, fmt.Errorf("encoding needs %d bytes, buffer has %d: %w", n, len(dst), ErrCapacityExceeded)
	}
	base64.StdEncoding.Encode(dst, src)
	return n, nil
}
