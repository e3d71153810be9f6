// Package frame implements the length-prefixed framing used on stream
// transports: [2-byte little-endian length][packet].
package frame

import (
	"encoding/binary"
	"errors"
)

const (
	HeaderSize = 2
	MaxSize    = 0xFFFF
)

var (
	ErrFrameTooLarge = errors.New("frame: packet exceeds maximum frame size")
	ErrEmptyFrame    = errors.New("frame: zero-length frame")
)

// Append writes the length prefix and packet to dst.
func Append(dst, packet []byte) ([]byte, error) {
	if len(packet) > MaxSize {
		return dst, ErrFrameTooLarge
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(packet)))
	return append(dst, packet...), nil
}

// Decoder reassembles frames from arbitrary stream chunks.
type Decoder struct {
	buf []byte
}

// Feed appends chunk to the pending bytes and calls emit once for every
// complete frame, in order. The slice passed to emit is only valid during the
// call. A zero-length frame is a stream error: the remaining bytes cannot be
// trusted.
func (d *Decoder) Feed(chunk []byte, emit func(packet []byte)) error {
	d.buf = append(d.buf, chunk...)

	off := 0
	for len(d.buf)-off >= HeaderSize {
		n := int(binary.LittleEndian.Uint16(d.buf[off:]))
		if n == 0 {
			d.buf = d.buf[:0]
			return ErrEmptyFrame
		}
		if len(d.buf)-off-HeaderSize < n {
			break
		}
		start := off + HeaderSize
		emit(d.buf[start : start+n])
		off = start + n
	}

	// Compact so the buffer does not grow without bound on long streams.
	rest := copy(d.buf, d.buf[off:])
	d.buf = d.buf[:rest]
	return nil
}

// Buffered reports how many bytes are waiting for the rest of their frame.
func (d *Decoder) Buffered() int { return len(d.buf) }
