package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/zeusync/worldsync/internal/core/geom"
	"github.com/zeusync/worldsync/pkg/generic"
)

var (
	ErrEmpty       = errors.New("packet: empty buffer")
	ErrUnknownType = errors.New("packet: unknown type")
	ErrShortBuffer = errors.New("packet: read past end of buffer")
	ErrBadLength   = errors.New("packet: invalid length prefix")
)

// DecodeError reports where decoding of a single packet failed.
type DecodeError struct {
	Type   Type
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("packet: decode %s at offset %d: %v", e.Type, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Writer appends little-endian primitives to a growing buffer. The first byte
// is always the packet type.
type Writer struct {
	buf []byte
}

var writers = generic.NewPool(func() *Writer { return &Writer{buf: make([]byte, 0, 128)} }, func(w *Writer) { w.buf = w.buf[:0] })

// Bytes returns the encoded packet. It aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len is the encoded size so far, type byte included.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Byte(v byte) { w.buf = append(w.buf, v) }

// Bool writes one byte, 1 for true.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// Int16, Int32 and Int64 write two's complement little-endian integers.
func (w *Writer) Int16(v int16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v)) }

func (w *Writer) Int32(v int32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v)) }

func (w *Writer) Int64(v int64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }

// Float32 writes the IEEE 754 bits little-endian.
func (w *Writer) Float32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

// String writes an int32 byte length followed by the raw bytes.
func (w *Writer) String(v string) {
	w.Int32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// Vec3 writes X, Y, Z.
func (w *Writer) Vec3(v geom.Vec3) {
	w.Float32(v.X)
	w.Float32(v.Y)
	w.Float32(v.Z)
}

// Quat writes X, Y, Z, W.
func (w *Writer) Quat(q geom.Quat) {
	w.Float32(q.X)
	w.Float32(q.Y)
	w.Float32(q.Z)
	w.Float32(q.W)
}

// Color writes R, G, B. Alpha is not carried.
func (w *Writer) Color(c geom.Color) {
	w.Float32(c.R)
	w.Float32(c.G)
	w.Float32(c.B)
}

// Strings, Colors and Vec3s write an int32 element count followed by the
// elements. A nil slice encodes like an empty one.
func (w *Writer) Strings(v []string) {
	w.Int32(int32(len(v)))
	for _, s := range v {
		w.String(s)
	}
}

func (w *Writer) Colors(v []geom.Color) {
	w.Int32(int32(len(v)))
	for _, c := range v {
		w.Color(c)
	}
}

func (w *Writer) Vec3s(v []geom.Vec3) {
	w.Int32(int32(len(v)))
	for _, p := range v {
		w.Vec3(p)
	}
}

// Options writes a string map with keys in sorted order so equal maps encode
// to equal bytes.
func (w *Writer) Options(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.Int32(int32(len(keys)))
	for _, k := range keys {
		w.String(k)
		w.String(m[k])
	}
}

// DeltaVec3 writes the changed flag, then the value only when set.
func (w *Writer) DeltaVec3(d Delta[geom.Vec3]) {
	w.Bool(d.Changed)
	if d.Changed {
		w.Vec3(d.Value)
	}
}

// DeltaQuat is DeltaVec3 for rotations.
func (w *Writer) DeltaQuat(d Delta[geom.Quat]) {
	w.Bool(d.Changed)
	if d.Changed {
		w.Quat(d.Value)
	}
}

// Vec3Delta writes a changed flag and, only when cur differs from prev, the value.
func (w *Writer) Vec3Delta(cur, prev geom.Vec3) { w.DeltaVec3(DeltaOf(cur, prev)) }

// QuatDelta is Vec3Delta for rotations.
func (w *Writer) QuatDelta(cur, prev geom.Quat) { w.DeltaQuat(DeltaOf(cur, prev)) }

// Reader consumes primitives in the order a Writer produced them. The first
// failure sticks: later reads return zero values and Err reports the cause.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader reads a payload, the bytes that follow the type byte.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Err is the first failure, if any.
func (r *Reader) Err() error { return r.err }

// Offset is the number of bytes consumed.
func (r *Reader) Offset() int { return r.pos }

// Remaining is the number of bytes left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Byte and the fixed-width readers below return zero once Err is set.
func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool { return r.Byte() != 0 }

func (r *Reader) Int16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(b))
}

func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *Reader) Int64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *Reader) Float32() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// count reads a list length and checks that at least minSize bytes per
// element remain.
func (r *Reader) count(minSize int) int {
	n := r.Int32()
	if r.err != nil {
		return 0
	}
	if n < 0 || int(n)*minSize > r.Remaining() {
		r.err = ErrBadLength
		return 0
	}
	return int(n)
}

// Str reads a string written by Writer.String.
func (r *Reader) Str() string {
	n := r.count(1)
	if n == 0 {
		return ""
	}
	return string(r.take(n))
}

func (r *Reader) Vec3() geom.Vec3 {
	return geom.Vec3{X: r.Float32(), Y: r.Float32(), Z: r.Float32()}
}

func (r *Reader) Quat() geom.Quat {
	return geom.Quat{X: r.Float32(), Y: r.Float32(), Z: r.Float32(), W: r.Float32()}
}

func (r *Reader) Color() geom.Color {
	return geom.Color{R: r.Float32(), G: r.Float32(), B: r.Float32()}
}

// Strings, Colors and Vec3s reject counts the remaining bytes cannot hold,
// so a corrupt prefix never triggers a large allocation.
func (r *Reader) Strings() []string {
	n := r.count(4)
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.Str()
	}
	return out
}

func (r *Reader) Colors() []geom.Color {
	n := r.count(12)
	if n == 0 {
		return nil
	}
	out := make([]geom.Color, n)
	for i := range out {
		out[i] = r.Color()
	}
	return out
}

func (r *Reader) Vec3s() []geom.Vec3 {
	n := r.count(12)
	if n == 0 {
		return nil
	}
	out := make([]geom.Vec3, n)
	for i := range out {
		out[i] = r.Vec3()
	}
	return out
}

// Options returns nil for an empty map.
func (r *Reader) Options() map[string]string {
	n := r.count(8)
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k := r.Str()
		out[k] = r.Str()
	}
	return out
}

// DeltaVec3 and DeltaQuat mirror the Writer methods of the same name.
func (r *Reader) DeltaVec3() Delta[geom.Vec3] {
	if !r.Bool() {
		return Delta[geom.Vec3]{}
	}
	return Delta[geom.Vec3]{Changed: true, Value: r.Vec3()}
}

func (r *Reader) DeltaQuat() Delta[geom.Quat] {
	if !r.Bool() {
		return Delta[geom.Quat]{}
	}
	return Delta[geom.Quat]{Changed: true, Value: r.Quat()}
}

// Delta is a field that is only present on the wire when it changed.
type Delta[T comparable] struct {
	Changed bool
	Value   T
}

// DeltaOf marks cur as changed when it differs from prev.
func DeltaOf[T comparable](cur, prev T) Delta[T] {
	if cur == prev {
		return Delta[T]{}
	}
	return Delta[T]{Changed: true, Value: cur}
}

// Full marks v as changed unconditionally.
func Full[T comparable](v T) Delta[T] {
	return Delta[T]{Changed: true, Value: v}
}

// Or returns the carried value, or prev when nothing changed.
func (d Delta[T]) Or(prev T) T {
	if d.Changed {
		return d.Value
	}
	return prev
}

// Encode serializes m as [type][payload].
func Encode(m Message) []byte {
	w := writers.Get()
	defer writers.Put(w)

	w.Byte(byte(m.Type()))
	m.encode(w)

	out := make([]byte, w.Len())
	copy(out, w.Bytes())
	return out
}

// Decode parses a [type][payload] buffer into its message variant.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	t := Type(b[0])
	m := newMessage(t)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, b[0])
	}

	r := NewReader(b[1:])
	m.decode(r)
	if err := r.Err(); err != nil {
		return nil, &DecodeError{Type: t, Offset: r.Offset() + 1, Err: err}
	}
	return m, nil
}
