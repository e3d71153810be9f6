// Package capture records raw packets to zstd-compressed files for offline
// inspection.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

var ErrCorrupt = errors.New("capture: corrupt record")

type Direction byte

const (
	Inbound  Direction = 1
	Outbound Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "in"
	case Outbound:
		return "out"
	default:
		return fmt.Sprintf("dir(%d)", byte(d))
	}
}

// Record is one packet seen on a channel. Channel 0 is reliable, 1 unreliable.
type Record struct {
	Time      time.Time
	Direction Direction
	Channel   byte
	PlayerID  int64
	Packet    []byte
}

// time(8) direction(1) channel(1) player(8) length(4)
const headerSize = 22

// maxPacket bounds a single record so a corrupt length cannot force a huge
// allocation.
const maxPacket = 1 << 20

// Writer appends records to a capture file. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
	hdr [headerSize]byte
}

// Create opens path for writing, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

func (w *Writer) Write(rec Record) error {
	if len(rec.Packet) > maxPacket {
		return fmt.Errorf("capture: packet of %d bytes exceeds limit", len(rec.Packet))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}

	binary.LittleEndian.PutUint64(w.hdr[0:], uint64(rec.Time.UnixNano()))
	w.hdr[8] = byte(rec.Direction)
	w.hdr[9] = rec.Channel
	binary.LittleEndian.PutUint64(w.hdr[10:], uint64(rec.PlayerID))
	binary.LittleEndian.PutUint32(w.hdr[18:], uint32(len(rec.Packet)))
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return err
	}
	_, err := w.w.Write(rec.Packet)
	return err
}

// Flush pushes buffered records through the compressor.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.w.Flush()
	err = errors.Join(err, w.enc.Close(), w.f.Close())
	w.w, w.enc, w.f = nil, nil, nil
	return err
}

// Reader iterates the records of a capture stream.
type Reader struct {
	dec    *zstd.Decoder
	r      *bufio.Reader
	hdr    [headerSize]byte
	closer io.Closer
}

// Open reads the capture file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{dec: dec, r: bufio.NewReader(dec)}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		return Record{}, err
	}

	n := binary.LittleEndian.Uint32(r.hdr[18:])
	if n > maxPacket {
		return Record{}, fmt.Errorf("%w: length %d", ErrCorrupt, n)
	}
	rec := Record{
		Time:      time.Unix(0, int64(binary.LittleEndian.Uint64(r.hdr[0:]))),
		Direction: Direction(r.hdr[8]),
		Channel:   r.hdr[9],
		PlayerID:  int64(binary.LittleEndian.Uint64(r.hdr[10:])),
		Packet:    make([]byte, n),
	}
	if _, err := io.ReadFull(r.r, rec.Packet); err != nil {
		return Record{}, fmt.Errorf("%w: truncated packet: %v", ErrCorrupt, err)
	}
	return rec, nil
}

func (r *Reader) Close() error {
	r.dec.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
