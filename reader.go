package npk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Reader provides sequential little-endian reads over an in-memory buffer.
// Every read checks the remaining length first; a failed read reports the byte
// offset at which the shortage was detected and consumes nothing.
// A Reader is not safe for concurrent use. Create multiple readers over the
// same buffer if concurrent access is needed.
type Reader struct {
	buf []byte
	off int
}

// ErrFormat is returned when a buffer is structurally malformed: truncated
// fields, a bad magic number, an unexpected terminator, or an unknown type
// code. Decoding stops at the first such error and partial results are
// discarded.
var ErrFormat = errors.New("npk: invalid format")

// ErrEncoding is returned when a name table entry or string value holds bytes
// that are not valid UTF-8. The offending bytes are included in the message.
var ErrEncoding = errors.New("npk: invalid text encoding")

// bo is the byte order of every multi-byte field in the container family.
var bo = binary.LittleEndian

// NewReader returns a Reader positioned at the start of buf. The Reader
// aliases buf and never writes to it.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current byte position.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Take consumes the next n bytes and returns them as a subslice of the
// underlying buffer.
func (r *Reader) Take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrFormat, n, r.off, r.Remaining())
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

// ReadUint8 consumes one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.Take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 consumes a little-endian unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.Take(2)
	if err != nil {
		return 0, err
	}
	return bo.Uint16(b), nil
}

// ReadUint32 consumes a little-endian unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.Take(4)
	if err != nil {
		return 0, err
	}
	return bo.Uint32(b), nil
}

// ReadUint64 consumes a little-endian unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.Take(8)
	if err != nil {
		return 0, err
	}
	return bo.Uint64(b), nil
}

// ReadInt32 consumes a little-endian signed 32-bit integer (two's complement).
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadFloat32 consumes a little-endian IEEE-754 single-precision float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadUvarint consumes a base-128 variable-length unsigned integer: each byte
// contributes its low seven bits, least significant group first, and a set
// high bit continues the sequence. Groups past the 64-bit accumulator are
// discarded rather than rejected, so over-long encodings decode to their low
// 64 bits. The only failure is the buffer ending while the continuation bit
// is still set.
func (r *Reader) ReadUvarint() (uint64, error) {
	start := r.off
	var v uint64
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadUint8()
		if err != nil {
			r.off = start
			return 0, fmt.Errorf("%w: truncated varint at offset %d", ErrFormat, start)
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

// ReadCString consumes bytes up to and including the next NUL terminator and
// returns the bytes before it.
func (r *Reader) ReadCString() ([]byte, error) {
	i := bytes.IndexByte(r.buf[r.off:], 0)
	if i < 0 {
		return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrFormat, r.off)
	}
	b := r.buf[r.off : r.off+i : r.off+i]
	r.off += i + 1
	return b, nil
}

// ReadString consumes a NUL-terminated string and validates it as UTF-8.
func (r *Reader) ReadString() (string, error) {
	start := r.off
	b, err := r.ReadCString()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: string at offset %d is not UTF-8: % x",
			ErrEncoding, start, b)
	}
	return string(b), nil
}
