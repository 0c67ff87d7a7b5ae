// Package binio implements the positioned byte cursors every container codec
// reads and writes through.
package binio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ErrOutOfData is returned when a read or seek would pass the end of the
// buffer. It wraps io.ErrUnexpectedEOF.
var ErrOutOfData = fmt.Errorf("binio: out of data: %w", io.ErrUnexpectedEOF)

// Endian selects the byte order of multi-byte primitives.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

// Order returns the encoding/binary order for e.
func (e Endian) Order() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (e Endian) String() string {
	if e == LittleEndian {
		return "little"
	}
	return "big"
}

// Reader is a read cursor over a byte slice. Nested readers created with Sub
// alias the parent's bytes but keep their own position and base offset.
type Reader struct {
	b      []byte
	pos    int64
	base   int64
	endian Endian
}

// NewReader returns a reader positioned at 0.
func NewReader(b []byte, endian Endian) *Reader {
	return &Reader{b: b, endian: endian}
}

// InRange reports whether [off, off+n) lies within a buffer of size length.
// The sum is never formed, so huge values cannot wrap.
func InRange(off, n, length int64) bool {
	return off >= 0 && n >= 0 && off <= length && n <= length-off
}

// Sub returns a reader over n bytes starting at off (relative to r). The new
// reader inherits r's endianness.
func (r *Reader) Sub(off, n int64) (*Reader, error) {
	if !InRange(off, n, int64(len(r.b))) {
		return nil, fmt.Errorf("sub reader [%d:+%d] of %d: %w", off, n, len(r.b), ErrOutOfData)
	}
	return &Reader{b: r.b[off : off+n], base: r.base + off, endian: r.endian}, nil
}

func (r *Reader) Pos() int64         { return r.pos }
func (r *Reader) Base() int64        { return r.base }
func (r *Reader) AbsPos() int64      { return r.base + r.pos }
func (r *Reader) Len() int64         { return int64(len(r.b)) }
func (r *Reader) Remaining() int64   { return int64(len(r.b)) - r.pos }
func (r *Reader) Endian() Endian     { return r.endian }
func (r *Reader) SetEndian(e Endian) { r.endian = e }
func (r *Reader) Bytes() []byte      { return r.b }

// SetPos moves the cursor. Positions past the end are rejected.
func (r *Reader) SetPos(p int64) error {
	if p < 0 || p > int64(len(r.b)) {
		return fmt.Errorf("seek to %d of %d: %w", p, len(r.b), ErrOutOfData)
	}
	r.pos = p
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int64) error {
	return r.SetPos(r.pos + n)
}

// Align advances the cursor to the next multiple of n.
func (r *Reader) Align(n int64) error {
	if n <= 1 {
		return nil
	}
	if m := r.pos % n; m != 0 {
		return r.SetPos(r.pos + n - m)
	}
	return nil
}

// Read returns the next n bytes without copying.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 || r.pos+int64(n) > int64(len(r.b)) {
		return nil, fmt.Errorf("read %d bytes at %d of %d: %w", n, r.pos, len(r.b), ErrOutOfData)
	}
	out := r.b[r.pos : r.pos+int64(n)]
	r.pos += int64(n)
	return out, nil
}

// ReadCopy returns a copy of the next n bytes.
func (r *Reader) ReadCopy(n int) ([]byte, error) {
	b, err := r.Read(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

func (r *Reader) U8() (byte, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.Read(2)
	if err != nil {
		return 0, err
	}
	return r.endian.Order().Uint16(b), nil
}

func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return r.endian.Order().Uint32(b), nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return r.endian.Order().Uint64(b), nil
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	return math.Float64frombits(v), err
}

// BytesToNull reads up to the next NUL and consumes it.
func (r *Reader) BytesToNull() ([]byte, error) {
	i := bytes.IndexByte(r.b[r.pos:], 0)
	if i < 0 {
		return nil, fmt.Errorf("unterminated string at %d: %w", r.pos, ErrOutOfData)
	}
	out := r.b[r.pos : r.pos+int64(i)]
	r.pos += int64(i) + 1
	return out, nil
}

func (r *Reader) StringToNull() (string, error) {
	b, err := r.BytesToNull()
	return string(b), err
}

// BytesToNullMax reads at most max bytes, stopping after the first NUL. A
// missing terminator is not an error; the cursor then advances by the bytes
// actually available, up to max.
func (r *Reader) BytesToNullMax(max int) []byte {
	end := r.pos + int64(max)
	if end > int64(len(r.b)) {
		end = int64(len(r.b))
	}
	window := r.b[r.pos:end]
	if i := bytes.IndexByte(window, 0); i >= 0 {
		r.pos += int64(i) + 1
		return window[:i]
	}
	r.pos = end
	return window
}

// AlignedString reads an int32 length-prefixed string followed by 4-byte
// alignment padding.
func (r *Reader) AlignedString() (string, error) {
	n, err := r.I32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("negative string length %d: %w", n, ErrOutOfData)
	}
	b, err := r.Read(int(n))
	if err != nil {
		return "", err
	}
	if err := r.Align(4); err != nil {
		return "", err
	}
	return string(b), nil
}

// I32Array reads an int32 count followed by that many int32 values.
func (r *Reader) I32Array() ([]int32, error) {
	n, err := r.I32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int64(n)*4 > r.Remaining() {
		return nil, fmt.Errorf("int32 array of %d: %w", n, ErrOutOfData)
	}
	out := make([]int32, n)
	for i := range out {
		if out[i], err = r.I32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
