package binio

import (
	"math"
)

// Writer is a growable write cursor. Writing past the current length extends
// the buffer, zero-filling any gap between the old end and the position.
type Writer struct {
	b      []byte
	pos    int64
	endian Endian
}

// NewWriter returns an empty writer.
func NewWriter(endian Endian) *Writer {
	return &Writer{endian: endian}
}

func (w *Writer) Pos() int64         { return w.pos }
func (w *Writer) Len() int64         { return int64(len(w.b)) }
func (w *Writer) Endian() Endian     { return w.endian }
func (w *Writer) SetEndian(e Endian) { w.endian = e }

// Bytes returns the written buffer. The slice aliases the writer's storage.
func (w *Writer) Bytes() []byte { return w.b }

// SetPos moves the cursor. Any position >= 0 is valid.
func (w *Writer) SetPos(p int64) {
	if p < 0 {
		p = 0
	}
	w.pos = p
}

func (w *Writer) reserve(n int) []byte {
	end := w.pos + int64(n)
	if end > int64(len(w.b)) {
		if end > int64(cap(w.b)) {
			grown := make([]byte, end, max(end, int64(cap(w.b))*2))
			copy(grown, w.b)
			w.b = grown
		} else {
			old := len(w.b)
			w.b = w.b[:end]
			clear(w.b[old:])
		}
	}
	out := w.b[w.pos:end]
	w.pos = end
	return out
}

// Write implements io.Writer. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	copy(w.reserve(len(p)), p)
	return len(p), nil
}

func (w *Writer) U8(v byte) { w.reserve(1)[0] = v }
func (w *Writer) I8(v int8) { w.U8(byte(v)) }

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
		return
	}
	w.U8(0)
}

func (w *Writer) U16(v uint16) { w.endian.Order().PutUint16(w.reserve(2), v) }
func (w *Writer) I16(v int16)  { w.U16(uint16(v)) }
func (w *Writer) U32(v uint32) { w.endian.Order().PutUint32(w.reserve(4), v) }
func (w *Writer) I32(v int32)  { w.U32(uint32(v)) }
func (w *Writer) U64(v uint64) { w.endian.Order().PutUint64(w.reserve(8), v) }
func (w *Writer) I64(v int64)  { w.U64(uint64(v)) }

func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// StringToNull writes s followed by a NUL terminator.
func (w *Writer) StringToNull(s string) {
	b := w.reserve(len(s) + 1)
	copy(b, s)
	b[len(s)] = 0
}

// AlignedString writes an int32 length, the bytes of s and 4-byte padding.
func (w *Writer) AlignedString(s string) {
	w.I32(int32(len(s)))
	copy(w.reserve(len(s)), s)
	w.Align(4)
}

// I32Array writes an int32 count followed by the values.
func (w *Writer) I32Array(v []int32) {
	w.I32(int32(len(v)))
	for _, x := range v {
		w.I32(x)
	}
}

// Align writes zero bytes up to the next multiple of n.
func (w *Writer) Align(n int64) {
	if n <= 1 {
		return
	}
	if m := w.pos % n; m != 0 {
		w.reserve(int(n - m))
	}
}

// PatchU32 overwrites 4 bytes at pos without moving the cursor.
func (w *Writer) PatchU32(pos int64, v uint32) {
	cur := w.pos
	w.pos = pos
	w.U32(v)
	w.pos = cur
}

// PatchI64 overwrites 8 bytes at pos without moving the cursor.
func (w *Writer) PatchI64(pos int64, v int64) {
	cur := w.pos
	w.pos = pos
	w.I64(v)
	w.pos = cur
}
