package typetree

import (
	"fmt"
	"math"

	"github.com/eichs/unitypack/internal/binio"
)

// ReadDocument decodes the object described by root at the cursor.
func ReadDocument(r *binio.Reader, root *Node) (*Document, error) {
	v, err := ReadValue(r, root)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(*Document)
	if !ok {
		return nil, fmt.Errorf("%w: root %s is not a class", ErrMalformed, root.Type)
	}
	return doc, nil
}

// ReadValue decodes one field described by n at the cursor.
func ReadValue(r *binio.Reader, n *Node) (any, error) {
	v, err := readValue(r, n)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", n.Type, n.Name, err)
	}
	return v, nil
}

func readValue(r *binio.Reader, n *Node) (any, error) {
	var (
		v   any
		err error
	)
	switch n.Type {
	case "bool":
		v, err = r.Bool()
	case "SInt8":
		v, err = r.I8()
	case "UInt8", "char":
		v, err = r.U8()
	case "SInt16", "short":
		v, err = r.I16()
	case "UInt16", "unsigned short":
		v, err = r.U16()
	case "SInt32", "int":
		v, err = r.I32()
	case "UInt32", "unsigned int", "Type*":
		v, err = r.U32()
	case "SInt64", "long long":
		v, err = r.I64()
	case "UInt64", "unsigned long long", "FileSize":
		v, err = r.U64()
	case "float":
		v, err = r.F32()
	case "double":
		v, err = r.F64()
	case "string":
		var b []byte
		if b, err = readSized(r, 1); err == nil {
			v = string(b)
			if len(n.Children) > 0 && n.Children[0].Aligned() {
				err = r.Align(4)
			}
		}
	case "TypelessData":
		v, err = readSized(r, 1)
	case "pair":
		v, err = readPair(r, n)
	case "map":
		v, err = readMap(r, n)
	default:
		switch {
		case n.Type == "Array":
			v, err = readArray(r, n)
		case len(n.Children) > 0 && n.Children[0].Type == "Array":
			arr := n.Children[0]
			if v, err = readArray(r, arr); err == nil && arr.Aligned() {
				err = r.Align(4)
			}
		default:
			doc := NewDocument()
			for _, c := range n.Children {
				cv, cerr := ReadValue(r, c)
				if cerr != nil {
					return nil, cerr
				}
				doc.Set(c.Name, cv)
			}
			v = doc
		}
	}
	if err != nil {
		return nil, err
	}
	if n.Aligned() {
		if err := r.Align(4); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// readSized reads an i32 element count followed by count*elem bytes.
func readSized(r *binio.Reader, elem int64) ([]byte, error) {
	size, err := r.I32()
	if err != nil {
		return nil, err
	}
	if size < 0 || int64(size)*elem > r.Remaining() {
		return nil, fmt.Errorf("bad size %d: %w", size, binio.ErrOutOfData)
	}
	return r.ReadCopy(int(int64(size) * elem))
}

func readCount(r *binio.Reader) (int, error) {
	size, err := r.I32()
	if err != nil {
		return 0, err
	}
	// Every element occupies at least one byte, except empty classes.
	if size < 0 || int64(size) > r.Remaining()+1<<20 {
		return 0, fmt.Errorf("bad element count %d: %w", size, binio.ErrOutOfData)
	}
	return int(size), nil
}

func readPair(r *binio.Reader, n *Node) (*Document, error) {
	if len(n.Children) < 2 {
		return nil, fmt.Errorf("%w: pair with %d children", ErrMalformed, len(n.Children))
	}
	doc := NewDocument()
	for _, c := range n.Children[:2] {
		cv, err := ReadValue(r, c)
		if err != nil {
			return nil, err
		}
		doc.Set(c.Name, cv)
	}
	return doc, nil
}

func readMap(r *binio.Reader, n *Node) ([]any, error) {
	elem := elementNode(n)
	if elem == nil {
		return nil, fmt.Errorf("%w: map without element", ErrMalformed)
	}
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, count)
	for i := 0; i < count; i++ {
		p, err := readPair(r, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if n.Children[0].Aligned() {
		if err := r.Align(4); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readArray decodes an Array node: a size field then elements. Byte-sized
// elements decode to []byte.
func readArray(r *binio.Reader, arr *Node) (any, error) {
	elem := elementNode(arr)
	if elem == nil {
		return nil, fmt.Errorf("%w: array without element", ErrMalformed)
	}
	if isByteType(elem.Type) {
		return readSized(r, 1)
	}
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, min(count, 1<<16))
	for i := 0; i < count; i++ {
		v, err := ReadValue(r, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func isByteType(t string) bool { return t == "UInt8" || t == "char" }

// WriteDocument encodes doc using the layout of root.
func WriteDocument(w *binio.Writer, root *Node, doc *Document) error {
	return WriteValue(w, root, doc)
}

// WriteValue encodes v using the layout of n. Numeric values may be of any
// Go integer or float type that fits.
func WriteValue(w *binio.Writer, n *Node, v any) error {
	if err := writeValue(w, n, v); err != nil {
		return fmt.Errorf("%s %s: %w", n.Type, n.Name, err)
	}
	return nil
}

func writeValue(w *binio.Writer, n *Node, v any) error {
	switch n.Type {
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
		w.Bool(b)
	case "SInt8":
		i, err := asInt(v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		w.I8(int8(i))
	case "UInt8", "char":
		u, err := asUint(v, math.MaxUint8)
		if err != nil {
			return err
		}
		w.U8(uint8(u))
	case "SInt16", "short":
		i, err := asInt(v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		w.I16(int16(i))
	case "UInt16", "unsigned short":
		u, err := asUint(v, math.MaxUint16)
		if err != nil {
			return err
		}
		w.U16(uint16(u))
	case "SInt32", "int":
		i, err := asInt(v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		w.I32(int32(i))
	case "UInt32", "unsigned int", "Type*":
		u, err := asUint(v, math.MaxUint32)
		if err != nil {
			return err
		}
		w.U32(uint32(u))
	case "SInt64", "long long":
		i, err := asInt(v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return err
		}
		w.I64(i)
	case "UInt64", "unsigned long long", "FileSize":
		u, err := asUint(v, math.MaxUint64)
		if err != nil {
			return err
		}
		w.U64(u)
	case "float":
		f, err := asFloat(v)
		if err != nil {
			return err
		}
		w.F32(float32(f))
	case "double":
		f, err := asFloat(v)
		if err != nil {
			return err
		}
		w.F64(f)
	case "string":
		var b []byte
		switch t := v.(type) {
		case string:
			b = []byte(t)
		case []byte:
			b = t
		default:
			return fmt.Errorf("want string, got %T", v)
		}
		w.I32(int32(len(b)))
		w.Write(b)
		if len(n.Children) > 0 && n.Children[0].Aligned() {
			w.Align(4)
		}
	case "TypelessData":
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("want []byte, got %T", v)
		}
		w.I32(int32(len(b)))
		w.Write(b)
	case "pair":
		if err := writePair(w, n, v); err != nil {
			return err
		}
	case "map":
		elem := elementNode(n)
		if elem == nil {
			return fmt.Errorf("%w: map without element", ErrMalformed)
		}
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("want []any, got %T", v)
		}
		w.I32(int32(len(items)))
		for _, it := range items {
			if err := writePair(w, elem, it); err != nil {
				return err
			}
		}
		if n.Children[0].Aligned() {
			w.Align(4)
		}
	default:
		switch {
		case n.Type == "Array":
			if err := writeArray(w, n, v); err != nil {
				return err
			}
		case len(n.Children) > 0 && n.Children[0].Type == "Array":
			arr := n.Children[0]
			if err := writeArray(w, arr, v); err != nil {
				return err
			}
			if arr.Aligned() {
				w.Align(4)
			}
		default:
			if err := writeClass(w, n, v); err != nil {
				return err
			}
		}
	}
	if n.Aligned() {
		w.Align(4)
	}
	return nil
}

func fields(v any) (func(string) (any, bool), error) {
	switch t := v.(type) {
	case *Document:
		return t.Get, nil
	case map[string]any:
		return func(k string) (any, bool) { x, ok := t[k]; return x, ok }, nil
	default:
		return nil, fmt.Errorf("want document, got %T", v)
	}
}

func writeClass(w *binio.Writer, n *Node, v any) error {
	get, err := fields(v)
	if err != nil {
		return err
	}
	for _, c := range n.Children {
		cv, ok := get(c.Name)
		if !ok {
			return fmt.Errorf("missing field %s", c.Name)
		}
		if err := WriteValue(w, c, cv); err != nil {
			return err
		}
	}
	return nil
}

func writePair(w *binio.Writer, n *Node, v any) error {
	if len(n.Children) < 2 {
		return fmt.Errorf("%w: pair with %d children", ErrMalformed, len(n.Children))
	}
	return writeClass(w, &Node{Type: n.Type, Name: n.Name, Children: n.Children[:2]}, v)
}

func writeArray(w *binio.Writer, arr *Node, v any) error {
	elem := elementNode(arr)
	if elem == nil {
		return fmt.Errorf("%w: array without element", ErrMalformed)
	}
	if b, ok := v.([]byte); ok && isByteType(elem.Type) {
		w.I32(int32(len(b)))
		w.Write(b)
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("want []any, got %T", v)
	}
	w.I32(int32(len(items)))
	for _, it := range items {
		if err := WriteValue(w, elem, it); err != nil {
			return err
		}
	}
	return nil
}

func asInt(v any, lo, hi int64) (int64, error) {
	var i int64
	switch t := v.(type) {
	case int:
		i = int64(t)
	case int8:
		i = int64(t)
	case int16:
		i = int64(t)
	case int32:
		i = int64(t)
	case int64:
		i = t
	case uint8:
		i = int64(t)
	case uint16:
		i = int64(t)
	case uint32:
		i = int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of range", t)
		}
		i = int64(t)
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of range", t)
		}
		i = int64(t)
	case float32:
		return floatToInt(float64(t), lo, hi)
	case float64:
		return floatToInt(t, lo, hi)
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
	if i < lo || i > hi {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", i, lo, hi)
	}
	return i, nil
}

// floatToInt bounds f by 2^63 before converting; float64(math.MaxInt64)
// rounds up to 2^63 and would overflow.
func floatToInt(f float64, lo, hi int64) (int64, error) {
	if f != math.Trunc(f) || f < -0x1p63 || f >= 0x1p63 {
		return 0, fmt.Errorf("value %v is not an integer in [%d, %d]", f, lo, hi)
	}
	i := int64(f)
	if i < lo || i > hi {
		return 0, fmt.Errorf("value %v is not an integer in [%d, %d]", f, lo, hi)
	}
	return i, nil
}

func asUint(v any, hi uint64) (uint64, error) {
	var u uint64
	switch t := v.(type) {
	case uint:
		u = uint64(t)
	case uint8:
		u = uint64(t)
	case uint16:
		u = uint64(t)
	case uint32:
		u = uint64(t)
	case uint64:
		u = t
	case int, int8, int16, int32, int64:
		i, err := asInt(t, math.MinInt64, math.MaxInt64)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			return 0, fmt.Errorf("value %d is negative", i)
		}
		u = uint64(i)
	case float32, float64:
		f, _ := asFloat(t)
		if f < 0 || f != math.Trunc(f) || f >= 0x1p64 {
			return 0, fmt.Errorf("value %v is not an integer in [0, %d]", f, hi)
		}
		u = uint64(f)
	default:
		return 0, fmt.Errorf("want unsigned integer, got %T", v)
	}
	if u > hi {
		return 0, fmt.Errorf("value %d out of range [0, %d]", u, hi)
	}
	return u, nil
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}
