package typetree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Document is an ordered set of named field values decoded from an object.
// Values are Go primitives, string, []byte, []any, or nested *Document.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: map[string]any{}}
}

// Set assigns a field, appending it if new.
func (d *Document) Set(key string, v any) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Document) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the field names in decode order.
func (d *Document) Keys() []string { return d.keys }

func (d *Document) Len() int { return len(d.keys) }

// Map converts the document into plain maps and slices, recursively.
func (d *Document) Map() map[string]any {
	out := make(map[string]any, len(d.keys))
	for _, k := range d.keys {
		out[k] = plain(d.values[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Document:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the document with its fields in decode order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML encodes the document as a mapping in decode order.
func (d *Document) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range d.keys {
		v, err := yamlValue(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, v)
	}
	return n, nil
}

func yamlValue(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Document:
		n, err := t.MarshalYAML()
		if err != nil {
			return nil, err
		}
		return n.(*yaml.Node), nil
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, e := range t {
			en, err := yamlValue(e)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, en)
		}
		return seq, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

var (
	docEncMode cbor.EncMode
	docDecMode cbor.DecMode
)

func init() {
	var err error
	docEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("typetree: CBOR encoder initialization failed: " + err.Error())
	}
	docDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("typetree: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalCBOR encodes the document as a CBOR map.
func (d *Document) MarshalCBOR() ([]byte, error) {
	return docEncMode.Marshal(d.Map())
}

// Decode populates v, typically a struct with `cbor:"m_Name"` style tags,
// from the document.
func (d *Document) Decode(v any) error {
	raw, err := d.MarshalCBOR()
	if err != nil {
		return fmt.Errorf("typetree: encode document: %w", err)
	}
	if err := docDecMode.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("typetree: decode document: %w", err)
	}
	return nil
}

// DocumentFromCBOR decodes a CBOR map produced by MarshalCBOR. Field order
// follows root, which must describe the same type.
func DocumentFromCBOR(raw []byte, root *Node) (*Document, error) {
	var m map[string]any
	if err := docDecMode.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("typetree: decode document: %w", err)
	}
	return FromMap(m, root), nil
}

// FromMap rebuilds an ordered document from a plain map, ordering fields by
// the children of root. Keys absent from root are appended in map order.
func FromMap(m map[string]any, root *Node) *Document {
	d := NewDocument()
	for _, c := range root.Children {
		if v, ok := m[c.Name]; ok {
			d.Set(c.Name, restore(v, c))
		}
	}
	for k, v := range m {
		if _, ok := d.values[k]; !ok {
			d.Set(k, v)
		}
	}
	return d
}

func restore(v any, n *Node) any {
	switch t := v.(type) {
	case map[string]any:
		return FromMap(t, n)
	case []any:
		elem := elementNode(n)
		out := make([]any, len(t))
		for i, e := range t {
			if elem != nil {
				out[i] = restore(e, elem)
			} else {
				out[i] = e
			}
		}
		return out
	default:
		return v
	}
}

// elementNode returns the element node of a vector or map node.
func elementNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	arr := n
	if n.Type != "Array" {
		if len(n.Children) == 0 || n.Children[0].Type != "Array" {
			return nil
		}
		arr = n.Children[0]
	}
	if len(arr.Children) < 2 {
		return nil
	}
	return arr.Children[1]
}
