package asset

import (
	"bytes"
	"context"
	"fmt"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/typetree"
)

// Object describes one entry of a serialized file's object table.
type Object struct {
	file *SerializedFile

	PathID int64
	// ByteStart is relative to the file's data offset.
	ByteStart       int64
	ByteSize        uint32
	TypeID          int32
	ClassID         ClassID
	IsDestroyed     uint16
	ScriptTypeIndex int16
	Stripped        uint8

	data     []byte
	replaced bool
}

// File returns the serialized file holding o.
func (o *Object) File() *SerializedFile { return o.file }

// Offset returns the absolute position of o's bytes in its file.
func (o *Object) Offset() int64 { return o.file.Header.DataOffset + o.ByteStart }

func (o *Object) String() string {
	return fmt.Sprintf("%s %d", o.ClassID, o.PathID)
}

// Bytes returns the raw bytes of o.
func (o *Object) Bytes() ([]byte, error) {
	if o.replaced {
		return o.data, nil
	}
	start, size := o.Offset(), int64(o.ByteSize)
	if o.ByteStart < 0 || start < o.file.Header.DataOffset || !binio.InRange(start, size, int64(len(o.file.raw))) {
		return nil, fmt.Errorf("object %d at %d+%d of %d: %w", o.PathID, start, o.ByteSize, len(o.file.raw), ErrTruncated)
	}
	return o.file.raw[start : start+size], nil
}

// Type returns the serialized type of o, or nil.
func (o *Object) Type() *SerializedType {
	f := o.file
	if f.Header.Version >= formatRefactoredClassID {
		if o.TypeID >= 0 && int(o.TypeID) < len(f.Types) {
			return f.Types[o.TypeID]
		}
		return nil
	}
	for _, t := range f.Types {
		if t.ClassID == o.TypeID {
			return t
		}
	}
	return nil
}

// Tree returns the field layout stored with o's type.
func (o *Object) Tree() (*typetree.Node, error) {
	t := o.Type()
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTypeTree, o)
	}
	root, err := t.Tree()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o, err)
	}
	return root, nil
}

// GeneratedTree returns the layout of a script type from the graph's type
// tree cache.
func (o *Object) GeneratedTree(ctx context.Context, assembly, typeName string) (*typetree.Node, error) {
	c := o.file.container
	if c == nil || c.g == nil || c.g.opts.TypeTrees == nil {
		return nil, fmt.Errorf("%w: %s has no type tree source", ErrNoTypeTree, o)
	}
	return c.g.opts.TypeTrees.Tree(ctx, assembly, typeName)
}

// Document decodes o with its stored field layout.
func (o *Object) Document() (*typetree.Document, error) {
	root, err := o.Tree()
	if err != nil {
		return nil, err
	}
	return o.DocumentWith(root)
}

// DocumentWith decodes o with an explicit field layout.
func (o *Object) DocumentWith(root *typetree.Node) (*typetree.Document, error) {
	b, err := o.Bytes()
	if err != nil {
		return nil, err
	}
	doc, err := typetree.ReadDocument(binio.NewReader(b, o.file.Endian()), root)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", o, err)
	}
	return doc, nil
}

// Decode decodes o into v, a struct whose `cbor` tags name the fields.
func (o *Object) Decode(v any) error {
	doc, err := o.Document()
	if err != nil {
		return err
	}
	return doc.Decode(v)
}

// Name returns the m_Name field when o has one.
func (o *Object) Name() string {
	doc, err := o.Document()
	if err != nil {
		return ""
	}
	if v, ok := doc.Get("m_Name"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetBytes replaces the raw bytes of o and taints its file.
func (o *Object) SetBytes(b []byte) {
	if cur, err := o.Bytes(); err == nil && bytes.Equal(cur, b) {
		return
	}
	o.data = bytes.Clone(b)
	o.replaced = true
	o.ByteSize = uint32(len(b))
	if c := o.file.container; c != nil {
		c.MarkDirty()
	}
}

// SetDocument encodes doc with o's stored layout and replaces o's bytes.
func (o *Object) SetDocument(doc *typetree.Document) error {
	root, err := o.Tree()
	if err != nil {
		return err
	}
	return o.SetDocumentWith(root, doc)
}

// SetDocumentWith encodes doc with an explicit layout and replaces o's bytes.
func (o *Object) SetDocumentWith(root *typetree.Node, doc *typetree.Document) error {
	w := binio.NewWriter(o.file.Endian())
	if err := typetree.WriteDocument(w, root, doc); err != nil {
		return fmt.Errorf("encode %s: %w", o, err)
	}
	o.SetBytes(w.Bytes())
	return nil
}

// Resolve resolves p against o's file.
func (o *Object) Resolve(p Pointer) (*Object, error) {
	return p.Resolve(o.file)
}
