package asset

import (
	"fmt"
	"strings"

	"github.com/eichs/unitypack/typetree"
)

// Pointer is a cross-object reference. FileID 0 addresses the resolving file;
// other values are 1-based indices into its external dependency list.
type Pointer struct {
	FileID int32 `cbor:"m_FileID" json:"m_FileID" yaml:"m_FileID"`
	PathID int64 `cbor:"m_PathID" json:"m_PathID" yaml:"m_PathID"`
}

// IsNull reports whether p addresses no object.
func (p Pointer) IsNull() bool { return p.PathID == 0 }

func (p Pointer) String() string { return fmt.Sprintf("PPtr(%d, %d)", p.FileID, p.PathID) }

// Resolve returns the object p addresses from f. Resolution does not load
// anything; dependencies must already be in the graph beside f.
func (p Pointer) Resolve(f *SerializedFile) (*Object, error) {
	if p.PathID == 0 {
		return nil, fmt.Errorf("%v: %w", p, ErrNullPointer)
	}
	target := f
	if p.FileID != 0 {
		var err error
		if target, err = p.external(f); err != nil {
			return nil, err
		}
	}
	o, ok := target.Object(p.PathID)
	if !ok {
		return nil, fmt.Errorf("%v in %s: %w", p, target.container.Name(), ErrObjectNotFound)
	}
	return o, nil
}

func (p Pointer) external(f *SerializedFile) (*SerializedFile, error) {
	idx := int(p.FileID) - 1
	if idx < 0 || idx >= len(f.Externals) {
		return nil, fmt.Errorf("%v with %d externals: %w", p, len(f.Externals), ErrExternalIndex)
	}
	name := NormalizeDependency(f.Externals[idx].Path)
	parent, err := f.container.Parent()
	if err != nil {
		return nil, fmt.Errorf("%v via %s: %w", p, name, err)
	}
	sibling := parent.Child(name)
	if sibling == nil {
		return nil, fmt.Errorf("%v: %s in %s: %w", p, name, parent.Name(), ErrSiblingNotFound)
	}
	if sibling.kind != KindSerializedFile {
		return nil, fmt.Errorf("%v: %s is a %s: %w", p, name, sibling.kind, ErrSiblingKind)
	}
	return sibling.file, nil
}

// NormalizeDependency maps an external dependency path to the name of the
// sibling container that holds it.
func NormalizeDependency(path string) string {
	path = strings.TrimPrefix(path, "archive:/")
	path = strings.TrimPrefix(path, "assets/")
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	return strings.ToLower(path)
}

// Document returns p as a structured document.
func (p Pointer) Document() *typetree.Document {
	d := typetree.NewDocument()
	d.Set("m_FileID", p.FileID)
	d.Set("m_PathID", p.PathID)
	return d
}

// PointerFromDocument reads a pointer from a decoded PPtr field, either a
// *typetree.Document or a plain map.
func PointerFromDocument(v any) (Pointer, error) {
	var get func(string) (any, bool)
	switch t := v.(type) {
	case *typetree.Document:
		get = t.Get
	case map[string]any:
		get = func(k string) (any, bool) { x, ok := t[k]; return x, ok }
	default:
		return Pointer{}, fmt.Errorf("pointer from %T", v)
	}
	fid, ok := get("m_FileID")
	if !ok {
		return Pointer{}, fmt.Errorf("pointer: missing m_FileID")
	}
	pid, ok := get("m_PathID")
	if !ok {
		return Pointer{}, fmt.Errorf("pointer: missing m_PathID")
	}
	f, err := toInt64(fid)
	if err != nil {
		return Pointer{}, fmt.Errorf("pointer m_FileID: %w", err)
	}
	pth, err := toInt64(pid)
	if err != nil {
		return Pointer{}, fmt.Errorf("pointer m_PathID: %w", err)
	}
	return Pointer{FileID: int32(f), PathID: pth}, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	case float64:
		return int64(t), nil
	}
	return 0, fmt.Errorf("unexpected %T", v)
}
