package asset

import (
	"fmt"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/typetree"
)

// Serialized file format versions at which the layout changes.
const (
	formatUnknown5               = 5
	formatUnknown6               = 6
	formatUnknown7               = 7
	formatUnknown8               = 8
	formatUnknown9               = 9
	formatHasScriptTypeIndex     = 11
	formatHasTypeTreeHashes      = 13
	formatUnknown14              = 14
	formatSupportsStrippedObject = 15
	formatRefactoredClassID      = 16
	formatRefactorTypeData       = 17
	formatSupportsRefObject      = 20
	formatStoresTypeDependencies = 21
	formatLargeFiles             = 22
)

const (
	headerSizeBase  = 16
	headerSizeV9    = 20
	headerSizeLarge = 48
	hashSize        = 16
)

// SerializedHeader is the fixed header of a serialized file.
type SerializedHeader struct {
	MetadataSize uint32
	FileSize     int64
	Version      uint32
	DataOffset   int64
	// Endianness is the metadata byte order: 0 little, otherwise big.
	Endianness byte
	Reserved   [3]byte
	Unknown    int64

	// legacy holds the 32-bit size fields of large-file headers as read.
	legacy [3]uint32
}

// SerializedType is one entry of the type or ref-type table.
type SerializedType struct {
	ClassID         int32
	IsStripped      bool
	ScriptTypeIndex int16
	ScriptID        []byte
	OldTypeHash     []byte

	// Nodes is the flat type tree, empty when the file stores none.
	Nodes []typetree.Node
	blob  *typetree.Blob

	// Ref types name their class; other types list dependencies.
	ClassName    string
	Namespace    string
	AssemblyName string
	Dependencies []int32

	tree *typetree.Node
}

// Tree returns the field hierarchy of t.
func (t *SerializedType) Tree() (*typetree.Node, error) {
	if len(t.Nodes) == 0 {
		return nil, ErrNoTypeTree
	}
	if t.tree == nil {
		root, err := typetree.Build(t.Nodes)
		if err != nil {
			return nil, err
		}
		t.tree = root
	}
	return t.tree, nil
}

// LocalObjectID identifies an object through a file index.
type LocalObjectID struct {
	FileIndex int32
	PathID    int64
}

// External is one entry of the external dependency list.
type External struct {
	AssetPath string
	GUID      [16]byte
	Type      int32
	Path      string
}

// SerializedFile is the parsed form of a serialized object file.
type SerializedFile struct {
	container *Container

	Header         SerializedHeader
	headerEndian   binio.Endian
	UnityVersion   string
	TargetPlatform int32
	EnableTypeTree bool
	Types          []*SerializedType
	BigIDEnabled   int32
	ScriptTypes    []LocalObjectID
	Externals      []External
	RefTypes       []*SerializedType

	UserInformation string

	objects []*Object
	byID    map[int64]*Object
	raw     []byte
}

// Container returns the graph node holding f.
func (f *SerializedFile) Container() *Container { return f.container }

// Version returns the format version.
func (f *SerializedFile) Version() uint32 { return f.Header.Version }

// Endian returns the byte order of metadata and object data.
func (f *SerializedFile) Endian() binio.Endian {
	if f.Header.Endianness == 0 {
		return binio.LittleEndian
	}
	return binio.BigEndian
}

// Objects returns the object table in file order.
func (f *SerializedFile) Objects() []*Object { return f.objects }

// Object looks up pathID.
func (f *SerializedFile) Object(pathID int64) (*Object, bool) {
	o, ok := f.byID[pathID]
	return o, ok
}

func parseSerializedFile(data []byte, headerEndian binio.Endian) (*SerializedFile, error) {
	r := binio.NewReader(data, headerEndian)
	f := &SerializedFile{raw: data, headerEndian: headerEndian, byID: map[int64]*Object{}}
	if err := f.readHeader(r); err != nil {
		return nil, fmt.Errorf("serialized file header: %w", err)
	}
	r.SetEndian(f.Endian())
	if err := f.readMetadata(r); err != nil {
		return nil, fmt.Errorf("serialized file v%d metadata: %w", f.Header.Version, err)
	}
	return f, nil
}

func (f *SerializedFile) readHeader(r *binio.Reader) error {
	h := &f.Header
	var (
		fileSize32, dataOffset32 uint32
		err                      error
	)
	if h.MetadataSize, err = r.U32(); err != nil {
		return err
	}
	if fileSize32, err = r.U32(); err != nil {
		return err
	}
	if h.Version, err = r.U32(); err != nil {
		return err
	}
	if dataOffset32, err = r.U32(); err != nil {
		return err
	}
	h.FileSize, h.DataOffset = int64(fileSize32), int64(dataOffset32)

	if h.Version >= formatUnknown9 {
		if h.Endianness, err = r.U8(); err != nil {
			return err
		}
		b, err := r.Read(3)
		if err != nil {
			return err
		}
		copy(h.Reserved[:], b)
	} else {
		// The endian byte opens the metadata block at the end of the file.
		if err := r.SetPos(h.FileSize - int64(h.MetadataSize)); err != nil {
			return err
		}
		if h.Endianness, err = r.U8(); err != nil {
			return err
		}
	}

	if h.Version >= formatLargeFiles {
		h.legacy = [3]uint32{h.MetadataSize, fileSize32, dataOffset32}
		if h.MetadataSize, err = r.U32(); err != nil {
			return err
		}
		if h.FileSize, err = r.I64(); err != nil {
			return err
		}
		if h.DataOffset, err = r.I64(); err != nil {
			return err
		}
		if h.Unknown, err = r.I64(); err != nil {
			return err
		}
	}
	return nil
}

func (f *SerializedFile) readMetadata(r *binio.Reader) error {
	v := f.Header.Version
	var err error
	if v >= formatUnknown7 {
		if f.UnityVersion, err = r.StringToNull(); err != nil {
			return err
		}
	}
	if v >= formatUnknown8 {
		if f.TargetPlatform, err = r.I32(); err != nil {
			return err
		}
	}
	f.EnableTypeTree = true
	if v >= formatHasTypeTreeHashes {
		if f.EnableTypeTree, err = r.Bool(); err != nil {
			return err
		}
	}

	if f.Types, err = f.readTypes(r, false); err != nil {
		return fmt.Errorf("types: %w", err)
	}

	if v >= formatUnknown7 && v < formatUnknown14 {
		if f.BigIDEnabled, err = r.I32(); err != nil {
			return err
		}
	}

	if err := f.readObjects(r); err != nil {
		return fmt.Errorf("objects: %w", err)
	}

	if v >= formatHasScriptTypeIndex {
		n, err := readCount(r, 12)
		if err != nil {
			return fmt.Errorf("script types: %w", err)
		}
		f.ScriptTypes = make([]LocalObjectID, n)
		for i := range f.ScriptTypes {
			s := &f.ScriptTypes[i]
			if s.FileIndex, err = r.I32(); err != nil {
				return err
			}
			if s.PathID, err = f.readPathID(r, false); err != nil {
				return err
			}
		}
	}

	n, err := readCount(r, 1)
	if err != nil {
		return fmt.Errorf("externals: %w", err)
	}
	f.Externals = make([]External, n)
	for i := range f.Externals {
		e := &f.Externals[i]
		if v >= formatUnknown6 {
			if e.AssetPath, err = r.StringToNull(); err != nil {
				return err
			}
		}
		if v >= formatUnknown5 {
			g, err := r.Read(len(e.GUID))
			if err != nil {
				return err
			}
			copy(e.GUID[:], g)
			if e.Type, err = r.I32(); err != nil {
				return err
			}
		}
		if e.Path, err = r.StringToNull(); err != nil {
			return err
		}
	}

	if v >= formatSupportsRefObject {
		if f.RefTypes, err = f.readTypes(r, true); err != nil {
			return fmt.Errorf("ref types: %w", err)
		}
	}
	if v >= formatUnknown5 {
		if f.UserInformation, err = r.StringToNull(); err != nil {
			return err
		}
	}
	return nil
}

// readCount reads an i32 table length and rejects lengths that cannot fit in
// the remaining bytes at minSize bytes per entry.
func readCount(r *binio.Reader, minSize int64) (int, error) {
	n, err := r.I32()
	if err != nil {
		return 0, err
	}
	if n < 0 || int64(n)*minSize > r.Remaining() {
		return 0, fmt.Errorf("bad count %d: %w", n, ErrTruncated)
	}
	return int(n), nil
}

func (f *SerializedFile) readTypes(r *binio.Reader, isRef bool) ([]*SerializedType, error) {
	n, err := readCount(r, 4)
	if err != nil {
		return nil, err
	}
	out := make([]*SerializedType, n)
	for i := range out {
		if out[i], err = f.readType(r, isRef); err != nil {
			return nil, fmt.Errorf("type %d: %w", i, err)
		}
	}
	return out, nil
}

func (f *SerializedFile) hasScriptID(t *SerializedType, isRef bool) bool {
	v := f.Header.Version
	return (isRef && t.ScriptTypeIndex >= 0) ||
		(v < formatRefactoredClassID && t.ClassID < 0) ||
		(v >= formatRefactoredClassID && t.ClassID == int32(ClassMonoBehaviour))
}

func (f *SerializedFile) readType(r *binio.Reader, isRef bool) (*SerializedType, error) {
	v := f.Header.Version
	t := &SerializedType{ScriptTypeIndex: -1}
	var err error
	if t.ClassID, err = r.I32(); err != nil {
		return nil, err
	}
	if v >= formatRefactoredClassID {
		if t.IsStripped, err = r.Bool(); err != nil {
			return nil, err
		}
	}
	if v >= formatRefactorTypeData {
		if t.ScriptTypeIndex, err = r.I16(); err != nil {
			return nil, err
		}
	}
	if v >= formatHasTypeTreeHashes {
		if f.hasScriptID(t, isRef) {
			if t.ScriptID, err = r.ReadCopy(hashSize); err != nil {
				return nil, err
			}
		}
		if t.OldTypeHash, err = r.ReadCopy(hashSize); err != nil {
			return nil, err
		}
	}
	if !f.EnableTypeTree {
		return t, nil
	}

	if typetree.UsesBlob(v) {
		if t.blob, err = typetree.ReadBlob(r, v); err != nil {
			return nil, err
		}
		t.Nodes = t.blob.Nodes
	} else if t.Nodes, err = typetree.ReadLegacy(r, v); err != nil {
		return nil, err
	}

	if v >= formatStoresTypeDependencies {
		if isRef {
			if t.ClassName, err = r.StringToNull(); err != nil {
				return nil, err
			}
			if t.Namespace, err = r.StringToNull(); err != nil {
				return nil, err
			}
			if t.AssemblyName, err = r.StringToNull(); err != nil {
				return nil, err
			}
		} else if t.Dependencies, err = r.I32Array(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (f *SerializedFile) readPathID(r *binio.Reader, object bool) (int64, error) {
	switch {
	case object && f.BigIDEnabled != 0:
		return r.I64()
	case f.Header.Version < formatUnknown14:
		v, err := r.I32()
		return int64(v), err
	default:
		if err := r.Align(4); err != nil {
			return 0, err
		}
		return r.I64()
	}
}

func (f *SerializedFile) readObjects(r *binio.Reader) error {
	v := f.Header.Version
	n, err := readCount(r, 12)
	if err != nil {
		return err
	}
	f.objects = make([]*Object, 0, n)
	for i := 0; i < n; i++ {
		o := &Object{file: f, ScriptTypeIndex: -1}
		if o.PathID, err = f.readPathID(r, true); err != nil {
			return err
		}
		if v >= formatLargeFiles {
			if o.ByteStart, err = r.I64(); err != nil {
				return err
			}
		} else {
			start, err := r.U32()
			if err != nil {
				return err
			}
			o.ByteStart = int64(start)
		}
		if o.ByteSize, err = r.U32(); err != nil {
			return err
		}
		if o.TypeID, err = r.I32(); err != nil {
			return err
		}
		if v < formatRefactoredClassID {
			cid, err := r.U16()
			if err != nil {
				return err
			}
			o.ClassID = ClassID(cid)
		} else {
			if o.TypeID < 0 || int(o.TypeID) >= len(f.Types) {
				return fmt.Errorf("object %d: type index %d of %d", o.PathID, o.TypeID, len(f.Types))
			}
			o.ClassID = ClassID(f.Types[o.TypeID].ClassID)
		}
		if v < formatHasScriptTypeIndex {
			if o.IsDestroyed, err = r.U16(); err != nil {
				return err
			}
		}
		if v >= formatHasScriptTypeIndex && v < formatRefactorTypeData {
			if o.ScriptTypeIndex, err = r.I16(); err != nil {
				return err
			}
		}
		if v == formatSupportsStrippedObject || v == formatRefactoredClassID {
			if o.Stripped, err = r.U8(); err != nil {
				return err
			}
		}
		if _, dup := f.byID[o.PathID]; dup {
			return fmt.Errorf("duplicate path id %d", o.PathID)
		}
		f.byID[o.PathID] = o
		f.objects = append(f.objects, o)
	}
	return nil
}
