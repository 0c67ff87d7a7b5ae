package asset

import (
	"fmt"
	"slices"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/typetree"
)

// objectAlign is the alignment of each object within the data segment.
const objectAlign = 8

type placement struct {
	start int64
	data  []byte
}

// layoutObjects packs object data in original data order.
func (f *SerializedFile) layoutObjects() (map[*Object]placement, []byte, error) {
	ordered := slices.Clone(f.objects)
	slices.SortStableFunc(ordered, func(a, b *Object) int {
		switch {
		case a.ByteStart < b.ByteStart:
			return -1
		case a.ByteStart > b.ByteStart:
			return 1
		}
		return 0
	})
	w := binio.NewWriter(f.Endian())
	out := make(map[*Object]placement, len(ordered))
	for _, o := range ordered {
		data, err := o.Bytes()
		if err != nil {
			return nil, nil, err
		}
		w.Align(objectAlign)
		out[o] = placement{start: w.Pos(), data: data}
		w.Write(data)
	}
	return out, w.Bytes(), nil
}

func (f *SerializedFile) serialize() ([]byte, error) {
	layout, data, err := f.layoutObjects()
	if err != nil {
		return nil, err
	}
	v := f.Header.Version
	w := binio.NewWriter(f.Endian())

	if v < formatUnknown9 {
		// Data follows the header; metadata and its endian byte close the file.
		dataOffset := max(f.Header.DataOffset, headerSizeBase)
		w.SetPos(dataOffset)
		w.Write(data)
		metaStart := w.Pos()
		w.U8(f.Header.Endianness)
		f.writeMetadata(w, layout)
		fileSize := w.Pos()
		f.writeHeader(w, uint32(fileSize-metaStart), fileSize, dataOffset)
		return w.Bytes(), nil
	}

	headerSize := int64(headerSizeV9)
	if v >= formatLargeFiles {
		headerSize = headerSizeLarge
	}
	w.SetPos(headerSize)
	f.writeMetadata(w, layout)
	metaEnd := w.Pos()
	dataOffset := f.Header.DataOffset
	if dataOffset < metaEnd {
		dataOffset = align(metaEnd, 16)
	}
	w.SetPos(dataOffset)
	w.Write(data)
	f.writeHeader(w, uint32(metaEnd-headerSize), w.Pos(), dataOffset)
	return w.Bytes(), nil
}

func align(n, a int64) int64 {
	if m := n % a; m != 0 {
		return n + a - m
	}
	return n
}

// writeHeader writes the header at offset 0 of w, which is big endian
// regardless of the metadata order.
func (f *SerializedFile) writeHeader(w *binio.Writer, metadataSize uint32, fileSize, dataOffset int64) {
	h := f.Header
	end := w.Pos()
	endian := w.Endian()
	defer func() {
		w.SetEndian(endian)
		w.SetPos(end)
	}()
	w.SetEndian(f.headerEndian)
	w.SetPos(0)

	if h.Version >= formatLargeFiles {
		w.U32(h.legacy[0])
		w.U32(h.legacy[1])
		w.U32(h.Version)
		w.U32(h.legacy[2])
	} else {
		w.U32(metadataSize)
		w.U32(uint32(fileSize))
		w.U32(h.Version)
		w.U32(uint32(dataOffset))
	}
	if h.Version >= formatUnknown9 {
		w.U8(h.Endianness)
		w.Write(h.Reserved[:])
	}
	if h.Version >= formatLargeFiles {
		w.U32(metadataSize)
		w.I64(fileSize)
		w.I64(dataOffset)
		w.I64(h.Unknown)
	}
}

func (f *SerializedFile) writeMetadata(w *binio.Writer, layout map[*Object]placement) {
	v := f.Header.Version
	if v >= formatUnknown7 {
		w.StringToNull(f.UnityVersion)
	}
	if v >= formatUnknown8 {
		w.I32(f.TargetPlatform)
	}
	if v >= formatHasTypeTreeHashes {
		w.Bool(f.EnableTypeTree)
	}
	f.writeTypes(w, f.Types, false)
	if v >= formatUnknown7 && v < formatUnknown14 {
		w.I32(f.BigIDEnabled)
	}

	w.I32(int32(len(f.objects)))
	for _, o := range f.objects {
		p := layout[o]
		f.writePathID(w, o.PathID, true)
		if v >= formatLargeFiles {
			w.I64(p.start)
		} else {
			w.U32(uint32(p.start))
		}
		w.U32(uint32(len(p.data)))
		w.I32(o.TypeID)
		if v < formatRefactoredClassID {
			w.U16(uint16(o.ClassID))
		}
		if v < formatHasScriptTypeIndex {
			w.U16(o.IsDestroyed)
		}
		if v >= formatHasScriptTypeIndex && v < formatRefactorTypeData {
			w.I16(o.ScriptTypeIndex)
		}
		if v == formatSupportsStrippedObject || v == formatRefactoredClassID {
			w.U8(o.Stripped)
		}
	}

	if v >= formatHasScriptTypeIndex {
		w.I32(int32(len(f.ScriptTypes)))
		for _, s := range f.ScriptTypes {
			w.I32(s.FileIndex)
			f.writePathID(w, s.PathID, false)
		}
	}

	w.I32(int32(len(f.Externals)))
	for _, e := range f.Externals {
		if v >= formatUnknown6 {
			w.StringToNull(e.AssetPath)
		}
		if v >= formatUnknown5 {
			w.Write(e.GUID[:])
			w.I32(e.Type)
		}
		w.StringToNull(e.Path)
	}

	if v >= formatSupportsRefObject {
		f.writeTypes(w, f.RefTypes, true)
	}
	if v >= formatUnknown5 {
		w.StringToNull(f.UserInformation)
	}
}

func (f *SerializedFile) writePathID(w *binio.Writer, id int64, object bool) {
	switch {
	case object && f.BigIDEnabled != 0:
		w.I64(id)
	case f.Header.Version < formatUnknown14:
		w.I32(int32(id))
	default:
		w.Align(4)
		w.I64(id)
	}
}

func (f *SerializedFile) writeTypes(w *binio.Writer, types []*SerializedType, isRef bool) {
	w.I32(int32(len(types)))
	for _, t := range types {
		f.writeType(w, t, isRef)
	}
}

func (f *SerializedFile) writeType(w *binio.Writer, t *SerializedType, isRef bool) {
	v := f.Header.Version
	w.I32(t.ClassID)
	if v >= formatRefactoredClassID {
		w.Bool(t.IsStripped)
	}
	if v >= formatRefactorTypeData {
		w.I16(t.ScriptTypeIndex)
	}
	if v >= formatHasTypeTreeHashes {
		if f.hasScriptID(t, isRef) {
			w.Write(padHash(t.ScriptID))
		}
		w.Write(padHash(t.OldTypeHash))
	}
	if !f.EnableTypeTree {
		return
	}

	if typetree.UsesBlob(v) {
		blob := t.blob
		if blob == nil {
			blob = typetree.NewBlob(t.Nodes)
		}
		blob.Write(w, v)
	} else if root, err := t.Tree(); err == nil {
		typetree.WriteLegacy(w, v, root)
	}

	if v >= formatStoresTypeDependencies {
		if isRef {
			w.StringToNull(t.ClassName)
			w.StringToNull(t.Namespace)
			w.StringToNull(t.AssemblyName)
		} else {
			w.I32Array(t.Dependencies)
		}
	}
}

func padHash(b []byte) []byte {
	if len(b) == hashSize {
		return b
	}
	out := make([]byte, hashSize)
	copy(out, b)
	return out
}

// SetTypeTree replaces the type tree of t with the flattened form of root.
func (t *SerializedType) SetTypeTree(root *typetree.Node) {
	t.Nodes = typetree.Flatten(root)
	t.blob = nil
	t.tree = nil
}

func (f *SerializedFile) String() string {
	return fmt.Sprintf("SerializedFile v%d (%s, %d objects)", f.Header.Version, f.UnityVersion, len(f.objects))
}
