package typetree

import (
	"bytes"
	"fmt"

	"github.com/eichs/unitypack/internal/binio"
)

// Serialized-file format versions that change the type tree encoding.
const (
	versionLegacyV2       = 2
	versionLegacyV3       = 3
	versionBlobV10        = 10
	versionBlob           = 12
	versionNodeTypeFlags  = 19
	maxBlobNodes          = 1 << 22
	maxBlobStringBuffer   = 1 << 30
	blobNodeSizeBase      = 24
	blobNodeSizeRefHashed = 32
)

// UsesBlob reports whether serialized files of the given format version store
// type trees as a blob rather than recursively.
func UsesBlob(version uint32) bool {
	return version >= versionBlob || version == versionBlobV10
}

// Blob is the flat node table and string buffer of a blob-encoded type tree.
type Blob struct {
	Nodes        []Node
	StringBuffer []byte
}

// ReadBlob reads a blob-encoded type tree at the cursor.
func ReadBlob(r *binio.Reader, version uint32) (*Blob, error) {
	nodeCount, err := r.I32()
	if err != nil {
		return nil, err
	}
	bufSize, err := r.I32()
	if err != nil {
		return nil, err
	}
	if nodeCount < 0 || nodeCount > maxBlobNodes {
		return nil, fmt.Errorf("bad nodeCount: %d", nodeCount)
	}
	if bufSize < 0 || bufSize > maxBlobStringBuffer {
		return nil, fmt.Errorf("bad stringBufferSize: %d", bufSize)
	}
	nodeSize := int64(blobNodeSizeBase)
	if version >= versionNodeTypeFlags {
		nodeSize = blobNodeSizeRefHashed
	}
	if int64(nodeCount)*nodeSize+int64(bufSize) > r.Remaining() {
		return nil, fmt.Errorf("type tree blob of %d nodes: %w", nodeCount, binio.ErrOutOfData)
	}

	b := &Blob{Nodes: make([]Node, nodeCount)}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		v16, err := r.U16()
		if err != nil {
			return nil, err
		}
		n.Version = int32(v16)
		level, err := r.U8()
		if err != nil {
			return nil, err
		}
		n.Level = int(level)
		flags, err := r.U8()
		if err != nil {
			return nil, err
		}
		n.TypeFlags = int32(flags)
		if n.TypeOffset, err = r.U32(); err != nil {
			return nil, err
		}
		if n.NameOffset, err = r.U32(); err != nil {
			return nil, err
		}
		if n.ByteSize, err = r.I32(); err != nil {
			return nil, err
		}
		if n.Index, err = r.I32(); err != nil {
			return nil, err
		}
		if n.MetaFlag, err = r.I32(); err != nil {
			return nil, err
		}
		if version >= versionNodeTypeFlags {
			if n.RefTypeHash, err = r.U64(); err != nil {
				return nil, err
			}
		}
	}
	if b.StringBuffer, err = r.ReadCopy(int(bufSize)); err != nil {
		return nil, err
	}
	for i := range b.Nodes {
		b.Nodes[i].Type = resolveString(b.StringBuffer, b.Nodes[i].TypeOffset)
		b.Nodes[i].Name = resolveString(b.StringBuffer, b.Nodes[i].NameOffset)
	}
	return b, nil
}

func resolveString(buf []byte, ref uint32) string {
	if ref&commonStringBit == 0 {
		off := int(ref)
		if off >= len(buf) {
			return fmt.Sprintf("bad_off_%d", off)
		}
		end := bytes.IndexByte(buf[off:], 0)
		if end < 0 {
			return string(buf[off:])
		}
		return string(buf[off : off+end])
	}
	key := ref &^ commonStringBit
	if s, ok := CommonString(key); ok {
		return s
	}
	return fmt.Sprintf("%d", key)
}

// NewBlob encodes flat nodes into a blob, referencing the shared string table
// where possible and interning the rest into a local buffer.
func NewBlob(flat []Node) *Blob {
	b := &Blob{Nodes: make([]Node, len(flat))}
	local := map[string]uint32{}
	ref := func(s string) uint32 {
		if off, ok := commonByString[s]; ok {
			return off | commonStringBit
		}
		if off, ok := local[s]; ok {
			return off
		}
		off := uint32(len(b.StringBuffer))
		b.StringBuffer = append(b.StringBuffer, s...)
		b.StringBuffer = append(b.StringBuffer, 0)
		local[s] = off
		return off
	}
	for i, n := range flat {
		n.Children = nil
		n.TypeOffset = ref(n.Type)
		n.NameOffset = ref(n.Name)
		b.Nodes[i] = n
	}
	return b
}

// Write encodes b at the cursor.
func (b *Blob) Write(w *binio.Writer, version uint32) {
	w.I32(int32(len(b.Nodes)))
	w.I32(int32(len(b.StringBuffer)))
	for _, n := range b.Nodes {
		w.U16(uint16(n.Version))
		w.U8(byte(n.Level))
		w.U8(byte(n.TypeFlags))
		w.U32(n.TypeOffset)
		w.U32(n.NameOffset)
		w.I32(n.ByteSize)
		w.I32(n.Index)
		w.I32(n.MetaFlag)
		if version >= versionNodeTypeFlags {
			w.U64(n.RefTypeHash)
		}
	}
	w.Write(b.StringBuffer)
}

// Tree builds the hierarchy of b.
func (b *Blob) Tree() (*Node, error) {
	return Build(b.Nodes)
}

// ReadLegacy reads a recursively encoded type tree (format versions before
// blobs) and returns it flattened.
func ReadLegacy(r *binio.Reader, version uint32) ([]Node, error) {
	var out []Node
	if err := readLegacyNode(r, version, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readLegacyNode(r *binio.Reader, version uint32, level int, out *[]Node) error {
	var (
		n   = Node{Level: level}
		err error
	)
	if n.Type, err = r.StringToNull(); err != nil {
		return err
	}
	if n.Name, err = r.StringToNull(); err != nil {
		return err
	}
	if n.ByteSize, err = r.I32(); err != nil {
		return err
	}
	if version == versionLegacyV2 {
		if n.VariableCount, err = r.I32(); err != nil {
			return err
		}
	}
	if version != versionLegacyV3 {
		if n.Index, err = r.I32(); err != nil {
			return err
		}
	}
	if n.TypeFlags, err = r.I32(); err != nil {
		return err
	}
	if n.Version, err = r.I32(); err != nil {
		return err
	}
	if version != versionLegacyV3 {
		if n.MetaFlag, err = r.I32(); err != nil {
			return err
		}
	}
	children, err := r.I32()
	if err != nil {
		return err
	}
	if children < 0 || int64(children) > r.Remaining() {
		return fmt.Errorf("bad child count %d for %s %s", children, n.Type, n.Name)
	}
	*out = append(*out, n)
	for i := int32(0); i < children; i++ {
		if err := readLegacyNode(r, version, level+1, out); err != nil {
			return err
		}
	}
	return nil
}

// WriteLegacy encodes the tree rooted at root recursively.
func WriteLegacy(w *binio.Writer, version uint32, root *Node) {
	w.StringToNull(root.Type)
	w.StringToNull(root.Name)
	w.I32(root.ByteSize)
	if version == versionLegacyV2 {
		w.I32(root.VariableCount)
	}
	if version != versionLegacyV3 {
		w.I32(root.Index)
	}
	w.I32(root.TypeFlags)
	w.I32(root.Version)
	if version != versionLegacyV3 {
		w.I32(root.MetaFlag)
	}
	w.I32(int32(len(root.Children)))
	for _, c := range root.Children {
		WriteLegacy(w, version, c)
	}
}
