package asset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
	"github.com/eichs/unitypack/typetree"
)

func stringNodes(level int, name string) []typetree.Node {
	return []typetree.Node{
		{Level: level, Type: "string", Name: name, ByteSize: -1, MetaFlag: 0x8000},
		{Level: level + 1, Type: "Array", Name: "Array", ByteSize: -1, MetaFlag: typetree.MetaFlagAlign},
		{Level: level + 2, Type: "int", Name: "size", ByteSize: 4},
		{Level: level + 2, Type: "char", Name: "data", ByteSize: 1},
	}
}

func pointerNodes(level int, name string) []typetree.Node {
	return []typetree.Node{
		{Level: level, Type: "PPtr<Object>", Name: name, ByteSize: 12},
		{Level: level + 1, Type: "int", Name: "m_FileID", ByteSize: 4},
		{Level: level + 1, Type: "SInt64", Name: "m_PathID", ByteSize: 8},
	}
}

// textAssetNodes describes a TextAsset with an extra reference field.
func textAssetNodes() []typetree.Node {
	flat := []typetree.Node{{Level: 0, Type: "TextAsset", Name: "Base", ByteSize: -1}}
	flat = append(flat, stringNodes(1, "m_Name")...)
	flat = append(flat, stringNodes(1, "m_Script")...)
	return append(flat, pointerNodes(1, "m_Ref")...)
}

func assetBundleNodes() []typetree.Node {
	flat := []typetree.Node{{Level: 0, Type: "AssetBundle", Name: "Base", ByteSize: -1}}
	flat = append(flat, stringNodes(1, "m_Name")...)
	flat = append(flat,
		typetree.Node{Level: 1, Type: "map", Name: "m_Container", ByteSize: -1},
		typetree.Node{Level: 2, Type: "Array", Name: "Array", ByteSize: -1, MetaFlag: typetree.MetaFlagAlign},
		typetree.Node{Level: 3, Type: "int", Name: "size", ByteSize: 4},
		typetree.Node{Level: 3, Type: "pair", Name: "data", ByteSize: -1},
	)
	flat = append(flat, stringNodes(4, "first")...)
	flat = append(flat,
		typetree.Node{Level: 4, Type: "AssetInfo", Name: "second", ByteSize: -1},
		typetree.Node{Level: 5, Type: "int", Name: "preloadIndex", ByteSize: 4},
		typetree.Node{Level: 5, Type: "int", Name: "preloadSize", ByteSize: 4},
	)
	return append(flat, pointerNodes(5, "asset")...)
}

func nodesFor(class ClassID) []typetree.Node {
	if class == ClassAssetBundle {
		return assetBundleNodes()
	}
	return textAssetNodes()
}

func textAsset(name string, ref Pointer) *typetree.Document {
	d := typetree.NewDocument()
	d.Set("m_Name", name)
	d.Set("m_Script", "body of "+name)
	d.Set("m_Ref", ref.Document())
	return d
}

func assetBundle(entries map[string]Pointer, order ...string) *typetree.Document {
	var container []any
	for _, path := range order {
		info := typetree.NewDocument()
		info.Set("preloadIndex", int32(0))
		info.Set("preloadSize", int32(0))
		info.Set("asset", entries[path].Document())
		pair := typetree.NewDocument()
		pair.Set("first", path)
		pair.Set("second", info)
		container = append(container, pair)
	}
	d := typetree.NewDocument()
	d.Set("m_Name", "bundle")
	d.Set("m_Container", container)
	return d
}

type fixtureObject struct {
	pathID int64
	class  ClassID
	doc    *typetree.Document
}

type fixture struct {
	version   uint32
	endian    binio.Endian
	externals []External
	objects   []fixtureObject
}

// buildSerialized encodes a serialized file with the writer under test.
func buildSerialized(t *testing.T, fx fixture) []byte {
	t.Helper()
	var endianness byte
	if fx.endian == binio.BigEndian {
		endianness = 1
	}
	f := &SerializedFile{
		Header:         SerializedHeader{Version: fx.version, Endianness: endianness},
		headerEndian:   binio.BigEndian,
		UnityVersion:   "2020.3.34f1",
		TargetPlatform: 19,
		EnableTypeTree: true,
		Externals:      fx.externals,
		byID:           map[int64]*Object{},
	}
	typeIndex := map[ClassID]int{}
	for _, o := range fx.objects {
		if _, ok := typeIndex[o.class]; ok {
			continue
		}
		typeIndex[o.class] = len(f.Types)
		f.Types = append(f.Types, &SerializedType{
			ClassID:         int32(o.class),
			ScriptTypeIndex: -1,
			OldTypeHash:     make([]byte, hashSize),
			Nodes:           nodesFor(o.class),
		})
	}
	for _, o := range fx.objects {
		idx := typeIndex[o.class]
		root, err := f.Types[idx].Tree()
		require.NoError(t, err)
		w := binio.NewWriter(f.Endian())
		require.NoError(t, typetree.WriteDocument(w, root, o.doc))

		obj := &Object{file: f, PathID: o.pathID, ClassID: o.class, ScriptTypeIndex: -1, data: w.Bytes(), replaced: true, ByteSize: uint32(w.Len())}
		obj.TypeID = int32(idx)
		if fx.version < formatRefactoredClassID {
			obj.TypeID = int32(o.class)
		}
		f.objects = append(f.objects, obj)
		f.byID[o.pathID] = obj
	}
	raw, err := f.serialize()
	require.NoError(t, err)
	return raw
}

// pointerFixture is a pair of serialized files where CAB-a references an
// object of CAB-b.
func pointerFixture(t *testing.T) (a, b []byte) {
	t.Helper()
	a = buildSerialized(t, fixture{
		version:   22,
		endian:    binio.LittleEndian,
		externals: []External{{Type: 0, Path: "archive:/CAB-b/CAB-b"}},
		objects: []fixtureObject{
			{pathID: 1, class: ClassTextAsset, doc: textAsset("first", Pointer{FileID: 1, PathID: 7})},
			{pathID: 2, class: ClassAssetBundle, doc: assetBundle(map[string]Pointer{
				"assets/first.txt":  {PathID: 1},
				"assets/second.txt": {FileID: 1, PathID: 7},
			}, "assets/first.txt", "assets/second.txt")},
		},
	})
	b = buildSerialized(t, fixture{
		version: 22,
		endian:  binio.LittleEndian,
		objects: []fixtureObject{
			{pathID: 7, class: ClassTextAsset, doc: textAsset("second", Pointer{})},
		},
	})
	return a, b
}

// buildBundle encodes a UnityFS bundle with the writer under test.
func buildBundle(t *testing.T, b *Bundle, opts Options, members ...member) []byte {
	t.Helper()
	raw, err := b.writeFS(members, opts)
	require.NoError(t, err)
	return raw
}

func newFSBundle(revision string) *Bundle {
	return &Bundle{
		Signature:     SignatureUnityFS,
		Version:       7,
		UnityVersion:  "5.x.x",
		UnityRevision: revision,
		Flags:         uint32(compress.LZ4HC),
		aligned:       true,
	}
}

func methodPtr(m compress.Method) *compress.Method { return &m }

func streamPtr(s compress.Stream) *compress.Stream { return &s }

// memberData returns the name and bytes of every child of c.
func memberData(t *testing.T, c *Container) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	for _, child := range c.Children() {
		b, err := child.Bytes()
		require.NoError(t, err)
		out[child.Name()] = b
	}
	return out
}
