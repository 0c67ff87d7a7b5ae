package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirtyPropagation(t *testing.T) {
	bundle := loadPointerBundle(t, Options{})
	a := bundle.Child("CAB-a")
	res := bundle.Child("CAB-a.resS")
	assert.False(t, bundle.Dirty())

	o, ok := a.SerializedFile().Object(1)
	require.True(t, ok)
	doc, err := o.Document()
	require.NoError(t, err)
	doc.Set("m_Script", "rewritten")
	require.NoError(t, o.SetDocument(doc))

	assert.True(t, a.Dirty())
	assert.True(t, bundle.Dirty())
	assert.False(t, res.Dirty())
	assert.False(t, bundle.Child("CAB-b").Dirty())

	out, err := bundle.Bytes()
	require.NoError(t, err)
	again, err := Load("bundle", out, Options{})
	require.NoError(t, err)
	o, _ = again.Child("CAB-a").SerializedFile().Object(1)
	doc, err = o.Document()
	require.NoError(t, err)
	v, _ := doc.Get("m_Script")
	assert.Equal(t, "rewritten", v)
	assert.Equal(t, memberData(t, bundle)["CAB-a.resS"], memberData(t, again)["CAB-a.resS"])
}

func TestScratchBuffer(t *testing.T) {
	bundle := loadPointerBundle(t, Options{})
	a := bundle.Child("CAB-a")
	b := bundle.Child("CAB-b")

	_, err := a.ScratchBuffer("")
	assert.ErrorIs(t, err, ErrScratchConflict)

	buf, err := b.ScratchBuffer("")
	require.NoError(t, err)
	assert.Equal(t, KindBuffer, buf.Kind())
	assert.Equal(t, "CAB-b.resS", buf.Name())
	flags, ok := bundle.Flags("CAB-b.resS")
	require.True(t, ok)
	assert.Zero(t, flags)
	assert.True(t, bundle.Dirty())

	off, err := buf.Append([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)
	off, err = buf.Append([]byte("ef"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), off)

	same, err := b.ScratchBuffer("CAB-b.resS")
	require.NoError(t, err)
	assert.Same(t, buf, same)

	require.True(t, bundle.SetFlags("CAB-b.resS", 2))
	other, err := bundle.ScratchBuffer("extra.resS")
	require.NoError(t, err)
	flags, _ = bundle.Flags(other.Name())
	assert.Equal(t, uint32(2), flags)

	_, err = a.Append([]byte("x"))
	assert.ErrorIs(t, err, ErrWrongKind)

	out, err := bundle.Bytes()
	require.NoError(t, err)
	again, err := Load("bundle", out, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), memberData(t, again)["CAB-b.resS"])
}

func TestContainerLookup(t *testing.T) {
	bundle := loadPointerBundle(t, Options{})
	assert.Same(t, bundle.Child("CAB-a"), bundle.Child("cab-A"))
	assert.Nil(t, bundle.Child("missing"))
	assert.Same(t, bundle.Child("CAB-b"), bundle.Find("cab-b"))

	assert.Len(t, bundle.Objects(), 3)
	assert.Len(t, bundle.ObjectsOf(ClassTextAsset), 2)
	assert.Len(t, bundle.ObjectsOf(ClassAssetBundle, ClassTextAsset), 3)

	var paths []string
	bundle.Walk(func(path string, c *Container) { paths = append(paths, path) })
	assert.Equal(t, []string{"bundle", "bundle/CAB-a", "bundle/CAB-a.resS", "bundle/CAB-b"}, paths)

	p, err := bundle.Child("CAB-b").Parent()
	require.NoError(t, err)
	assert.Same(t, bundle, p)
	_, err = bundle.Parent()
	assert.ErrorIs(t, err, ErrNoParent)
	assert.Equal(t, []*Container{bundle}, bundle.Graph().Roots())
}

func TestContents(t *testing.T) {
	bundle := loadPointerBundle(t, Options{})
	assert.Equal(t, map[string]int64{
		"assets/first.txt":  1,
		"assets/second.txt": 7,
	}, bundle.Contents())
}

func TestRemoveChild(t *testing.T) {
	bundle := loadPointerBundle(t, Options{})
	res := bundle.Child("CAB-a.resS")
	id := res.ID()
	bundle.Graph().Remove(res)

	assert.Nil(t, bundle.Graph().Node(id))
	assert.Nil(t, bundle.Child("CAB-a.resS"))
	assert.Len(t, bundle.Children(), 2)
	_, err := res.Parent()
	assert.ErrorIs(t, err, ErrParentGone)
	assert.True(t, bundle.Dirty())
}

func TestSetRaw(t *testing.T) {
	bundle := loadPointerBundle(t, Options{})
	res := bundle.Child("CAB-a.resS")
	require.NoError(t, res.SetRaw([]byte("new resource bytes")))
	assert.True(t, bundle.Dirty())
	assert.ErrorIs(t, bundle.SetRaw(nil), ErrWrongKind)

	out, err := bundle.Bytes()
	require.NoError(t, err)
	again, err := Load("bundle", out, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte("new resource bytes"), memberData(t, again)["CAB-a.resS"])
}

func TestVersion(t *testing.T) {
	v, err := ParseVersion("2020.3.34f1c1")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 2020, Minor: 3, Patch: 34, Type: "f", Build: 1}, v)
	assert.Equal(t, "2020.3.34f1", v.String())

	_, err = ParseVersion("5.x.x")
	assert.Error(t, err)

	older, _ := ParseVersion("2019.4.40f1")
	assert.Negative(t, older.Compare(v))
	assert.True(t, older.Before(2020, 1, 0))

	for rev, legacy := range map[string]bool{
		"2018.4.1f1":  true,
		"2020.3.33f1": true,
		"2020.3.34f1": false,
		"2021.3.1f1":  true,
		"2021.3.2f1":  false,
		"2022.1.0f1":  true,
		"2022.1.1f1":  false,
		"2023.2.0f1":  false,
	} {
		v, err := ParseVersion(rev)
		require.NoError(t, err)
		assert.Equal(t, legacy, v.usesLegacyCNFlags(), rev)
	}
}

func TestClassID(t *testing.T) {
	assert.Equal(t, "TextAsset", ClassTextAsset.String())
	id, ok := ParseClassID("AssetBundle")
	require.True(t, ok)
	assert.Equal(t, ClassAssetBundle, id)
	id, ok = ParseClassID("1001")
	require.True(t, ok)
	assert.Equal(t, ClassID(1001), id)
	_, ok = ParseClassID("NoSuchClass")
	assert.False(t, ok)
}
