package asset

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eichs/unitypack/internal/binio"
)

func TestSerializedFileRoundTrip(t *testing.T) {
	for _, version := range []uint32{8, 15, 17, 22} {
		for _, endian := range []binio.Endian{binio.LittleEndian, binio.BigEndian} {
			t.Run(fmt.Sprintf("v%d-%s", version, endian), func(t *testing.T) {
				raw := buildSerialized(t, fixture{
					version:   version,
					endian:    endian,
					externals: []External{{AssetPath: "", Type: 3, Path: "library/unity default resources"}},
					objects: []fixtureObject{
						{pathID: 1, class: ClassTextAsset, doc: textAsset("first", Pointer{FileID: 1, PathID: 10})},
						{pathID: 5, class: ClassTextAsset, doc: textAsset("fifth", Pointer{})},
					},
				})
				d := Detect(raw)
				require.Equal(t, KindSerializedFile, d.Kind)
				assert.Equal(t, binio.BigEndian, d.Endian)

				c, err := Load("CAB-test", raw, Options{})
				require.NoError(t, err)
				f := c.SerializedFile()
				require.NotNil(t, f)
				assert.Equal(t, version, f.Version())
				assert.Equal(t, endian, f.Endian())
				if version >= 7 {
					assert.Equal(t, "2020.3.34f1", f.UnityVersion)
				}
				require.Len(t, f.Objects(), 2)
				require.Len(t, f.Externals, 1)
				assert.Equal(t, "library/unity default resources", f.Externals[0].Path)

				o, ok := f.Object(5)
				require.True(t, ok)
				assert.Equal(t, ClassTextAsset, o.ClassID)
				assert.Equal(t, "fifth", o.Name())
				assert.Equal(t, int64(0), o.ByteStart%objectAlign)

				out, err := c.Serialize()
				require.NoError(t, err)
				assert.Equal(t, raw, out)
			})
		}
	}
}

func TestSerializedFileReplaceObject(t *testing.T) {
	raw := buildSerialized(t, fixture{
		version: 17,
		endian:  binio.LittleEndian,
		objects: []fixtureObject{
			{pathID: 1, class: ClassTextAsset, doc: textAsset("short", Pointer{})},
			{pathID: 2, class: ClassTextAsset, doc: textAsset("other", Pointer{})},
		},
	})
	c, err := Load("CAB-test", raw, Options{})
	require.NoError(t, err)
	f := c.SerializedFile()
	o, _ := f.Object(1)

	doc, err := o.Document()
	require.NoError(t, err)
	doc.Set("m_Name", "a considerably longer name")
	require.NoError(t, o.SetDocument(doc))
	assert.True(t, c.Dirty())

	out, err := c.Bytes()
	require.NoError(t, err)
	assert.NotEqual(t, raw, out)

	again, err := Load("CAB-test", out, Options{})
	require.NoError(t, err)
	o1, _ := again.SerializedFile().Object(1)
	o2, _ := again.SerializedFile().Object(2)
	assert.Equal(t, "a considerably longer name", o1.Name())
	assert.Equal(t, "other", o2.Name())
}

func TestObjectSetBytesUnchangedStaysClean(t *testing.T) {
	raw := buildSerialized(t, fixture{
		version: 22,
		endian:  binio.LittleEndian,
		objects: []fixtureObject{{pathID: 1, class: ClassTextAsset, doc: textAsset("x", Pointer{})}},
	})
	c, err := Load("CAB-test", raw, Options{})
	require.NoError(t, err)
	o, _ := c.SerializedFile().Object(1)
	b, err := o.Bytes()
	require.NoError(t, err)
	o.SetBytes(b)
	assert.False(t, c.Dirty())
}

func TestObjectDecode(t *testing.T) {
	raw := buildSerialized(t, fixture{
		version: 22,
		endian:  binio.BigEndian,
		objects: []fixtureObject{{pathID: 3, class: ClassTextAsset, doc: textAsset("typed", Pointer{FileID: 2, PathID: -9})}},
	})
	c, err := Load("CAB-test", raw, Options{})
	require.NoError(t, err)
	o, _ := c.SerializedFile().Object(3)

	var v struct {
		Name   string  `cbor:"m_Name"`
		Script string  `cbor:"m_Script"`
		Ref    Pointer `cbor:"m_Ref"`
	}
	require.NoError(t, o.Decode(&v))
	assert.Equal(t, "typed", v.Name)
	assert.Equal(t, "body of typed", v.Script)
	assert.Equal(t, Pointer{FileID: 2, PathID: -9}, v.Ref)
}

func TestObjectBytesOutOfRange(t *testing.T) {
	raw := buildSerialized(t, fixture{
		version: 22,
		endian:  binio.LittleEndian,
		objects: []fixtureObject{{pathID: 1, class: ClassTextAsset, doc: textAsset("x", Pointer{})}},
	})
	c, err := Load("CAB-test", raw, Options{})
	require.NoError(t, err)
	o, _ := c.SerializedFile().Object(1)
	o.ByteSize = 1 << 20
	_, err = o.Bytes()
	assert.ErrorIs(t, err, ErrTruncated)

	o.ByteSize = 4
	for _, start := range []int64{math.MaxInt64, math.MaxInt64 - 2, -1} {
		o.ByteStart = start
		_, err = o.Bytes()
		assert.ErrorIs(t, err, ErrTruncated, "start %d", start)
	}
}

func TestSerializedFileDuplicatePathID(t *testing.T) {
	raw := buildSerialized(t, fixture{
		version: 22,
		endian:  binio.LittleEndian,
		objects: []fixtureObject{
			{pathID: 4, class: ClassTextAsset, doc: textAsset("a", Pointer{})},
			{pathID: 4, class: ClassTextAsset, doc: textAsset("b", Pointer{})},
		},
	})
	_, err := Load("CAB-test", raw, Options{})
	assert.ErrorContains(t, err, "duplicate path id 4")
}

func TestSerializedFileTruncatedMetadata(t *testing.T) {
	raw := buildSerialized(t, fixture{
		version: 22,
		endian:  binio.LittleEndian,
		objects: []fixtureObject{{pathID: 1, class: ClassTextAsset, doc: textAsset("x", Pointer{})}},
	})
	_, err := parseSerializedFile(raw[:headerSizeLarge+8], binio.BigEndian)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestObjectsWithoutTypeTree(t *testing.T) {
	raw := buildSerialized(t, fixture{
		version: 22,
		endian:  binio.LittleEndian,
		objects: []fixtureObject{{pathID: 1, class: ClassTextAsset, doc: textAsset("x", Pointer{})}},
	})
	c, err := Load("CAB-test", raw, Options{})
	require.NoError(t, err)
	f := c.SerializedFile()
	f.Types[0].Nodes = nil
	f.Types[0].tree = nil
	o, _ := f.Object(1)
	_, err = o.Document()
	assert.ErrorIs(t, err, ErrNoTypeTree)
	assert.Equal(t, "", o.Name())
}
