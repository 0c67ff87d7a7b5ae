package asset

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
	"github.com/eichs/unitypack/internal/unitycn"
)

var (
	testKey     = unitycn.Key{0x51, 0x6b, 0x7a, 0x02, 0x9d, 0x3e, 0x44, 0xc1, 0x88, 0x0f, 0x12, 0xa6, 0x5b, 0xe7, 0x30, 0x99}
	testIndex   = [16]byte{7, 2, 11, 0, 14, 5, 9, 1, 15, 3, 12, 6, 10, 4, 8, 13}
	testSub     = [16]byte{3, 9, 0, 12, 5, 5, 1, 14, 8, 2, 7, 11, 4, 13, 6, 10}
	testDataKey = [16]byte{0: 0xAA, 5: 0x10, 15: 0x01}
	testSigKey  = [16]byte{0: 0x01, 1: 0x02, 2: 0x03, 14: 0xFE}
)

func bundleMembers(t *testing.T) []member {
	t.Helper()
	a, b := pointerFixture(t)
	return []member{
		{name: "CAB-a", flags: NodeSerializedFile, data: a},
		{name: "CAB-a.resS", data: bytes.Repeat([]byte("resource "), 300)},
		{name: "CAB-b", flags: NodeSerializedFile, data: b},
	}
}

func requireMembers(t *testing.T, c *Container, want []member) {
	t.Helper()
	children := c.Children()
	require.Len(t, children, len(want))
	for i, m := range want {
		assert.Equal(t, m.name, children[i].Name())
		flags, ok := c.Flags(m.name)
		require.True(t, ok)
		assert.Equal(t, m.flags, flags, m.name)
		got, err := children[i].Bytes()
		require.NoError(t, err)
		assert.Equal(t, m.data, got, m.name)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	for _, m := range []compress.Method{compress.None, compress.LZMA, compress.LZ4, compress.LZ4HC} {
		t.Run(m.String(), func(t *testing.T) {
			members := bundleMembers(t)
			raw := buildBundle(t, newFSBundle("2020.3.34f1"), Options{Compression: methodPtr(m)}, members...)
			require.Equal(t, KindBundle, Detect(raw).Kind)

			c, err := Load("bundle", raw, Options{})
			require.NoError(t, err)
			require.Equal(t, KindBundle, c.Kind())
			requireMembers(t, c, members)
			assert.Equal(t, KindSerializedFile, c.Child("CAB-a").Kind())
			assert.Equal(t, KindRaw, c.Child("CAB-a.resS").Kind())
			assert.Equal(t, m, c.Bundle().Method())
			assert.Equal(t, int64(len(raw)), c.Bundle().Size)

			clean, err := c.Bytes()
			require.NoError(t, err)
			assert.Equal(t, raw, clean)

			out, err := c.Serialize()
			require.NoError(t, err)
			again, err := Load("bundle", out, Options{})
			require.NoError(t, err)
			requireMembers(t, again, members)
			assert.Equal(t, c.Bundle().Hash, again.Bundle().Hash)
		})
	}
}

func TestBundleBlockSplitting(t *testing.T) {
	members := bundleMembers(t)
	var total int
	for _, m := range members {
		total += len(m.data)
	}
	raw := buildBundle(t, newFSBundle("2020.3.34f1"), Options{Compression: methodPtr(compress.LZ4), BlockSize: 512}, members...)
	c, err := Load("bundle", raw, Options{})
	require.NoError(t, err)
	assert.Len(t, c.Bundle().Blocks, (total+511)/512)
	for _, blk := range c.Bundle().Blocks[:len(c.Bundle().Blocks)-1] {
		assert.Equal(t, uint32(512), blk.UncompressedSize)
	}
	requireMembers(t, c, members)
}

func TestBundleRecompress(t *testing.T) {
	members := bundleMembers(t)
	raw := buildBundle(t, newFSBundle("2020.3.34f1"), Options{Compression: methodPtr(compress.LZ4HC)}, members...)
	c, err := Load("bundle", raw, Options{Compression: methodPtr(compress.None)})
	require.NoError(t, err)
	out, err := c.Serialize()
	require.NoError(t, err)

	again, err := Load("bundle", out, Options{})
	require.NoError(t, err)
	for _, blk := range again.Bundle().Blocks {
		assert.Equal(t, compress.None, blk.Method())
	}
	assert.Equal(t, uint32(compress.None), again.Bundle().Flags&archiveCompressionMask)
	requireMembers(t, again, members)
}

// handBundle lays out a UnityFS v6 bundle with its blocks info at the end of
// the file.
func handBundle(blockFlags uint16, payload []byte, nodes ...DirectoryNode) []byte {
	info := binio.NewWriter(binio.BigEndian)
	info.Write(make([]byte, bundleHashSize))
	info.I32(1)
	info.U32(uint32(len(payload)))
	info.U32(uint32(len(payload)))
	info.U16(blockFlags)
	info.I32(int32(len(nodes)))
	for _, n := range nodes {
		info.I64(n.Offset)
		info.I64(n.Size)
		info.U32(n.Flags)
		info.StringToNull(n.Path)
	}

	w := binio.NewWriter(binio.BigEndian)
	w.StringToNull("UnityFS")
	w.U32(6)
	w.StringToNull("5.x.x")
	w.StringToNull("5.6.7f1")
	sizePos := w.Pos()
	w.I64(0)
	w.U32(uint32(info.Len()))
	w.U32(uint32(info.Len()))
	w.U32(archiveBlocksAndDirectory | archiveBlocksInfoAtTheEnd)
	w.Write(payload)
	w.Write(info.Bytes())
	w.PatchI64(sizePos, w.Len())
	return w.Bytes()
}

func TestBundleBlocksInfoAtTheEnd(t *testing.T) {
	raw := handBundle(0, []byte("helloworld!"),
		DirectoryNode{Offset: 0, Size: 5, Path: "a"},
		DirectoryNode{Offset: 5, Size: 6, Path: "b"})
	c, err := Load("old", raw, Options{})
	require.NoError(t, err)
	want := []member{{name: "a", data: []byte("hello")}, {name: "b", data: []byte("world!")}}
	requireMembers(t, c, want)
	assert.False(t, c.Bundle().aligned)

	c.MarkDirty()
	out, err := c.Bytes()
	require.NoError(t, err)
	again, err := Load("old", out, Options{})
	require.NoError(t, err)
	assert.Zero(t, again.Bundle().Flags&archiveBlocksInfoAtTheEnd)
	requireMembers(t, again, want)
}

func TestBundleUnsupportedCompression(t *testing.T) {
	raw := handBundle(uint16(compress.LZHAM), []byte("helloworld!"), DirectoryNode{Size: 11, Path: "a"})
	_, err := Load("lzham", raw, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestBundleNodeOutOfRange(t *testing.T) {
	raw := handBundle(0, []byte("hello"), DirectoryNode{Offset: 2, Size: 10, Path: "a"})
	_, err := Load("bad", raw, Options{})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestBundleNodeOffsetOverflow(t *testing.T) {
	for _, n := range []DirectoryNode{
		{Offset: math.MaxInt64, Size: 2, Path: "a"},
		{Offset: 1, Size: math.MaxInt64, Path: "a"},
		{Offset: -1, Size: 2, Path: "a"},
	} {
		raw := handBundle(0, []byte("hello"), n)
		_, err := Load("bad", raw, Options{})
		assert.ErrorIs(t, err, ErrTruncated, "%+v", n)
	}
}

func TestBundleMalformedMemberKeptRaw(t *testing.T) {
	broken := padded("UnityFS\x00", 40)
	members := []member{{name: "nested", data: broken}, {name: "ok", data: []byte("plain resource data")}}
	raw := buildBundle(t, newFSBundle("2020.3.34f1"), Options{Compression: methodPtr(compress.None)}, members...)

	c, err := Load("bundle", raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, KindRaw, c.Child("nested").Kind())
	requireMembers(t, c, members)

	_, err = Load("bundle", raw, Options{Strict: true})
	assert.Error(t, err)
}

func encryptedBundle(t *testing.T, revision string, members []member) []byte {
	t.Helper()
	h, err := unitycn.NewHeader(testKey, testIndex, testSub, testDataKey, testSigKey)
	require.NoError(t, err)
	dec, err := unitycn.New(h, &testKey)
	require.NoError(t, err)
	b := newFSBundle(revision)
	b.CN, b.decryptor = &h, dec
	rev, err := ParseVersion(revision)
	require.NoError(t, err)
	b.legacyCN = rev.usesLegacyCNFlags()
	return buildBundle(t, b, Options{Compression: methodPtr(compress.LZ4), BlockSize: 1024}, members...)
}

func TestBundleUnityCN(t *testing.T) {
	for _, tt := range []struct {
		revision string
		flag     uint32
	}{
		{"2020.3.34f1", archiveCN},
		{"2019.4.40f1", archiveCNLegacy},
	} {
		t.Run(tt.revision, func(t *testing.T) {
			members := bundleMembers(t)
			raw := encryptedBundle(t, tt.revision, members)

			c, err := Load("cn", raw, Options{Key: &testKey})
			require.NoError(t, err)
			b := c.Bundle()
			require.True(t, b.Encrypted())
			assert.NotZero(t, b.Flags&tt.flag)
			var encrypted int
			for _, blk := range b.Blocks {
				if blk.Flags&blockEncrypted != 0 {
					encrypted++
				}
			}
			assert.NotZero(t, encrypted)
			requireMembers(t, c, members)

			// Kept encryption round trips under the same key.
			c.MarkDirty()
			out, err := c.Bytes()
			require.NoError(t, err)
			again, err := Load("cn", out, Options{Key: &testKey})
			require.NoError(t, err)
			assert.True(t, again.Bundle().Encrypted())
			requireMembers(t, again, members)
		})
	}
}

func TestBundleUnityCNKeyErrors(t *testing.T) {
	raw := encryptedBundle(t, "2021.3.5f1", bundleMembers(t))

	_, err := Load("cn", raw, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, unitycn.ErrNoKey)
	var keyErr *unitycn.KeyError
	require.True(t, errors.As(err, &keyErr))

	wrong := testKey
	wrong[0] ^= 0x80
	_, err = Load("cn", raw, Options{Key: &wrong})
	assert.ErrorIs(t, err, unitycn.ErrWrongKey)
	assert.ErrorIs(t, err, unitycn.ErrDecryption)
}

func TestBundleUnityCNStrip(t *testing.T) {
	members := bundleMembers(t)
	raw := encryptedBundle(t, "2022.3.1f1", members)
	c, err := Load("cn", raw, Options{Key: &testKey, Encryption: EncryptionStrip})
	require.NoError(t, err)
	out, err := c.Serialize()
	require.NoError(t, err)

	plain, err := Load("plain", out, Options{})
	require.NoError(t, err)
	assert.False(t, plain.Bundle().Encrypted())
	assert.Zero(t, plain.Bundle().Flags&archiveCN)
	requireMembers(t, plain, members)
}

func TestLegacyBundleRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		signature string
		version   uint32
	}{
		{SignatureUnityRaw, 3},
		{SignatureUnityRaw, 1},
		{SignatureUnityWeb, 4},
	} {
		t.Run(tt.signature, func(t *testing.T) {
			members := bundleMembers(t)
			for i := range members {
				members[i].flags = 0
			}
			b := &Bundle{
				Signature:     tt.signature,
				Version:       tt.version,
				UnityVersion:  "3.x.x",
				UnityRevision: "4.7.2f1",
				legacy:        &legacyHeader{CRC: 0xC0FFEE},
			}
			raw, err := b.writeLegacy(members)
			require.NoError(t, err)

			c, err := Load("legacy", raw, Options{})
			require.NoError(t, err)
			require.True(t, c.Bundle().Legacy())
			requireMembers(t, c, members)
			if tt.version >= 4 {
				assert.Equal(t, uint32(0xC0FFEE), c.Bundle().legacy.CRC)
			}

			out, err := c.Serialize()
			require.NoError(t, err)
			assert.Equal(t, raw, out)
		})
	}
}

func TestLegacyBundleTruncatedPayload(t *testing.T) {
	members := bundleMembers(t)
	for i := range members {
		members[i].flags = 0
	}
	b := &Bundle{Signature: SignatureUnityRaw, Version: 3, UnityVersion: "3.x.x", UnityRevision: "4.7.2f1", legacy: &legacyHeader{}}
	raw, err := b.writeLegacy(members)
	require.NoError(t, err)

	_, err = Load("legacy", raw[:len(raw)-10], Options{})
	assert.ErrorIs(t, err, ErrTruncated)
}
