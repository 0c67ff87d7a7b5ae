package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
)

// newWeb builds an unparsed web archive container holding members.
func newWeb(t *testing.T, opts Options, stream compress.Stream, members ...member) *Container {
	t.Helper()
	g := NewGraph(opts)
	c := g.add(newContainer(KindWeb, "web"))
	c.web = &Web{Signature: "UnityWebData1.0", Stream: stream}
	for _, m := range members {
		_, err := c.AddMember(m.name, m.data, 0)
		require.NoError(t, err)
	}
	return c
}

func webMembers(t *testing.T) []member {
	t.Helper()
	bundle := buildBundle(t, newFSBundle("2020.3.34f1"), Options{Compression: methodPtr(compress.LZ4)}, bundleMembers(t)...)
	return []member{
		{name: "data.unity3d", data: bundle},
		{name: "Il2CppData/Metadata/global-metadata.dat", data: []byte("metadata bytes that stay opaque")},
		{name: "empty", data: []byte{}},
	}
}

func TestWebRoundTrip(t *testing.T) {
	for _, s := range []compress.Stream{compress.StreamNone, compress.StreamGzip, compress.StreamBrotli} {
		t.Run(s.String(), func(t *testing.T) {
			members := webMembers(t)
			raw, err := newWeb(t, Options{}, s, members...).Serialize()
			require.NoError(t, err)

			d := Detect(raw)
			require.Equal(t, KindWeb, d.Kind)
			assert.Equal(t, s, d.Stream)

			c, err := Load("web", raw, Options{})
			require.NoError(t, err)
			assert.Equal(t, s, c.Web().Stream)
			assert.Equal(t, KindBundle, c.Child("data.unity3d").Kind())
			assert.Len(t, c.Child("data.unity3d").Children(), 3)

			children := c.Children()
			require.Len(t, children, len(members))
			for i, m := range members {
				assert.Equal(t, m.name, children[i].Name())
				got, err := children[i].Bytes()
				require.NoError(t, err)
				assert.Equal(t, m.data, got, m.name)
			}

			out, err := c.Serialize()
			require.NoError(t, err)
			assert.Equal(t, raw, out)
		})
	}
}

func TestWebHeaderLayout(t *testing.T) {
	members := []member{{name: "a", data: []byte("12345")}, {name: "bc", data: []byte("678")}}
	raw, err := newWeb(t, Options{}, compress.StreamNone, members...).Serialize()
	require.NoError(t, err)

	r := binio.NewReader(raw, binio.LittleEndian)
	sig, err := r.StringToNull()
	require.NoError(t, err)
	assert.Equal(t, "UnityWebData1.0", sig)
	head, err := r.I32()
	require.NoError(t, err)
	assert.Equal(t, int32(len(sig)+1+4+12+1+12+2), head)
	off, err := r.I32()
	require.NoError(t, err)
	assert.Equal(t, head, off)
	assert.Equal(t, "12345678", string(raw[head:]))
}

func TestWebStreamOverride(t *testing.T) {
	members := []member{{name: "file", data: []byte("some content long enough to matter")}}
	raw, err := newWeb(t, Options{}, compress.StreamNone, members...).Serialize()
	require.NoError(t, err)

	c, err := Load("web", raw, Options{Stream: streamPtr(compress.StreamGzip)})
	require.NoError(t, err)
	out, err := c.Serialize()
	require.NoError(t, err)
	assert.Equal(t, compress.StreamGzip, Detect(out).Stream)
}

func TestWebBadEntry(t *testing.T) {
	w := binio.NewWriter(binio.LittleEndian)
	w.StringToNull("UnityWebData1.0")
	w.I32(int32(16 + 4 + 12 + 1))
	w.I32(100)
	w.I32(50)
	w.I32(1)
	w.Write([]byte("x"))
	_, err := Load("web", w.Bytes(), Options{})
	assert.ErrorIs(t, err, ErrTruncated)
}
