package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eichs/unitypack/asset"
	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
	"github.com/eichs/unitypack/internal/config"
)

// webArchive writes an uncompressed web archive holding files to a temp dir.
func webArchive(t *testing.T, files map[string]string, order ...string) string {
	t.Helper()
	const sig = "UnityWebData1.0"
	head := int32(len(sig) + 1 + 4)
	for _, name := range order {
		head += 12 + int32(len(name))
	}
	w := binio.NewWriter(binio.LittleEndian)
	w.StringToNull(sig)
	w.I32(head)
	off := head
	for _, name := range order {
		w.I32(off)
		w.I32(int32(len(files[name])))
		w.I32(int32(len(name)))
		w.Write([]byte(name))
		off += int32(len(files[name]))
	}
	for _, name := range order {
		w.Write([]byte(files[name]))
	}
	path := filepath.Join(t.TempDir(), "WebGL.data")
	require.NoError(t, os.WriteFile(path, w.Bytes(), 0o644))
	return path
}

func sampleArchive(t *testing.T) string {
	t.Helper()
	return webArchive(t, map[string]string{
		"data.txt":                   "hello from the archive",
		"StreamingAssets/notes.json": `{"level": 3}`,
	}, "data.txt", "StreamingAssets/notes.json")
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvVar, "")
	configPath, keyHex, logLevel, strict = "", "", "", false
	lsDigest, lsObjects = false, false
	extractDir, extractObjects = ".", false
	dumpFormat, dumpClasses, dumpPathID, dumpScript = "json", nil, 0, ""
	repackOutput, repackCompression, repackStream, repackBlockSize, repackDecrypt = "", "", "", 0, false
	resolveDeps = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDetectCommand(t *testing.T) {
	web := sampleArchive(t)
	plain := filepath.Join(t.TempDir(), "plain.bin")
	require.NoError(t, os.WriteFile(plain, []byte("short"), 0o644))

	out, err := run(t, "detect", web, plain)
	require.NoError(t, err)
	assert.Contains(t, out, web+": Web (none)")
	assert.Contains(t, out, plain+": Raw")

	_, err = run(t, "detect", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLsCommand(t *testing.T) {
	out, err := run(t, "ls", sampleArchive(t), "--digest")
	require.NoError(t, err)
	assert.Contains(t, out, "UnityWebData1.0 (none, 2 entries)")
	assert.Contains(t, out, "data.txt")
	assert.Contains(t, out, "StreamingAssets/notes.json")
	assert.Contains(t, out, "22 B")
	assert.Regexp(t, `data\.txt  [0-9a-f]{64}`, out)
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "extract", sampleArchive(t), "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "WebGL.data/data.txt")

	got, err := os.ReadFile(filepath.Join(dir, "WebGL.data", "StreamingAssets", "notes.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"level": 3}`, string(got))
}

func TestOutputPathRejectsEscapes(t *testing.T) {
	_, err := outputPath("out", "web/../../etc/passwd")
	assert.Error(t, err)
	p, err := outputPath("out", "web/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "web", "a", "b.txt"), p)
}

func TestRepackCommand(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "WebGL.data.gz")
	out, err := run(t, "repack", sampleArchive(t), "-o", dst, "--stream", "gzip")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+dst)

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	d := asset.Detect(raw)
	assert.Equal(t, asset.KindWeb, d.Kind)
	assert.Equal(t, compress.StreamGzip, d.Stream)

	c, err := asset.Load("web", raw, asset.Options{})
	require.NoError(t, err)
	b, err := c.Child("data.txt").Bytes()
	require.NoError(t, err)
	assert.Equal(t, "hello from the archive", string(b))

	_, err = run(t, "repack", sampleArchive(t), "--stream", "zip")
	assert.Error(t, err)
}

func TestDumpCommandWithoutObjects(t *testing.T) {
	out, err := run(t, "dump", sampleArchive(t))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = run(t, "dump", sampleArchive(t), "--class", "NoSuchClass")
	assert.Error(t, err)
	_, err = run(t, "dump", sampleArchive(t), "--format", "xml")
	assert.Error(t, err)
}

func TestKeyCommandUnencrypted(t *testing.T) {
	out, err := run(t, "key", sampleArchive(t))
	require.NoError(t, err)
	assert.Equal(t, "no encrypted bundles\n", out)
}

func TestResolveCommandErrors(t *testing.T) {
	_, err := run(t, "resolve", sampleArchive(t), "data.txt", "0", "1")
	assert.ErrorContains(t, err, "no serialized file")
	_, err = run(t, "resolve", sampleArchive(t), "data.txt", "x", "1")
	assert.Error(t, err)
}

func TestGlobalFlagValidation(t *testing.T) {
	_, err := run(t, "ls", sampleArchive(t), "--key", "abcd")
	assert.Error(t, err)
	_, err = run(t, "ls", sampleArchive(t), "--log-level", "loud")
	assert.Error(t, err)
}
