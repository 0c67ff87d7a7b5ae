package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eichs/unitypack/asset"
	"github.com/eichs/unitypack/internal/compress"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unitypack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, asset.DefaultBlockSize, cfg.BlockSize)
	assert.Equal(t, "keep", cfg.Encryption)
	require.NoError(t, cfg.Validate())

	opts, err := cfg.Options(nil)
	require.NoError(t, err)
	assert.Nil(t, opts.Key)
	assert.Nil(t, opts.Compression)
	assert.Nil(t, opts.Stream)
	assert.Nil(t, opts.TypeTrees)
}

func TestLoadWithoutPath(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, `
key: 516b7a029d3e44c1880f12a65be73099
compression: lz4hc
stream: brotli
block_size: 65536
encryption: strip
log_level: debug
strict: true
type_trees:
  "Assembly-CSharp.dll:Game.Settings":
    - {level: 0, type: Settings, name: Base}
    - {level: 1, type: int, name: m_Volume, byte_size: 4}
    - {level: 1, type: bool, name: m_Muted, byte_size: 1, align: true}
`)
	t.Setenv(EnvVar, path)
	cfg, err := Load("")
	require.NoError(t, err)

	opts, err := cfg.Options(slog.Default())
	require.NoError(t, err)
	require.NotNil(t, opts.Key)
	assert.Equal(t, "516b7a029d3e44c1880f12a65be73099", opts.Key.String())
	assert.Equal(t, compress.LZ4HC, *opts.Compression)
	assert.Equal(t, compress.StreamBrotli, *opts.Stream)
	assert.Equal(t, 65536, opts.BlockSize)
	assert.Equal(t, asset.EncryptionStrip, opts.Encryption)
	assert.True(t, opts.Strict)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	require.NotNil(t, opts.TypeTrees)
	root, err := opts.TypeTrees.Tree(context.Background(), "Assembly-CSharp.dll", "Game.Settings")
	require.NoError(t, err)
	require.Len(t, root.Children, 2)
	assert.True(t, root.Children[1].Aligned())
}

func TestLoadFlagPathWins(t *testing.T) {
	t.Setenv(EnvVar, writeConfig(t, "log_level: error\n"))
	cfg, err := Load(writeConfig(t, "log_level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"short key":        "key: abcd\n",
		"bad compression":  "compression: zstd\n",
		"bad stream":       "stream: zip\n",
		"bad encryption":   "encryption: maybe\n",
		"bad level":        "log_level: loud\n",
		"negative block":   "block_size: -1\n",
		"bad type key":     "type_trees:\n  NoColon: []\n",
		"not yaml mapping": "- just\n- a list\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
