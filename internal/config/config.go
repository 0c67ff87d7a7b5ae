// Package config loads the unitypack command configuration.
//
// Configuration comes from a single YAML file named by the --config flag or,
// when the flag is absent, the UNITYPACK_CONFIG environment variable. With
// neither set the defaults apply. Command-line flags override file values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eichs/unitypack/asset"
	"github.com/eichs/unitypack/internal/compress"
	"github.com/eichs/unitypack/internal/unitycn"
	"github.com/eichs/unitypack/typetree"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "UNITYPACK_CONFIG"

// Config is the command configuration.
type Config struct {
	// Key is the hex Unity-China decryption key.
	Key string `yaml:"key"`

	// Compression is the block method of rebuilt bundles: none, lzma, lz4 or
	// lz4hc. Empty keeps each bundle's method.
	Compression string `yaml:"compression"`

	// Stream is the wrapper of rebuilt web archives: none, gzip or brotli.
	// Empty keeps each archive's wrapper.
	Stream string `yaml:"stream"`

	// BlockSize is the uncompressed block size of rebuilt bundles.
	// Default: 131072
	BlockSize int `yaml:"block_size"`

	// Encryption is "keep" or "strip".
	// Default: keep
	Encryption string `yaml:"encryption"`

	// LogLevel is debug, info, warn or error.
	// Default: info
	LogLevel string `yaml:"log_level"`

	// Strict fails a load on the first malformed archive member.
	Strict bool `yaml:"strict"`

	// TypeTrees maps "Assembly.dll:Namespace.Type" to the field list of a
	// script type whose files carry no type tree.
	TypeTrees map[string][]TypeTreeNode `yaml:"type_trees"`
}

// TypeTreeNode is one flat type-tree entry.
type TypeTreeNode struct {
	Level    int    `yaml:"level"`
	Type     string `yaml:"type"`
	Name     string `yaml:"name"`
	ByteSize int32  `yaml:"byte_size"`
	Align    bool   `yaml:"align"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BlockSize:  asset.DefaultBlockSize,
		Encryption: "keep",
		LogLevel:   "info",
	}
}

// Load reads the file at path, falling back to UNITYPACK_CONFIG. With
// neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the file at path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if _, err := c.ParsedKey(); err != nil {
		return err
	}
	if _, err := c.Method(); err != nil {
		return err
	}
	if _, err := c.StreamOverride(); err != nil {
		return err
	}
	if _, err := c.EncryptionMode(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.BlockSize < 0 {
		return fmt.Errorf("block_size must not be negative, got %d", c.BlockSize)
	}
	for k := range c.TypeTrees {
		if _, err := parseTypeKey(k); err != nil {
			return err
		}
	}
	return nil
}

// ParsedKey returns the decryption key, or nil when none is set.
func (c *Config) ParsedKey() (*unitycn.Key, error) {
	if c.Key == "" {
		return nil, nil
	}
	k, err := unitycn.ParseKey(c.Key)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Method returns the compression override, or nil to keep each bundle's.
func (c *Config) Method() (*compress.Method, error) {
	if c.Compression == "" {
		return nil, nil
	}
	m, err := compress.ParseMethod(c.Compression)
	if err != nil {
		return nil, fmt.Errorf("compression: %w", err)
	}
	return &m, nil
}

// StreamOverride returns the web wrapper override, or nil.
func (c *Config) StreamOverride() (*compress.Stream, error) {
	if c.Stream == "" {
		return nil, nil
	}
	s, err := compress.ParseStream(c.Stream)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	return &s, nil
}

// EncryptionMode maps the encryption setting.
func (c *Config) EncryptionMode() (asset.Encryption, error) {
	switch strings.ToLower(c.Encryption) {
	case "", "keep":
		return asset.EncryptionKeep, nil
	case "strip":
		return asset.EncryptionStrip, nil
	}
	return 0, fmt.Errorf("encryption must be keep or strip, got %q", c.Encryption)
}

// Level returns the log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Generator returns the configured script type trees, or nil when none are
// configured.
func (c *Config) Generator() (typetree.MapGenerator, error) {
	if len(c.TypeTrees) == 0 {
		return nil, nil
	}
	gen := make(typetree.MapGenerator, len(c.TypeTrees))
	for k, fields := range c.TypeTrees {
		key, err := parseTypeKey(k)
		if err != nil {
			return nil, err
		}
		nodes := make([]typetree.Node, len(fields))
		for i, s := range fields {
			nodes[i] = typetree.Node{Level: s.Level, Type: s.Type, Name: s.Name, ByteSize: s.ByteSize}
			if s.Align {
				nodes[i].MetaFlag = typetree.MetaFlagAlign
			}
		}
		gen[key] = nodes
	}
	return gen, nil
}

var errTypeKey = errors.New(`type_trees keys must look like "Assembly.dll:Type"`)

func parseTypeKey(k string) (typetree.Key, error) {
	asm, typ, ok := strings.Cut(k, ":")
	if !ok || asm == "" || typ == "" {
		return typetree.Key{}, fmt.Errorf("%w, got %q", errTypeKey, k)
	}
	return typetree.Key{Assembly: asm, Type: typ}, nil
}

// Options builds load options. logger may be nil.
func (c *Config) Options(logger *slog.Logger) (asset.Options, error) {
	opts := asset.Options{Logger: logger, BlockSize: c.BlockSize, Strict: c.Strict}
	var err error
	if opts.Key, err = c.ParsedKey(); err != nil {
		return opts, err
	}
	if opts.Compression, err = c.Method(); err != nil {
		return opts, err
	}
	if opts.Stream, err = c.StreamOverride(); err != nil {
		return opts, err
	}
	if opts.Encryption, err = c.EncryptionMode(); err != nil {
		return opts, err
	}
	gen, err := c.Generator()
	if err != nil {
		return opts, err
	}
	if gen != nil {
		opts.TypeTrees = typetree.NewCache(gen, 0)
	}
	return opts, nil
}
