package asset

import (
	"io"
	"log/slog"

	"github.com/eichs/unitypack/internal/compress"
	"github.com/eichs/unitypack/internal/unitycn"
	"github.com/eichs/unitypack/typetree"
)

// DefaultBlockSize is the uncompressed size of each rebuilt bundle block.
const DefaultBlockSize = 0x20000

// Encryption selects how rebuilt Unity-China bundles are written.
type Encryption uint8

const (
	// EncryptionKeep re-encrypts bundles that were read encrypted.
	EncryptionKeep Encryption = iota
	// EncryptionStrip writes plain bundles.
	EncryptionStrip
)

// Options configures a Graph. The zero value is usable.
type Options struct {
	// Logger receives parse diagnostics at Debug level. Nil discards them.
	Logger *slog.Logger

	// Key decrypts Unity-China bundles. Nil makes such bundles fail with
	// unitycn.ErrNoKey.
	Key *unitycn.Key

	// Compression overrides the block method of rebuilt bundles. Nil keeps
	// each bundle's original method.
	Compression *compress.Method

	// Stream overrides the wrapper of rebuilt web archives. Nil keeps the
	// original wrapper.
	Stream *compress.Stream

	// BlockSize is the uncompressed block size of rebuilt bundles.
	BlockSize int

	Encryption Encryption

	// TypeTrees supplies generated type trees for objects whose file does not
	// carry them.
	TypeTrees *typetree.Cache

	// Strict returns member parse failures instead of keeping the member as
	// raw bytes.
	Strict bool
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o Options) blockSize() int {
	if o.BlockSize <= 0 {
		return DefaultBlockSize
	}
	return o.BlockSize
}
