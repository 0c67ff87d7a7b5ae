// Package compress adapts the general-purpose codecs used by bundle blocks
// and web archive wrappers to plain byte-slice functions.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// ErrUnsupported is returned for compression methods that are recognised but
// not implemented, or unknown altogether.
var ErrUnsupported = errors.New("compress: unsupported compression")

// Method is the block compression method stored in the low six bits of a
// bundle's storage and archive flags.
type Method uint8

const (
	None  Method = 0
	LZMA  Method = 1
	LZ4   Method = 2
	LZ4HC Method = 3
	LZHAM Method = 4
)

// MethodMask selects the method bits from a flag word.
const MethodMask = 0x3F

// lzmaPropsSize is the size of the properties prefix Unity stores in front of
// each raw LZMA block.
const lzmaPropsSize = 5

func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case LZMA:
		return "lzma"
	case LZ4:
		return "lz4"
	case LZ4HC:
		return "lz4hc"
	case LZHAM:
		return "lzham"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseMethod parses a method name as printed by String.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return None, nil
	case "lzma":
		return LZMA, nil
	case "lz4":
		return LZ4, nil
	case "lz4hc":
		return LZ4HC, nil
	case "lzham":
		return LZHAM, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
}

// DecompressBlock expands src, which was compressed with m, into exactly size
// bytes.
func DecompressBlock(m Method, src []byte, size int) ([]byte, error) {
	switch m {
	case None:
		if len(src) != size {
			return nil, fmt.Errorf("stored block: size %d does not match expected %d", len(src), size)
		}
		return src, nil
	case LZ4, LZ4HC:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress failed: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompressed size invalid: got=%d expected=%d", n, size)
		}
		return dst, nil
	case LZMA:
		return decompressLZMA(src, size)
	default:
		return nil, fmt.Errorf("decompress block: %w: %s", ErrUnsupported, m)
	}
}

// CompressBlock compresses src with m. When compression does not shrink the
// block the raw bytes are returned together with None, which is what the
// caller must record in the block's flags.
func CompressBlock(m Method, src []byte) ([]byte, Method, error) {
	var (
		out []byte
		err error
	)
	switch m {
	case None:
		return bytes.Clone(src), None, nil
	case LZ4, LZ4HC:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		var n int
		if m == LZ4HC {
			n, err = lz4.CompressBlockHC(src, dst, lz4.Level9, nil, nil)
		} else {
			n, err = lz4.CompressBlock(src, dst, nil)
		}
		if err != nil {
			return nil, None, fmt.Errorf("lz4 compress failed: %w", err)
		}
		out = dst[:n]
	case LZMA:
		if out, err = compressLZMA(src); err != nil {
			return nil, None, err
		}
	default:
		return nil, None, fmt.Errorf("compress block: %w: %s", ErrUnsupported, m)
	}
	if len(out) == 0 || len(out) >= len(src) {
		return bytes.Clone(src), None, nil
	}
	return out, m, nil
}

func decompressLZMA(src []byte, size int) ([]byte, error) {
	if len(src) < lzmaPropsSize {
		return nil, fmt.Errorf("lzma block: %d bytes is shorter than the properties header", len(src))
	}
	// Rebuild the 13-byte "alone" header the decoder expects.
	var hdr [lzmaPropsSize + 8]byte
	copy(hdr[:], src[:lzmaPropsSize])
	binary.LittleEndian.PutUint64(hdr[lzmaPropsSize:], uint64(size))
	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(hdr[:]), bytes.NewReader(src[lzmaPropsSize:])))
	if err != nil {
		return nil, fmt.Errorf("lzma block header: %w", err)
	}
	dst := make([]byte, size)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, fmt.Errorf("lzma decompress failed: %w", err)
	}
	return dst, nil
}

func compressLZMA(src []byte) ([]byte, error) {
	stream, err := CompressLZMAStream(src)
	if err != nil {
		return nil, err
	}
	// Drop the 8-byte size field; the block table carries it.
	out := make([]byte, 0, len(stream)-8)
	out = append(out, stream[:lzmaPropsSize]...)
	return append(out, stream[lzmaPropsSize+8:]...), nil
}

// CompressLZMAStream produces a complete LZMA "alone" stream (properties,
// uncompressed size, data) as used by legacy UnityWeb bundles.
func CompressLZMAStream(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		Properties:   &lzma.Properties{LC: 3, LP: 0, PB: 2},
		SizeInHeader: true,
		Size:         int64(len(src)),
	}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("lzma writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lzma compress failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma compress failed: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressLZMAStream expands a complete LZMA "alone" stream.
func DecompressLZMAStream(src []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("lzma stream header: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lzma decompress failed: %w", err)
	}
	return out, nil
}
