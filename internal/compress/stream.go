package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Stream is the whole-file wrapper a web archive may be stored in.
type Stream int

const (
	StreamNone Stream = iota
	StreamGzip
	StreamBrotli
)

var gzipMagic = []byte{0x1F, 0x8B}

// brotliMagicOffset is where the "brotli" marker of Unity's metadata comment
// sits in a brotli-wrapped web archive.
const brotliMagicOffset = 0x20

var brotliMagic = []byte("brotli")

// unityBrotliComment is the metadata meta-block Unity writes at the start of
// its brotli streams: window bits 22, one metadata block of 36 bytes.
var unityBrotliComment = append([]byte{0x6B, 0x8D, 0x00}, "UnityWeb Compressed Content (brotli)"...)

const (
	brotliWindow  = 22
	brotliQuality = 6
)

func (s Stream) String() string {
	switch s {
	case StreamNone:
		return "none"
	case StreamGzip:
		return "gzip"
	case StreamBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseStream parses a wrapper name as printed by String.
func ParseStream(name string) (Stream, error) {
	switch name {
	case "none", "":
		return StreamNone, nil
	case "gzip":
		return StreamGzip, nil
	case "brotli":
		return StreamBrotli, nil
	default:
		return StreamNone, fmt.Errorf("%w: stream %q", ErrUnsupported, name)
	}
}

// IsGzip reports whether b starts with the gzip magic.
func IsGzip(b []byte) bool {
	return bytes.HasPrefix(b, gzipMagic)
}

// IsBrotli reports whether b carries Unity's brotli marker at offset 0x20.
func IsBrotli(b []byte) bool {
	return len(b) >= brotliMagicOffset+len(brotliMagic) &&
		bytes.Equal(b[brotliMagicOffset:brotliMagicOffset+len(brotliMagic)], brotliMagic)
}

// DetectStream classifies the wrapper of b.
func DetectStream(b []byte) Stream {
	switch {
	case IsGzip(b):
		return StreamGzip
	case IsBrotli(b):
		return StreamBrotli
	default:
		return StreamNone
	}
}

// Decode removes the wrapper s from b.
func Decode(s Stream, b []byte) ([]byte, error) {
	switch s {
	case StreamNone:
		return b, nil
	case StreamGzip:
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress failed: %w", err)
		}
		return out, nil
	case StreamBrotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(b)))
		if err != nil {
			return nil, fmt.Errorf("brotli decompress failed: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode: %w: %s", ErrUnsupported, s)
	}
}

// Encode wraps b in s. Brotli output carries Unity's metadata comment so it
// is recognised by IsBrotli.
func Encode(s Stream, b []byte) ([]byte, error) {
	switch s {
	case StreamNone:
		return b, nil
	case StreamGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(b); err != nil {
			return nil, fmt.Errorf("gzip compress failed: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip compress failed: %w", err)
		}
		return buf.Bytes(), nil
	case StreamBrotli:
		return encodeUnityBrotli(b)
	default:
		return nil, fmt.Errorf("encode: %w: %s", ErrUnsupported, s)
	}
}

// encodeUnityBrotli writes Unity's comment followed by the encoder's
// meta-blocks. An empty flush makes the encoder emit its window bits inside a
// padding metadata block, so its remaining output starts byte aligned and can
// follow the comment, which carries the same window bits.
func encodeUnityBrotli(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriterOptions(&buf, brotli.WriterOptions{Quality: brotliQuality, LGWin: brotliWindow})
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("brotli compress failed: %w", err)
	}
	if head := buf.Bytes(); len(head) != 2 || head[0] != unityBrotliComment[0] || head[1] != 0 {
		return nil, fmt.Errorf("brotli compress: unexpected stream header % x", head)
	}
	buf.Reset()
	if _, err := bw.Write(b); err != nil {
		return nil, fmt.Errorf("brotli compress failed: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("brotli compress failed: %w", err)
	}
	out := make([]byte, 0, len(unityBrotliComment)+buf.Len())
	out = append(out, unityBrotliComment...)
	return append(out, buf.Bytes()...), nil
}
