package asset

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
)

const (
	signatureScanSize    = 20
	maxSerializedVersion = 100
)

// Bundle signatures. Some vendors replace UnityFS with eight 0xFA bytes.
const (
	SignatureUnityFS  = "UnityFS"
	SignatureUnityRaw = "UnityRaw"
	SignatureUnityWeb = "UnityWeb"
)

// signatureFA is the 0xFA magic as decoded by latin1.
var signatureFA = strings.Repeat("\u00fa", 8)

var webPrefixes = []string{"UnityWebData", "TuanjieWebData"}

// Detection is the classification of a byte blob.
type Detection struct {
	Kind Kind
	// Endian is the header byte order that validated for serialized files.
	Endian binio.Endian
	// Stream is the wrapper of compressed web archives.
	Stream compress.Stream
	// Signature is the leading signature text as read.
	Signature string
}

// Detect classifies b. Blobs shorter than the signature field, and blobs
// matching no format, are raw resource data.
func Detect(b []byte) Detection {
	return DetectReader(binio.NewReader(b, binio.BigEndian))
}

// DetectReader classifies the bytes of r from its current position. The
// position is restored afterwards; for serialized files the validating byte
// order is left selected.
func DetectReader(r *binio.Reader) Detection {
	start := r.Pos()
	endian := r.Endian()
	defer func() { _ = r.SetPos(start) }()

	if r.Remaining() < signatureScanSize {
		return Detection{Kind: KindRaw}
	}
	sig := latin1(r.BytesToNullMax(signatureScanSize))

	switch {
	case sig == SignatureUnityFS || sig == SignatureUnityRaw || sig == SignatureUnityWeb || sig == signatureFA:
		return Detection{Kind: KindBundle, Signature: sig}
	case hasWebPrefix(sig):
		return Detection{Kind: KindWeb, Signature: sig}
	}

	rest := r.Bytes()[start:]
	if s := compress.DetectStream(rest); s != compress.StreamNone {
		return Detection{Kind: KindWeb, Stream: s}
	}

	for _, e := range []binio.Endian{binio.BigEndian, binio.LittleEndian} {
		_ = r.SetPos(start)
		r.SetEndian(e)
		if validSerializedHeader(r) {
			return Detection{Kind: KindSerializedFile, Endian: e}
		}
	}
	r.SetEndian(endian)
	return Detection{Kind: KindRaw}
}

// latin1 decodes a signature as Latin-1, so arbitrary binary magic survives
// as distinct runes.
func latin1(head []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(head)
	if err != nil {
		return string(head)
	}
	return string(s)
}

func hasWebPrefix(sig string) bool {
	for _, p := range webPrefixes {
		if strings.HasPrefix(sig, p) {
			return true
		}
	}
	return false
}

// validSerializedHeader reports whether a serialized file header at the
// cursor is plausible. File size and data offset may exceed the buffer since
// resource data can live in a separate stream.
func validSerializedHeader(r *binio.Reader) bool {
	bufLen := uint64(r.Remaining())
	metadataSize, err := r.U32()
	if err != nil {
		return false
	}
	fileSize32, err := r.U32()
	if err != nil {
		return false
	}
	version, err := r.U32()
	if err != nil {
		return false
	}
	dataOffset32, err := r.U32()
	if err != nil {
		return false
	}
	if version > maxSerializedVersion {
		return false
	}
	meta, fileSize, dataOffset := uint64(metadataSize), uint64(fileSize32), uint64(dataOffset32)
	if version >= formatLargeFiles {
		if err := r.Skip(4); err != nil {
			return false
		}
		m, err := r.U32()
		if err != nil {
			return false
		}
		fs, err := r.I64()
		if err != nil {
			return false
		}
		do, err := r.I64()
		if err != nil {
			return false
		}
		if fs < 0 || do < 0 {
			return false
		}
		meta, fileSize, dataOffset = uint64(m), uint64(fs), uint64(do)
	}
	return meta <= bufLen && fileSize >= meta && fileSize >= dataOffset
}
