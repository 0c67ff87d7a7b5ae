package asset

import (
	"fmt"
	"log/slog"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
)

// legacyHeader is the UnityRaw/UnityWeb header after the common preamble.
type legacyHeader struct {
	Hash                  [bundleHashSize]byte
	CRC                   uint32
	MinimumStreamedBytes  uint32
	HeaderSize            uint32
	LevelsBeforeStreaming uint32
	// Levels holds (compressed, uncompressed) sizes; the last level covers
	// the whole payload.
	Levels             [][2]uint32
	CompleteFileSize   uint32
	FileInfoHeaderSize uint32
}

func (b *Bundle) readLegacy(r *binio.Reader, log *slog.Logger) (*Bundle, []member, error) {
	h := &legacyHeader{}
	var err error
	if b.Version >= 4 {
		hash, err := r.Read(bundleHashSize)
		if err != nil {
			return nil, nil, fmt.Errorf("legacy hash: %w", err)
		}
		copy(h.Hash[:], hash)
		if h.CRC, err = r.U32(); err != nil {
			return nil, nil, fmt.Errorf("legacy crc: %w", err)
		}
	}
	if h.MinimumStreamedBytes, err = r.U32(); err != nil {
		return nil, nil, fmt.Errorf("legacy header: %w", err)
	}
	if h.HeaderSize, err = r.U32(); err != nil {
		return nil, nil, fmt.Errorf("legacy header: %w", err)
	}
	if h.LevelsBeforeStreaming, err = r.U32(); err != nil {
		return nil, nil, fmt.Errorf("legacy header: %w", err)
	}
	n, err := readCount(r, 8)
	if err != nil {
		return nil, nil, fmt.Errorf("legacy level count: %w", err)
	}
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: legacy bundle without levels", ErrMalformedSignature)
	}
	h.Levels = make([][2]uint32, n)
	for i := range h.Levels {
		if h.Levels[i][0], err = r.U32(); err != nil {
			return nil, nil, fmt.Errorf("legacy level %d: %w", i, err)
		}
		if h.Levels[i][1], err = r.U32(); err != nil {
			return nil, nil, fmt.Errorf("legacy level %d: %w", i, err)
		}
	}
	if b.Version >= 2 {
		if h.CompleteFileSize, err = r.U32(); err != nil {
			return nil, nil, fmt.Errorf("legacy file size: %w", err)
		}
	}
	if b.Version >= 3 {
		if h.FileInfoHeaderSize, err = r.U32(); err != nil {
			return nil, nil, fmt.Errorf("legacy file info size: %w", err)
		}
	}
	b.legacy = h

	last := h.Levels[len(h.Levels)-1]
	pr, err := r.Sub(int64(h.HeaderSize), int64(last[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("legacy payload: %w", err)
	}
	if b.Signature == SignatureUnityWeb {
		payload, err := compress.DecompressLZMAStream(pr.Bytes())
		if err != nil {
			return nil, nil, fmt.Errorf("legacy payload at %d: %w", pr.Base(), err)
		}
		pr = binio.NewReader(payload, binio.BigEndian)
	}
	payload := pr.Bytes()

	count, err := readCount(pr, 9)
	if err != nil {
		return nil, nil, fmt.Errorf("legacy directory: %w", err)
	}
	members := make([]member, 0, count)
	b.Nodes = make([]DirectoryNode, count)
	for i := range b.Nodes {
		node := &b.Nodes[i]
		if node.Path, err = pr.StringToNull(); err != nil {
			return nil, nil, fmt.Errorf("legacy node %d at %d: %w", i, pr.AbsPos(), err)
		}
		off, err := pr.U32()
		if err != nil {
			return nil, nil, fmt.Errorf("legacy node %d at %d: %w", i, pr.AbsPos(), err)
		}
		size, err := pr.U32()
		if err != nil {
			return nil, nil, fmt.Errorf("legacy node %d at %d: %w", i, pr.AbsPos(), err)
		}
		node.Offset, node.Size = int64(off), int64(size)
		if !binio.InRange(node.Offset, node.Size, int64(len(payload))) {
			return nil, nil, fmt.Errorf("legacy node %s at %d+%d of %d: %w", node.Path, off, size, len(payload), ErrTruncated)
		}
		members = append(members, member{name: node.Path, data: payload[node.Offset : node.Offset+node.Size]})
	}
	log.Debug("read legacy bundle", "signature", b.Signature, "version", b.Version, "levels", len(h.Levels), "nodes", count)
	return b, members, nil
}

// writeLegacy rebuilds a UnityRaw/UnityWeb bundle as a single level.
func (b *Bundle) writeLegacy(members []member) ([]byte, error) {
	h := b.legacy

	dirSize := 4
	for _, m := range members {
		dirSize += len(m.name) + 1 + 8
	}
	pw := binio.NewWriter(binio.BigEndian)
	pw.I32(int32(len(members)))
	off := dirSize
	for _, m := range members {
		pw.StringToNull(m.name)
		pw.U32(uint32(off))
		pw.U32(uint32(len(m.data)))
		off += len(m.data)
	}
	for _, m := range members {
		pw.Write(m.data)
	}
	payload := pw.Bytes()
	stored := payload
	if b.Signature == SignatureUnityWeb {
		var err error
		if stored, err = compress.CompressLZMAStream(payload); err != nil {
			return nil, fmt.Errorf("legacy payload: %w", err)
		}
	}

	w := binio.NewWriter(binio.BigEndian)
	w.StringToNull(b.Signature)
	w.U32(b.Version)
	w.StringToNull(b.UnityVersion)
	w.StringToNull(b.UnityRevision)
	if b.Version >= 4 {
		w.Write(h.Hash[:])
		w.U32(h.CRC)
	}
	minPos := w.Pos()
	w.U32(0)
	headerPos := w.Pos()
	w.U32(0)
	w.U32(1)
	w.I32(1)
	w.U32(uint32(len(stored)))
	w.U32(uint32(len(payload)))
	sizePos := int64(-1)
	if b.Version >= 2 {
		sizePos = w.Pos()
		w.U32(0)
	}
	if b.Version >= 3 {
		w.U32(uint32(dirSize))
	}
	headerSize := w.Pos()
	w.Write(stored)
	total := uint32(w.Len())

	w.PatchU32(minPos, total)
	w.PatchU32(headerPos, uint32(headerSize))
	if sizePos >= 0 {
		w.PatchU32(sizePos, total)
	}
	return w.Bytes(), nil
}
