package asset

import (
	"fmt"
	"log/slog"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
)

// WebEntry is one file of a web archive. Offsets are absolute in the
// unwrapped archive.
type WebEntry struct {
	Offset int32
	Length int32
	Path   string
}

// Web is the header state of a WebGL data archive.
type Web struct {
	Signature string
	// Stream is the wrapper the archive was read with.
	Stream  compress.Stream
	Entries []WebEntry
}

func (w *Web) String() string {
	return fmt.Sprintf("%s (%s, %d entries)", w.Signature, w.Stream, len(w.Entries))
}

func parseWeb(data []byte, stream compress.Stream, log *slog.Logger) (*Web, []member, error) {
	inner, err := compress.Decode(stream, data)
	if err != nil {
		return nil, nil, fmt.Errorf("web archive: %w", err)
	}
	r := binio.NewReader(inner, binio.LittleEndian)
	web := &Web{Stream: stream}
	if web.Signature, err = r.StringToNull(); err != nil {
		return nil, nil, fmt.Errorf("web signature: %w", err)
	}
	if !hasWebPrefix(web.Signature) {
		return nil, nil, fmt.Errorf("%w: web archive %q", ErrMalformedSignature, web.Signature)
	}
	headLength, err := r.I32()
	if err != nil {
		return nil, nil, fmt.Errorf("web header length: %w", err)
	}
	if int64(headLength) > r.Len() {
		return nil, nil, fmt.Errorf("web header length %d of %d: %w", headLength, r.Len(), ErrTruncated)
	}

	var members []member
	for r.Pos() < int64(headLength) {
		var e WebEntry
		if e.Offset, err = r.I32(); err != nil {
			return nil, nil, fmt.Errorf("web entry %d: %w", len(web.Entries), err)
		}
		if e.Length, err = r.I32(); err != nil {
			return nil, nil, fmt.Errorf("web entry %d: %w", len(web.Entries), err)
		}
		pathLen, err := r.I32()
		if err != nil {
			return nil, nil, fmt.Errorf("web entry %d: %w", len(web.Entries), err)
		}
		if pathLen < 0 {
			return nil, nil, fmt.Errorf("web entry %d path length %d: %w", len(web.Entries), pathLen, ErrTruncated)
		}
		path, err := r.Read(int(pathLen))
		if err != nil {
			return nil, nil, fmt.Errorf("web entry %d: %w", len(web.Entries), err)
		}
		e.Path = string(path)
		end := int64(e.Offset) + int64(e.Length)
		if e.Offset < 0 || e.Length < 0 || end > r.Len() {
			return nil, nil, fmt.Errorf("web entry %s at %d+%d of %d: %w", e.Path, e.Offset, e.Length, r.Len(), ErrTruncated)
		}
		web.Entries = append(web.Entries, e)
		members = append(members, member{name: e.Path, data: inner[e.Offset:end]})
	}
	log.Debug("read web archive", "signature", web.Signature, "stream", web.Stream, "entries", len(web.Entries))
	return web, members, nil
}

// serializeWeb rebuilds c from its current members.
func (c *Container) serializeWeb() ([]byte, error) {
	members, err := c.members()
	if err != nil {
		return nil, err
	}
	web := c.web
	headLength := len(web.Signature) + 1 + 4
	for _, m := range members {
		headLength += 12 + len(m.name)
	}

	w := binio.NewWriter(binio.LittleEndian)
	w.StringToNull(web.Signature)
	w.I32(int32(headLength))
	off := headLength
	for _, m := range members {
		w.I32(int32(off))
		w.I32(int32(len(m.data)))
		w.I32(int32(len(m.name)))
		w.Write([]byte(m.name))
		off += len(m.data)
	}
	for _, m := range members {
		w.Write(m.data)
	}

	stream := web.Stream
	if s := c.g.opts.Stream; s != nil {
		stream = *s
	}
	out, err := compress.Encode(stream, w.Bytes())
	if err != nil {
		return nil, fmt.Errorf("web archive: %w", err)
	}
	return out, nil
}
