package asset

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/eichs/unitypack/internal/binio"
	"github.com/eichs/unitypack/internal/compress"
	"github.com/eichs/unitypack/internal/unitycn"
)

// Archive flags of a UnityFS header.
const (
	archiveCompressionMask      uint32 = 0x3F
	archiveBlocksAndDirectory   uint32 = 0x40
	archiveBlocksInfoAtTheEnd   uint32 = 0x80
	archiveBlockInfoNeedPadding uint32 = 0x200
	archiveCNLegacy             uint32 = 0x200
	archiveCN                   uint32 = 0x400
)

// Storage block flags.
const (
	blockCompressionMask uint16 = 0x3F
	blockEncrypted       uint16 = 0x100
)

// NodeSerializedFile marks a directory node that holds a serialized file.
const NodeSerializedFile uint32 = 0x4

const bundleHashSize = 16

// StorageBlock is one entry of the UnityFS block table.
type StorageBlock struct {
	UncompressedSize uint32
	CompressedSize   uint32
	Flags            uint16
}

// Method returns the block's compression method.
func (b StorageBlock) Method() compress.Method {
	return compress.Method(b.Flags & blockCompressionMask)
}

// DirectoryNode is one entry of a bundle directory. Offsets index the
// concatenated uncompressed block stream.
type DirectoryNode struct {
	Offset int64
	Size   int64
	Flags  uint32
	Path   string
}

// Bundle is the header state of a bundle container, kept so a rebuild writes
// the same format back.
type Bundle struct {
	Signature     string
	Version       uint32
	UnityVersion  string
	UnityRevision string
	Size          int64
	Flags         uint32
	Hash          [bundleHashSize]byte
	Blocks        []StorageBlock
	Nodes         []DirectoryNode

	// CN is the Unity-China header of an encrypted bundle.
	CN *unitycn.Header

	legacyCN  bool
	aligned   bool
	decryptor *unitycn.Decryptor
	legacy    *legacyHeader
}

// Legacy reports whether b uses the UnityRaw or UnityWeb layout.
func (b *Bundle) Legacy() bool { return b.legacy != nil }

// Encrypted reports whether b was read with Unity-China encryption.
func (b *Bundle) Encrypted() bool { return b.CN != nil }

// Method returns the block compression of b: the first block's method, or
// the blocks-info method for bundles without blocks.
func (b *Bundle) Method() compress.Method {
	if b.legacy != nil {
		if b.Signature == SignatureUnityWeb {
			return compress.LZMA
		}
		return compress.None
	}
	if len(b.Blocks) > 0 {
		return b.Blocks[0].Method()
	}
	return compress.Method(b.Flags & archiveCompressionMask)
}

func (b *Bundle) cnFlag() uint32 {
	if b.legacyCN {
		return archiveCNLegacy
	}
	return archiveCN
}

func (b *Bundle) String() string {
	return fmt.Sprintf("%s v%d (%s, %d nodes)", b.Signature, b.Version, b.UnityRevision, len(b.Nodes))
}

// parseBundle reads a bundle and returns its members in directory order.
func parseBundle(data []byte, opts Options, log *slog.Logger) (*Bundle, []member, error) {
	r := binio.NewReader(data, binio.BigEndian)
	b := &Bundle{}
	var err error
	if b.Signature, err = r.StringToNull(); err != nil {
		return nil, nil, fmt.Errorf("bundle signature: %w", err)
	}
	if b.Version, err = r.U32(); err != nil {
		return nil, nil, fmt.Errorf("bundle version: %w", err)
	}
	if b.UnityVersion, err = r.StringToNull(); err != nil {
		return nil, nil, fmt.Errorf("bundle unity version: %w", err)
	}
	if b.UnityRevision, err = r.StringToNull(); err != nil {
		return nil, nil, fmt.Errorf("bundle unity revision: %w", err)
	}

	switch b.Signature {
	case SignatureUnityRaw, SignatureUnityWeb:
		return b.readLegacy(r, log)
	case SignatureUnityFS:
	default:
		if latin1([]byte(b.Signature)) != signatureFA {
			return nil, nil, fmt.Errorf("%w: bundle %q", ErrMalformedSignature, b.Signature)
		}
	}
	members, err := b.readFS(r, opts, log)
	if err != nil {
		return nil, nil, err
	}
	return b, members, nil
}

func (b *Bundle) readFS(r *binio.Reader, opts Options, log *slog.Logger) ([]member, error) {
	var err error
	if b.Size, err = r.I64(); err != nil {
		return nil, fmt.Errorf("bundle size: %w", err)
	}
	compressedInfo, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("blocks info size: %w", err)
	}
	uncompressedInfo, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("blocks info size: %w", err)
	}
	if b.Flags, err = r.U32(); err != nil {
		return nil, fmt.Errorf("archive flags: %w", err)
	}

	rev, verr := ParseVersion(b.UnityRevision)
	b.legacyCN = verr == nil && rev.usesLegacyCNFlags()
	if b.Flags&b.cnFlag() != 0 {
		h, err := unitycn.ReadHeader(r)
		if err != nil {
			return nil, fmt.Errorf("unitycn header: %w", err)
		}
		if b.decryptor, err = unitycn.New(h, opts.Key); err != nil {
			return nil, err
		}
		b.CN = &h
		log.Debug("unitycn decryptor active", "revision", b.UnityRevision, "legacy_flags", b.legacyCN)
	}

	switch {
	case b.Version >= 7:
		if err := r.Align(16); err != nil {
			return nil, fmt.Errorf("header alignment: %w", err)
		}
		b.aligned = true
	case verr == nil && !rev.Before(2019, 4, 0):
		// Some 2019.4 builds pad older headers; the pad is only taken when
		// it is all zero.
		pos := r.Pos()
		if pad := int((16 - pos%16) % 16); pad > 0 {
			if p, err := r.Read(pad); err == nil && isZero(p) {
				b.aligned = true
			} else {
				_ = r.SetPos(pos)
			}
		}
	}

	var rawInfo []byte
	if b.Flags&archiveBlocksInfoAtTheEnd != 0 {
		start := r.Len() - int64(compressedInfo)
		if start < r.Pos() {
			return nil, fmt.Errorf("blocks info at end of %d bytes: %w", r.Len(), ErrTruncated)
		}
		rawInfo = r.Bytes()[start:]
	} else if rawInfo, err = r.Read(int(compressedInfo)); err != nil {
		return nil, fmt.Errorf("blocks info: %w", err)
	}
	info, err := compress.DecompressBlock(compress.Method(b.Flags&archiveCompressionMask), rawInfo, int(uncompressedInfo))
	if err != nil {
		return nil, fmt.Errorf("blocks info: %w", err)
	}
	if err := b.readBlocksInfo(binio.NewReader(info, binio.BigEndian)); err != nil {
		return nil, err
	}
	log.Debug("read blocks info", "blocks", len(b.Blocks), "nodes", len(b.Nodes), "flags", fmt.Sprintf("%#x", b.Flags))

	if !b.legacyCN && b.Flags&archiveBlockInfoNeedPadding != 0 {
		if err := r.Align(16); err != nil {
			return nil, fmt.Errorf("block data padding: %w", err)
		}
	}

	stream, err := b.readBlocks(r)
	if err != nil {
		return nil, err
	}
	return b.slice(stream)
}

func isZero(p []byte) bool {
	for _, c := range p {
		if c != 0 {
			return false
		}
	}
	return true
}

func (b *Bundle) readBlocksInfo(r *binio.Reader) error {
	hash, err := r.Read(bundleHashSize)
	if err != nil {
		return fmt.Errorf("blocks info hash: %w", err)
	}
	copy(b.Hash[:], hash)

	n, err := readCount(r, 10)
	if err != nil {
		return fmt.Errorf("block count: %w", err)
	}
	b.Blocks = make([]StorageBlock, n)
	for i := range b.Blocks {
		blk := &b.Blocks[i]
		if blk.UncompressedSize, err = r.U32(); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if blk.CompressedSize, err = r.U32(); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if blk.Flags, err = r.U16(); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}

	n, err = readCount(r, 21)
	if err != nil {
		return fmt.Errorf("node count: %w", err)
	}
	b.Nodes = make([]DirectoryNode, n)
	for i := range b.Nodes {
		node := &b.Nodes[i]
		if node.Offset, err = r.I64(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if node.Size, err = r.I64(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if node.Flags, err = r.U32(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if node.Path, err = r.StringToNull(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
	}
	return nil
}

// readBlocks decrypts and decompresses every block into one stream.
func (b *Bundle) readBlocks(r *binio.Reader) ([]byte, error) {
	var total int64
	for _, blk := range b.Blocks {
		total += int64(blk.UncompressedSize)
	}
	stream := make([]byte, 0, total)
	for i, blk := range b.Blocks {
		src, err := r.Read(int(blk.CompressedSize))
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if b.decryptor != nil && blk.Flags&blockEncrypted != 0 {
			src = bytes.Clone(src)
			b.decryptor.DecryptBlock(src, i)
		}
		out, err := compress.DecompressBlock(blk.Method(), src, int(blk.UncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		stream = append(stream, out...)
	}
	return stream, nil
}

func (b *Bundle) slice(stream []byte) ([]member, error) {
	out := make([]member, 0, len(b.Nodes))
	for _, n := range b.Nodes {
		if !binio.InRange(n.Offset, n.Size, int64(len(stream))) {
			return nil, fmt.Errorf("node %s at %d+%d of %d: %w", n.Path, n.Offset, n.Size, len(stream), ErrTruncated)
		}
		out = append(out, member{name: n.Path, flags: n.Flags, data: stream[n.Offset : n.Offset+n.Size]})
	}
	return out, nil
}

// serializeBundle rebuilds c from its current members.
func (c *Container) serializeBundle() ([]byte, error) {
	members, err := c.members()
	if err != nil {
		return nil, err
	}
	if c.bundle.legacy != nil {
		return c.bundle.writeLegacy(members)
	}
	return c.bundle.writeFS(members, c.g.opts)
}

func (b *Bundle) writeFS(members []member, opts Options) ([]byte, error) {
	method := b.Method()
	if opts.Compression != nil {
		method = *opts.Compression
	}
	encrypt := b.decryptor != nil && opts.Encryption == EncryptionKeep

	var stream bytes.Buffer
	nodes := make([]DirectoryNode, len(members))
	for i, m := range members {
		nodes[i] = DirectoryNode{Offset: int64(stream.Len()), Size: int64(len(m.data)), Flags: m.flags, Path: m.name}
		stream.Write(m.data)
	}

	chunk := opts.blockSize()
	if method == compress.LZMA {
		chunk = max(stream.Len(), 1)
	}
	var blocks []StorageBlock
	var data bytes.Buffer
	for i, raw := 0, stream.Bytes(); len(raw) > 0; i++ {
		n := min(chunk, len(raw))
		comp, used, err := compress.CompressBlock(method, raw[:n])
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		blk := StorageBlock{UncompressedSize: uint32(n), CompressedSize: uint32(len(comp)), Flags: uint16(used)}
		// Unity-China encryption walks LZ4 sequences; other blocks stay plain.
		if encrypt && (used == compress.LZ4 || used == compress.LZ4HC) {
			if err := b.decryptor.EncryptBlock(comp, i); err != nil {
				return nil, fmt.Errorf("block %d: %w", i, err)
			}
			blk.Flags |= blockEncrypted
		}
		blocks = append(blocks, blk)
		data.Write(comp)
		raw = raw[n:]
	}

	iw := binio.NewWriter(binio.BigEndian)
	iw.Write(b.Hash[:])
	iw.I32(int32(len(blocks)))
	for _, blk := range blocks {
		iw.U32(blk.UncompressedSize)
		iw.U32(blk.CompressedSize)
		iw.U16(blk.Flags)
	}
	iw.I32(int32(len(nodes)))
	for _, n := range nodes {
		iw.I64(n.Offset)
		iw.I64(n.Size)
		iw.U32(n.Flags)
		iw.StringToNull(n.Path)
	}
	infoMethod := compress.Method(b.Flags & archiveCompressionMask)
	if opts.Compression != nil && method != compress.LZMA {
		infoMethod = method
	}
	info, infoUsed, err := compress.CompressBlock(infoMethod, iw.Bytes())
	if err != nil {
		return nil, fmt.Errorf("blocks info: %w", err)
	}

	flags := b.Flags&^(archiveCompressionMask|archiveBlocksInfoAtTheEnd|b.cnFlag()) | uint32(infoUsed) | archiveBlocksAndDirectory
	if encrypt {
		flags |= b.cnFlag()
	}

	w := binio.NewWriter(binio.BigEndian)
	w.StringToNull(b.Signature)
	w.U32(b.Version)
	w.StringToNull(b.UnityVersion)
	w.StringToNull(b.UnityRevision)
	sizePos := w.Pos()
	w.I64(0)
	w.U32(uint32(len(info)))
	w.U32(uint32(iw.Len()))
	w.U32(flags)
	if encrypt {
		b.decryptor.Header().Write(w)
	}
	if b.aligned {
		w.Align(16)
	}
	w.Write(info)
	if !b.legacyCN && flags&archiveBlockInfoNeedPadding != 0 {
		w.Align(16)
	}
	w.Write(data.Bytes())
	w.PatchI64(sizePos, w.Len())
	return w.Bytes(), nil
}
