package unitycn

// Decryptor holds the two 16-entry tables derived from a verified header.
// It is immutable after construction.
type Decryptor struct {
	header     Header
	index      [16]byte
	sub        [16]byte
	inverse    [16]byte
	invertible bool
}

// New verifies key against the header's signature pair and derives the
// cipher tables. A nil key yields a KeyError wrapping ErrNoKey.
func New(h Header, key *Key) (*Decryptor, error) {
	if key == nil {
		return nil, &KeyError{Err: ErrNoKey, SignatureData: h.SignatureData, SignatureKey: h.SignatureKey}
	}
	sigStream, err := keystream(*key, h.SignatureKey)
	if err != nil {
		return nil, err
	}
	var signature [16]byte
	for i := range signature {
		signature[i] = h.SignatureData[i] ^ sigStream[i]
	}
	if signature != Signature {
		return nil, &KeyError{Err: ErrWrongKey, SignatureData: h.SignatureData, SignatureKey: h.SignatureKey}
	}

	dataStream, err := keystream(*key, h.DataKey)
	if err != nil {
		return nil, err
	}
	var nibbles [32]byte
	for i := 0; i < 16; i++ {
		b := h.Data[i] ^ dataStream[i]
		nibbles[2*i] = b >> 4
		nibbles[2*i+1] = b & 0xF
	}

	d := &Decryptor{header: h}
	copy(d.index[:], nibbles[:16])
	for i := 0; i < 16; i++ {
		d.sub[subSlot(i)] = nibbles[16+i]
	}

	var seen [16]bool
	d.invertible = true
	for i, v := range d.index {
		if seen[v] {
			d.invertible = false
			break
		}
		seen[v] = true
		d.inverse[v] = byte(i)
	}
	return d, nil
}

// Header returns the header the decryptor was built from, for write-back.
func (d *Decryptor) Header() Header { return d.header }

// Index and Sub expose the derived tables.
func (d *Decryptor) Index() [16]byte { return d.index }
func (d *Decryptor) Sub() [16]byte   { return d.sub }

func (d *Decryptor) mask(index int) byte {
	return d.sub[(index>>2)&3+4] + d.sub[index&3] + d.sub[(index>>4)&3+8] + d.sub[byte(index)>>6+12]
}

// cryptFunc transforms b[offset] in place and returns its plaintext value.
type cryptFunc func(b []byte, offset, index int) byte

func (d *Decryptor) decryptByte(b []byte, offset, index int) byte {
	k := d.mask(index)
	v := b[offset]
	v = (d.index[v&0xF]-k)&0xF | (d.index[v>>4]-k)<<4
	b[offset] = v
	return v
}

func (d *Decryptor) encryptByte(b []byte, offset, index int) byte {
	k := d.mask(index)
	p := b[offset]
	b[offset] = d.inverse[(p&0xF+k)&0xF] | d.inverse[(p>>4+k)&0xF]<<4
	return p
}

// DecryptBlock decrypts one compressed block in place. blockIndex is the
// block's position in the bundle's block table.
func (d *Decryptor) DecryptBlock(b []byte, blockIndex int) {
	walk(b, blockIndex, d.decryptByte)
}

// EncryptBlock is the inverse of DecryptBlock.
func (d *Decryptor) EncryptBlock(b []byte, blockIndex int) error {
	if !d.invertible {
		return ErrNotInvertible
	}
	walk(b, blockIndex, d.encryptByte)
	return nil
}

// walk visits the bytes of an LZ4 block that carry its sequence structure:
// each token, its literal-length extension bytes, the two match offset bytes
// and the match-length extension bytes. Literals are left untouched. Every
// sequence restarts its byte counter at blockIndex plus the sequence number.
func walk(b []byte, index int, crypt cryptFunc) {
	offset := 0
	for offset < len(b) {
		offset += sequence(b[offset:], index, crypt)
		index++
	}
}

func sequence(b []byte, index int, crypt cryptFunc) int {
	offset := 0
	next := func() byte {
		if offset >= len(b) {
			offset++
			index++
			return 0
		}
		v := crypt(b, offset, index)
		offset++
		index++
		return v
	}

	token := next()
	literal := int(token >> 4)
	match := token & 0xF
	if literal == 0xF {
		for {
			ext := next()
			literal += int(ext)
			if ext != 0xFF {
				break
			}
		}
	}
	offset += literal

	if offset < len(b) {
		next()
		next()
		if match == 0xF {
			for next() == 0xFF {
			}
		}
	}
	return offset
}
