// Package unitycn implements the nibble-substitution block cipher used by the
// Unity China engine fork to encrypt bundle blocks.
//
// A bundle carrying the encryption flag stores a 70-byte header after its
// archive flags: an unknown uint32, then two (data, key) vector pairs, each
// pair followed by one padding byte. The first pair seeds the cipher tables,
// the second verifies the caller's key.
package unitycn

import (
	"crypto/aes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/eichs/unitypack/internal/binio"
)

// Signature is what the signature pair must decrypt to under the right key.
var Signature = [16]byte{'#', '$', 'u', 'n', 'i', 't', 'y', '3', 'd', 'c', 'h', 'i', 'n', 'a', '!', '@'}

// HeaderSize is the encoded size of Header.
const HeaderSize = 4 + 2*(16+16+1)

var (
	// ErrDecryption is matched by every key failure.
	ErrDecryption = errors.New("unitycn: decryption failed")
	// ErrNoKey indicates an encrypted bundle was opened without a key.
	ErrNoKey = fmt.Errorf("%w: bundle is encrypted but no key was provided", ErrDecryption)
	// ErrWrongKey indicates the signature pair did not verify.
	ErrWrongKey = fmt.Errorf("%w: signature mismatch", ErrDecryption)
	// ErrNotInvertible indicates the seeded index table is not a permutation,
	// so blocks cannot be re-encrypted.
	ErrNotInvertible = errors.New("unitycn: index table is not invertible")
)

// Key is the 16-byte AES-128 key a game ships for its bundles.
type Key [16]byte

// ParseKey decodes a 32-character hex key.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, fmt.Errorf("unitycn: parse key: %w", err)
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("unitycn: key must be 16 bytes, got %d", len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// KeyError reports a missing or wrong key together with the signature pair
// needed to recover the key offline.
type KeyError struct {
	Err           error
	SignatureData [16]byte
	SignatureKey  [16]byte
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%v (signature data %x, signature key %x)", e.Err, e.SignatureData, e.SignatureKey)
}

func (e *KeyError) Unwrap() error { return e.Err }

// Header is the raw encryption header as stored in the bundle.
type Header struct {
	Unknown       uint32
	Data          [16]byte
	DataKey       [16]byte
	DataPad       byte
	SignatureData [16]byte
	SignatureKey  [16]byte
	SignaturePad  byte
}

// ReadHeader reads a Header at the cursor.
func ReadHeader(r *binio.Reader) (Header, error) {
	var h Header
	var err error
	if h.Unknown, err = r.U32(); err != nil {
		return h, err
	}
	for _, dst := range []*[16]byte{&h.Data, &h.DataKey} {
		b, err := r.Read(16)
		if err != nil {
			return h, err
		}
		copy(dst[:], b)
	}
	if h.DataPad, err = r.U8(); err != nil {
		return h, err
	}
	for _, dst := range []*[16]byte{&h.SignatureData, &h.SignatureKey} {
		b, err := r.Read(16)
		if err != nil {
			return h, err
		}
		copy(dst[:], b)
	}
	if h.SignaturePad, err = r.U8(); err != nil {
		return h, err
	}
	return h, nil
}

// Write appends the header to w.
func (h Header) Write(w *binio.Writer) {
	w.U32(h.Unknown)
	w.Write(h.Data[:])
	w.Write(h.DataKey[:])
	w.U8(h.DataPad)
	w.Write(h.SignatureData[:])
	w.Write(h.SignatureKey[:])
	w.U8(h.SignaturePad)
}

// NewHeader builds a header that seeds the given tables and verifies under
// key. dataKey and signatureKey are the plaintext halves of the two pairs and
// may be arbitrary.
func NewHeader(key Key, index, sub [16]byte, dataKey, signatureKey [16]byte) (Header, error) {
	h := Header{DataKey: dataKey, SignatureKey: signatureKey}
	sigStream, err := keystream(key, signatureKey)
	if err != nil {
		return h, err
	}
	for i := range h.SignatureData {
		h.SignatureData[i] = sigStream[i] ^ Signature[i]
	}

	var nibbles [32]byte
	copy(nibbles[:16], index[:])
	for i := 0; i < 16; i++ {
		nibbles[16+i] = sub[subSlot(i)]
	}
	dataStream, err := keystream(key, dataKey)
	if err != nil {
		return h, err
	}
	for i := range h.Data {
		h.Data[i] = (nibbles[2*i]<<4 | nibbles[2*i+1]&0xF) ^ dataStream[i]
	}
	return h, nil
}

// keystream encrypts one block of k under key.
func keystream(key Key, k [16]byte) ([16]byte, error) {
	var out [16]byte
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return out, fmt.Errorf("unitycn: %w", err)
	}
	block.Encrypt(out[:], k[:])
	return out, nil
}

// subSlot maps the i-th seeded nibble to its slot in the substitution table.
func subSlot(i int) int {
	return i%4*4 + i/4
}
