// Package quickxorhash implements QuickXorHash, the content hash OneDrive
// reports for every file. Each input byte is XORed into a 160-bit circular
// buffer at a bit offset that advances by 11 per byte; the digest finally
// mixes in the total length.
//
// Reference: https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
)

// digest keeps the 160-bit buffer as bytes. Bit k of the buffer is bit k%8
// of buf[k/8], which is already the little-endian wire layout, and because
// the width is a whole number of bytes a byte straddling the end wraps into
// buf[0].
type digest struct {
	buf    [Size]byte
	offset int // bit offset of the next byte, in [0, widthInBits)
	length uint64
}

// New returns a new hash.Hash computing the QuickXorHash checksum.
func New() hash.Hash {
	return &digest{}
}

// Write absorbs more data into the running hash. It never fails.
func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		idx, bit := d.offset/8, d.offset%8

		d.buf[idx] ^= b << bit
		if bit != 0 {
			d.buf[(idx+1)%Size] ^= b >> (8 - bit)
		}

		d.offset += shift
		if d.offset >= widthInBits {
			d.offset -= widthInBits
		}
	}

	d.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the digest to b without changing the hash state.
func (d *digest) Sum(b []byte) []byte {
	out := d.buf

	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], d.length)

	for i, lb := range length {
		out[Size-len(length)+i] ^= lb
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return BlockSize }

// Base64 hashes everything r yields and returns the digest in the base64
// form the Graph API uses in hashes.quickXorHash.
func Base64(r io.Reader) (string, error) {
	h := New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("quickxorhash: %w", err)
	}

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
