// Package cryptox computes the SHA-256 content digests used to verify chunks
// and reconstructed files. Digests are lower-case hex.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Checksum returns the hex SHA-256 of b.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ChecksumReader digests r to EOF and returns the checksum and byte count.
func ChecksumReader(r io.Reader) (string, int64, error) {
	d := NewDigest()
	if _, err := io.Copy(d, r); err != nil {
		return "", 0, err
	}
	return d.Sum(), d.Size(), nil
}

// Digest is an incremental checksum; it is an io.Writer.
type Digest struct {
	h hash.Hash
	n int64
}

func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	n, err := d.h.Write(p)
	d.n += int64(n)
	return n, err
}

func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

func (d *Digest) Size() int64 {
	return d.n
}
