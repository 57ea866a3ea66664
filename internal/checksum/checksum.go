// Package checksum computes content digests used for ETags and change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Digest accumulates length-prefixed fields so that ("ab","c") and ("a","bc")
// hash differently.
type Digest struct {
	h hash.Hash
}

// New returns an empty Digest.
func New() *Digest {
	return &Digest{h: sha256.New()}
}

// String adds a field.
func (d *Digest) String(s string) *Digest {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	d.h.Write(n[:])
	d.h.Write([]byte(s))
	return d
}

// Int adds an integer field.
func (d *Digest) Int(v int64) *Digest {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(v))
	d.h.Write(n[:])
	return d
}

// Sum returns the hex digest of everything written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
