// Package checksum computes content digests used to detect dataset changes.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Digest accumulates writes into a SHA-256 digest.
type Digest struct {
	h hash.Hash
}

// New returns an empty Digest.
func New() *Digest { return &Digest{h: sha256.New()} }

// Write implements io.Writer. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) { return d.h.Write(p) }

// String returns the hex-encoded digest of everything written so far.
func (d *Digest) String() string { return hex.EncodeToString(d.h.Sum(nil)) }
