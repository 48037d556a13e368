// Package sha256 provides content digests for archive object naming.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Sum returns the full hex digest of data.
func (*Hasher) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of the digest, enough to
// disambiguate snapshots of the same page.
func (h *Hasher) Short(data []byte, n int) string {
	digest := h.Sum(data)
	if n <= 0 || n > len(digest) {
		return digest
	}
	return digest[:n]
}
