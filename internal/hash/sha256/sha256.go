// Package sha256 digests archived scan snapshots.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

var _ gridrank.Hasher = (*Hasher)(nil)

// Hasher is a gridrank.Hasher producing lower-case hex SHA-256 digests. The
// digest names the snapshot object, so identical scans share an object name.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. It never fails.
func (*Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
