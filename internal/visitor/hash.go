// Package visitor derives the pseudonymous, day-scoped visitor identity.
package visitor

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// HashLen is the number of hex characters kept from the digest.
const HashLen = 16

// Hasher turns address and user-agent into an identity that is stable for
// one UTC calendar day and changes at midnight UTC. The salt keeps the
// mapping from being brute-forced back to an address.
type Hasher struct {
	salt string
	now  func() time.Time
}

func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt, now: time.Now}
}

func (h *Hasher) Hash(address, userAgent string) string {
	return h.HashAt(address, userAgent, h.now())
}

// HashAt computes the identity as it would be on the UTC date of at.
func (h *Hasher) HashAt(address, userAgent string, at time.Time) string {
	day := at.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(h.salt + ":" + address + ":" + userAgent + ":" + day))
	return hex.EncodeToString(sum[:])[:HashLen]
}
