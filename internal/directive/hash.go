package directive

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashPrefix marks the digest algorithm in stored hashes.
const hashPrefix = "sha256:"

// ContentHash returns the integrity digest of content: "sha256:" followed by
// the first 16 hex characters of its SHA-256.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hashPrefix + hex.EncodeToString(sum[:])[:16]
}

// VerifyContent checks content against an expected hash and returns an
// *IntegrityError on mismatch.
func VerifyContent(name string, content []byte, expected string) error {
	actual := ContentHash(content)
	if actual != expected {
		return &IntegrityError{Name: name, Expected: expected, Actual: actual}
	}
	return nil
}
