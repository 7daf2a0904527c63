// Package checksum derives entity tags for cached preview content.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a strong HTTP entity tag for content, quoted per RFC 9110.
// The tag is derived from content alone, so identical cached bodies across
// tiers produce identical tags.
func ETag(content string) string {
	return `"` + Sum([]byte(content)) + `"`
}
