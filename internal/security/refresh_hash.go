package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken returns a SHA-256 hash of the refresh token string, hex-encoded.
// The ledger stores and compares this hash so raw refresh tokens never touch the database.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
