package domain

import "time"

// RefreshToken is one ledger entry per issued refresh token. Only the
// SHA-256 hash of the token is stored; the raw token never reaches the
// database.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	JTI       string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// Usable reports whether the token can still be redeemed at the given
// instant.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
