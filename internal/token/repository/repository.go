package repository

import (
	"context"
	"time"

	"photo-platform/backend/internal/token/domain"
)

// Ledger defines persistence for issued refresh tokens.
type Ledger interface {
	Record(ctx context.Context, t *domain.RefreshToken) error
	// Lookup returns the entry for the token hash, or nil if unknown.
	Lookup(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	// Revoke marks the entry revoked only if it is not already. The
	// returned bool reports whether this call performed the revocation,
	// which makes rotation single-use under concurrent redemption.
	Revoke(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) error
	// PurgeExpired deletes entries that expired before the cutoff and
	// returns how many rows were removed.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
