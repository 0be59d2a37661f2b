package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"photo-platform/backend/internal/db"
	"photo-platform/backend/internal/token/domain"
)

type PostgresLedger struct {
	db db.DBTX
}

// NewPostgresLedger returns a refresh token ledger backed by the given
// executor. Pass a *sql.Tx to run inside a transaction.
func NewPostgresLedger(dbtx db.DBTX) *PostgresLedger {
	return &PostgresLedger{db: dbtx}
}

// Record persists the ledger entry. The entry must have ID set.
func (r *PostgresLedger) Record(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, jti, expires_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.TokenHash, t.JTI, t.ExpiresAt, t.CreatedAt, t.Revoked,
	)
	return err
}

// Lookup returns the entry for tokenHash, or nil if unknown.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresLedger) Lookup(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, jti, expires_at, created_at, revoked
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.JTI, &t.ExpiresAt, &t.CreatedAt, &t.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Revoke flips revoked on the entry only when it is currently false.
// The conditional update is what serializes concurrent redemptions of
// the same token: exactly one caller sees true.
func (r *PostgresLedger) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1 AND revoked = FALSE`,
		tokenHash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeAllForUser revokes every live entry belonging to the user.
func (r *PostgresLedger) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`,
		userID,
	)
	return err
}

// PurgeExpired deletes entries that expired before cutoff.
func (r *PostgresLedger) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
