package repository

import (
	"context"
	"database/sql"

	"photo-platform/backend/internal/db"
	"photo-platform/backend/internal/token/domain"
)

// TxLedger is a PostgresLedger that can also rotate atomically. It
// needs the *sql.DB rather than a bare executor so it can open the
// rotation transaction itself.
type TxLedger struct {
	*PostgresLedger
	db *sql.DB
}

// NewTxLedger returns a ledger backed by database with transactional
// rotation support.
func NewTxLedger(database *sql.DB) *TxLedger {
	return &TxLedger{PostgresLedger: NewPostgresLedger(database), db: database}
}

// Rotate revokes oldHash and records next in one transaction. The
// returned bool reports whether this call performed the revocation; on
// false nothing is recorded, so a concurrent loser leaves no trace.
func (l *TxLedger) Rotate(ctx context.Context, oldHash string, next *domain.RefreshToken) (bool, error) {
	var won bool
	err := db.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		ledger := NewPostgresLedger(tx)
		w, err := ledger.Revoke(ctx, oldHash)
		if err != nil {
			return err
		}
		won = w
		if !won {
			return nil
		}
		return ledger.Record(ctx, next)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
