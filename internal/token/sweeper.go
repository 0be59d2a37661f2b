// Package token manages the refresh token ledger and its maintenance.
package token

import (
	"context"
	"log"
	"time"

	"photo-platform/backend/internal/token/repository"
)

// Sweeper periodically deletes expired ledger entries. Revoked entries
// are kept until expiry so reuse attempts stay observable.
type Sweeper struct {
	ledger   repository.Ledger
	interval time.Duration
}

// NewSweeper returns a sweeper that purges on the given interval.
// Intervals below one minute are raised to one minute.
func NewSweeper(ledger repository.Ledger, interval time.Duration) *Sweeper {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Sweeper{ledger: ledger, interval: interval}
}

// Run blocks, purging once immediately and then on every tick, until
// ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.ledger.PurgeExpired(sweepCtx, time.Now().UTC())
	if err != nil {
		log.Printf("sweeper: purge failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("sweeper: purged %d expired refresh tokens", n)
	}
}
