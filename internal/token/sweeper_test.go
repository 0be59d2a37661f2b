package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"photo-platform/backend/internal/token/domain"
)

type memLedger struct {
	mu     sync.Mutex
	purges int
	err    error
}

func (l *memLedger) Record(ctx context.Context, t *domain.RefreshToken) error { return nil }
func (l *memLedger) Lookup(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	return nil, nil
}
func (l *memLedger) Revoke(ctx context.Context, hash string) (bool, error) { return false, nil }
func (l *memLedger) RevokeAllForUser(ctx context.Context, userID string) error {
	return nil
}

func (l *memLedger) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.purges++
	return 3, nil
}

func (l *memLedger) purgeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purges
}

func TestSweeper_PurgesImmediatelyAndStops(t *testing.T) {
	ledger := &memLedger{}
	s := NewSweeper(ledger, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for ledger.purgeCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not purge on startup")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestSweeper_SurvivesPurgeErrors(t *testing.T) {
	ledger := &memLedger{err: errors.New("db down")}
	s := NewSweeper(ledger, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx) // must return on its own despite the failing store
}

func TestNewSweeper_MinimumInterval(t *testing.T) {
	s := NewSweeper(&memLedger{}, time.Second)
	if s.interval != time.Minute {
		t.Errorf("interval = %v, want clamp to %v", s.interval, time.Minute)
	}
}
