package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"photo-platform/backend/internal/audit/domain"
)

type memRepo struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (r *memRepo) Create(ctx context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *memRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Event, error) {
	return nil, nil
}

func TestLogEvent(t *testing.T) {
	repo := &memRepo{}
	l := NewLogger(repo)

	l.LogEvent(context.Background(), domain.Event{
		EventType: domain.EventLogin,
		UserID:    "u1",
		Username:  "jane_doe",
		Action:    "login",
		ClientIP:  "1.2.3.4",
	})

	if len(repo.events) != 1 {
		t.Fatalf("got %d events, want 1", len(repo.events))
	}
	e := repo.events[0]
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped when zero")
	}
	if e.Status != domain.StatusSuccess {
		t.Errorf("Status defaulted to %q, want %q", e.Status, domain.StatusSuccess)
	}
}

func TestLogEvent_RepoFailureDoesNotPanic(t *testing.T) {
	l := NewLogger(&memRepo{err: errors.New("db down")})
	l.LogEvent(context.Background(), domain.Event{EventType: domain.EventLogout})
}

func TestLogEvent_NilRepo(t *testing.T) {
	l := NewLogger(nil)
	l.LogEvent(context.Background(), domain.Event{EventType: domain.EventLogin})
}
