// Package audit records security events for the auth service.
package audit

import (
	"context"
	"log"
	"time"

	"photo-platform/backend/internal/audit/domain"
	auditrepo "photo-platform/backend/internal/audit/repository"
)

// Recorder writes a single audit event. LogEvent is best-effort:
// failures are logged and do not affect the caller.
type Recorder interface {
	LogEvent(ctx context.Context, e domain.Event)
}

// Logger implements Recorder using the audit repository.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns a Recorder that persists to repo. A nil repo makes
// every LogEvent a no-op.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// LogEvent writes one audit record. Best-effort: errors are logged and
// not returned, so a flaky audit store never blocks sign-ins.
func (l *Logger) LogEvent(ctx context.Context, e domain.Event) {
	if l.repo == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = domain.StatusSuccess
	}
	if err := l.repo.Create(ctx, &e); err != nil {
		log.Printf("audit: failed to log event %s (%s): %v", e.EventType, e.Action, err)
	}
}
