package repository

import (
	"context"

	"photo-platform/backend/internal/audit/domain"
)

// Repository defines persistence for audit events.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	// ListByUser returns the most recent events for the user, newest
	// first, paginated by limit and offset.
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Event, error)
}
