package repository

import (
	"context"

	"photo-platform/backend/internal/user/domain"
)

// Repository defines persistence for user accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateProfile persists full name changes only.
	UpdateProfile(ctx context.Context, id, fullName string) error
	UpdateLastLogin(ctx context.Context, id string) error
	ChangePasswordHash(ctx context.Context, id, passwordHash string) error
	ChangeRole(ctx context.Context, id string, role domain.Role) error
	SetActive(ctx context.Context, id string, active bool) error
}
