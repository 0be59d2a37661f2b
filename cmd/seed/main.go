// seed bootstraps an admin account for a fresh deployment. Idempotent:
// if an admin already exists it does nothing, and if the configured email
// or username belongs to an existing user that user is promoted instead.
//
// Override the defaults with ADMIN_EMAIL, ADMIN_USERNAME, and ADMIN_PASSWORD.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"photo-platform/backend/internal/config"
	"photo-platform/backend/internal/db"
	"photo-platform/backend/internal/security"
	"photo-platform/backend/internal/user/domain"
	userrepo "photo-platform/backend/internal/user/repository"
)

const (
	defaultAdminEmail    = "admin@admin.com"
	defaultAdminUsername = "admin_user"
	defaultAdminPassword = "Admin123!@#"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	email := domain.NormalizeEmail(envOr("ADMIN_EMAIL", defaultAdminEmail))
	username := domain.NormalizeUsername(envOr("ADMIN_USERNAME", defaultAdminUsername))
	password := envOr("ADMIN_PASSWORD", defaultAdminPassword)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var existingUsername, existingEmail string
	err = conn.QueryRowContext(ctx,
		`SELECT username, email FROM users WHERE role = 'admin' LIMIT 1`,
	).Scan(&existingUsername, &existingEmail)
	switch {
	case err == nil:
		fmt.Printf("Admin user already exists: %s (%s)\n", existingUsername, existingEmail)
		return
	case errors.Is(err, sql.ErrNoRows):
		// No admin yet; continue.
	default:
		log.Fatalf("seed: query admins: %v", err)
	}

	users := userrepo.NewPostgresRepository(conn)

	// If the email or username is already taken, promote that user instead
	// of failing on the unique constraint.
	for _, lookup := range []func(context.Context) (*domain.User, error){
		func(ctx context.Context) (*domain.User, error) { return users.GetByEmail(ctx, email) },
		func(ctx context.Context) (*domain.User, error) { return users.GetByUsername(ctx, username) },
	} {
		existing, err := lookup(ctx)
		if err != nil {
			log.Fatalf("seed: lookup user: %v", err)
		}
		if existing != nil {
			if err := users.ChangeRole(ctx, existing.ID, domain.RoleAdmin); err != nil {
				log.Fatalf("seed: promote user: %v", err)
			}
			fmt.Printf("Promoted existing user %s to admin.\n", existing.Username)
			return
		}
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash(password)
	if err != nil {
		log.Fatalf("seed: hash password: %v", err)
	}

	now := time.Now().UTC()
	admin := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FullName:     "Platform Admin",
		Role:         domain.RoleAdmin,
		IsActive:     true,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("seed: create admin: %v", err)
	}

	fmt.Println("Admin user created successfully.")
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Username: %s\n", username)
	fmt.Println()
	fmt.Println("IMPORTANT: change the default password after first login.")
}
