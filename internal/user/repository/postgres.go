package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"photo-platform/backend/internal/db"
	"photo-platform/backend/internal/user/domain"
)

// Duplicate-key errors surfaced from Create, mapped from the unique
// constraints on the users table.
var (
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
)

const userColumns = `id, email, username, password_hash, full_name, role, is_active, is_verified, created_at, updated_at, last_login_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository that uses the given
// executor for persistence. Pass a *sql.Tx to run inside a transaction.
func NewPostgresRepository(dbtx db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: dbtx}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByUsername returns the user with the given username, or nil if not
// found. The username must already be normalized.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// Create persists the user. The user must have ID set; it is not
// assigned by this method. Unique violations are mapped to
// ErrDuplicateEmail and ErrDuplicateUsername.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	fullName := sql.NullString{String: u.FullName, Valid: u.FullName != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, full_name, role, is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.Username, u.PasswordHash, fullName, string(u.Role),
		u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

// UpdateProfile updates the user's full name. Missing rows are a no-op.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, fullName string) error {
	val := sql.NullString{String: fullName, Valid: fullName != ""}
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET full_name = $2, updated_at = $3 WHERE id = $1`,
		id, val, time.Now().UTC(),
	)
	return err
}

// UpdateLastLogin stamps last_login_at with the current time.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`,
		id, now,
	)
	return err
}

// ChangePasswordHash replaces the stored password hash.
func (r *PostgresRepository) ChangePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC(),
	)
	return err
}

// ChangeRole sets the user's role.
func (r *PostgresRepository) ChangeRole(ctx context.Context, id string, role domain.Role) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`,
		id, string(role), time.Now().UTC(),
	)
	return err
}

// SetActive enables or disables the account.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now().UTC(),
	)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u         domain.User
		fullName  sql.NullString
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &fullName,
		&role, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.FullName = fullName.String
	u.Role = domain.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrDuplicateEmail
		case "users_username_key":
			return ErrDuplicateUsername
		}
	}
	return err
}
