package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// User is the core account entity shared by all services.
type User struct {
	ID           string
	Email        string
	Username     string // stored lowercase; unique across the platform
	PasswordHash string
	FullName     string
	Role         Role
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

const (
	UsernameMinLen = 3
	UsernameMaxLen = 30
	PasswordMinLen = 8
	FullNameMaxLen = 100
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	// reservedUsernames cannot be registered; they collide with routes,
	// mail aliases, or operational identities.
	reservedUsernames = map[string]struct{}{
		"admin":         {},
		"administrator": {},
		"root":          {},
		"system":        {},
		"support":       {},
		"help":          {},
		"api":           {},
		"www":           {},
		"mail":          {},
		"ftp":           {},
		"test":          {},
		"guest":         {},
		"anonymous":     {},
		"moderator":     {},
		"staff":         {},
		"official":      {},
	}
)

// NormalizeUsername lowercases and trims a username for storage and lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks basic email shape. It does not verify deliverability.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("email is not a valid address")
	}
	return nil
}

// ValidateUsername checks length, character set, and the reserved list.
// The username must already be normalized.
func ValidateUsername(username string) error {
	if len(username) < UsernameMinLen || len(username) > UsernameMaxLen {
		return fmt.Errorf("username must be between %d and %d characters", UsernameMinLen, UsernameMaxLen)
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username may only contain letters, digits, and underscores")
	}
	if _, ok := reservedUsernames[username]; ok {
		return errors.New("username is reserved")
	}
	return nil
}

// ValidatePassword enforces the platform password policy: at least
// PasswordMinLen characters with an upper-case letter, a lower-case
// letter, a digit, and a special character.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLen {
		return fmt.Errorf("password must be at least %d characters", PasswordMinLen)
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain an upper-case letter")
	}
	if !hasLower {
		return errors.New("password must contain a lower-case letter")
	}
	if !hasDigit {
		return errors.New("password must contain a digit")
	}
	if !hasSpecial {
		return errors.New("password must contain a special character")
	}
	return nil
}

// Validate validates the user for persistence. Returns an error describing
// the first validation failure. Email and Username must be normalized first.
func (u *User) Validate() error {
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if err := ValidateUsername(u.Username); err != nil {
		return err
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	return nil
}
