// Package service implements the session lifecycle: registration,
// login, token refresh and rotation, logout, and access authorization.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"photo-platform/backend/internal/audit"
	auditdomain "photo-platform/backend/internal/audit/domain"
	"photo-platform/backend/internal/security"
	tokendomain "photo-platform/backend/internal/token/domain"
	userdomain "photo-platform/backend/internal/user/domain"
	userrepo "photo-platform/backend/internal/user/repository"
)

// Meta carries request attribution for audit events.
type Meta struct {
	ClientIP  string
	UserAgent string
}

// AuthResult holds the outcome of Register, Login, or Refresh.
type AuthResult struct {
	User         *userdomain.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
}

// Identity is the authenticated caller context produced by Authorize.
type Identity struct {
	UserID   string
	Username string
	Role     userdomain.Role
	JTI      string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateProfile(ctx context.Context, id, fullName string) error
	UpdateLastLogin(ctx context.Context, id string) error
	ChangePasswordHash(ctx context.Context, id, passwordHash string) error
	ChangeRole(ctx context.Context, id string, role userdomain.Role) error
	SetActive(ctx context.Context, id string, active bool) error
}

// Ledger is the refresh token ledger as seen by the auth service.
// Rotate must revoke oldHash and record next atomically; the returned
// bool reports whether this call won the revocation.
type Ledger interface {
	Record(ctx context.Context, t *tokendomain.RefreshToken) error
	Lookup(ctx context.Context, tokenHash string) (*tokendomain.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) error
	Rotate(ctx context.Context, oldHash string, next *tokendomain.RefreshToken) (bool, error)
}

// Blacklist is the TTL-store view needed for token revocation checks.
type Blacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AuthService orchestrates the session lifecycle. It is stateless;
// construct once at process start and share across requests.
type AuthService struct {
	users      UserRepo
	ledger     Ledger
	blacklist  Blacklist
	hasher     *security.Hasher
	codec      *security.TokenCodec
	audit      audit.Recorder
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	users UserRepo,
	ledger Ledger,
	blacklist Blacklist,
	hasher *security.Hasher,
	codec *security.TokenCodec,
	recorder audit.Recorder,
	accessTTL, refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		users:      users,
		ledger:     ledger,
		blacklist:  blacklist,
		hasher:     hasher,
		codec:      codec,
		audit:      recorder,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register creates a user account and issues the first token pair.
// Validation runs before any repository call; duplicate email or
// username fails with the corresponding sentinel.
func (s *AuthService) Register(ctx context.Context, email, username, password, fullName string, meta Meta) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	username = userdomain.NormalizeUsername(username)
	if err := userdomain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := userdomain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := userdomain.ValidatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logEvent(ctx, auditdomain.Event{
			EventType: auditdomain.EventRegister,
			Action:    "registration_failed",
			Status:    auditdomain.StatusFailure,
			Metadata:  map[string]any{"reason": "email_exists", "email": email},
		}, meta)
		return nil, ErrDuplicateEmail
	}
	existing, err = s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logEvent(ctx, auditdomain.Event{
			EventType: auditdomain.EventRegister,
			Action:    "registration_failed",
			Status:    auditdomain.StatusFailure,
			Metadata:  map[string]any{"reason": "username_exists", "username": username},
		}, meta)
		return nil, ErrDuplicateUsername
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hashed,
		FullName:     fullName,
		Role:         userdomain.RoleUser,
		IsActive:     true,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// The pre-checks race with concurrent registrations; the unique
		// constraints are the real guard.
		switch {
		case errors.Is(err, userrepo.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		case errors.Is(err, userrepo.ErrDuplicateUsername):
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, auditdomain.Event{
		EventType: auditdomain.EventRegister,
		UserID:    user.ID,
		Username:  user.Username,
		Action:    "registration_success",
		Metadata:  map[string]any{"email": user.Email},
	}, meta)
	return result, nil
}

// Login authenticates by username or email. Missing accounts and wrong
// passwords produce the same error; the audit trail records the real
// reason.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string, meta Meta) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, userdomain.NormalizeUsername(usernameOrEmail))
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.users.GetByEmail(ctx, userdomain.NormalizeEmail(usernameOrEmail))
		if err != nil {
			return nil, err
		}
	}
	if user == nil || !s.hasher.Verify(password, user.PasswordHash) {
		s.logEvent(ctx, auditdomain.Event{
			EventType: auditdomain.EventFailedLogin,
			Action:    "login_failed",
			Status:    auditdomain.StatusFailure,
			Metadata:  map[string]any{"username": usernameOrEmail, "reason": "invalid_credentials"},
		}, meta)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logEvent(ctx, auditdomain.Event{
			EventType: auditdomain.EventFailedLogin,
			UserID:    user.ID,
			Username:  user.Username,
			Action:    "login_failed",
			Status:    auditdomain.StatusFailure,
			Metadata:  map[string]any{"reason": "account_inactive"},
		}, meta)
		return nil, ErrAccountInactive
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, auditdomain.Event{
		EventType: auditdomain.EventLogin,
		UserID:    user.ID,
		Username:  user.Username,
		Action:    "login_success",
	}, meta)
	return result, nil
}

// Refresh redeems a refresh token for a new pair, revoking the old one.
// A token can be redeemed at most once; concurrent redemptions lose
// with ErrTokenRevoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta Meta) (*AuthResult, error) {
	claims, err := s.codec.Decode(refreshToken, security.TokenKindRefresh)
	if err != nil {
		return nil, mapTokenError(err)
	}

	blacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: blacklist check: %v", ErrUnavailable, err)
	}
	if blacklisted {
		return nil, ErrTokenRevoked
	}

	oldHash := security.HashRefreshToken(refreshToken)
	record, err := s.ledger.Lookup(ctx, oldHash)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.Usable(time.Now().UTC()) {
		return nil, ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	accessToken, _, accessExp, err := s.codec.Mint(user.ID, user.Username, string(user.Role), security.TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	newRefresh, newJTI, refreshExp, err := s.codec.Mint(user.ID, user.Username, string(user.Role), security.TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	next := &tokendomain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: security.HashRefreshToken(newRefresh),
		JTI:       newJTI,
		ExpiresAt: refreshExp,
		CreatedAt: time.Now().UTC(),
	}
	won, err := s.ledger.Rotate(ctx, oldHash, next)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrTokenRevoked
	}

	s.logEvent(ctx, auditdomain.Event{
		EventType: auditdomain.EventTokenRefresh,
		UserID:    user.ID,
		Username:  user.Username,
		Action:    "token_refresh_success",
	}, meta)
	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
	}, nil
}

// Logout blacklists the access token and, when given, revokes and
// blacklists the refresh token. Revocation is best-effort and
// idempotent: an already revoked or expired refresh token does not
// fail the operation.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string, meta Meta) error {
	claims, err := s.codec.Peek(accessToken)
	if err != nil {
		return ErrInvalidToken
	}

	s.blacklistRemaining(ctx, claims.ID, claims.ExpiresAt.Time)

	if refreshToken != "" {
		if _, err := s.ledger.Revoke(ctx, security.HashRefreshToken(refreshToken)); err != nil {
			log.Printf("auth: logout ledger revoke failed: %v", err)
		}
		if refreshClaims, err := s.codec.Peek(refreshToken); err == nil {
			s.blacklistRemaining(ctx, refreshClaims.ID, refreshClaims.ExpiresAt.Time)
		}
	}

	s.logEvent(ctx, auditdomain.Event{
		EventType: auditdomain.EventLogout,
		UserID:    claims.Subject,
		Username:  claims.Username,
		Action:    "logout_success",
	}, meta)
	return nil
}

// ChangePassword verifies the current password, stores the new hash,
// and revokes every refresh token for the account so all sessions must
// log in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta Meta) error {
	if err := userdomain.ValidatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		s.logEvent(ctx, auditdomain.Event{
			EventType: auditdomain.EventPasswordChange,
			UserID:    user.ID,
			Username:  user.Username,
			Action:    "password_change_failed",
			Status:    auditdomain.StatusFailure,
			Metadata:  map[string]any{"reason": "incorrect_current_password"},
		}, meta)
		return ErrCurrentPasswordIncorrect
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.ChangePasswordHash(ctx, user.ID, hashed); err != nil {
		return err
	}
	if err := s.ledger.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	s.logEvent(ctx, auditdomain.Event{
		EventType: auditdomain.EventPasswordChange,
		UserID:    user.ID,
		Username:  user.Username,
		Action:    "password_change_success",
	}, meta)
	return nil
}

// Authorize validates an access token and returns the caller identity.
// A blacklist outage fails closed with ErrUnavailable.
func (s *AuthService) Authorize(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.codec.Decode(accessToken, security.TokenKindAccess)
	if err != nil {
		return nil, mapTokenError(err)
	}
	blacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: blacklist check: %v", ErrUnavailable, err)
	}
	if blacklisted {
		return nil, ErrTokenRevoked
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      claims.ID,
	}, nil
}

// RequireRole checks the caller's role; a plain predicate, no policy
// engine behind it.
func RequireRole(id *Identity, role userdomain.Role) error {
	if id == nil || id.Role != role {
		return ErrForbidden
	}
	return nil
}

// GetProfile returns the account for id.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*userdomain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// UpdateProfile updates the caller's full name and returns the fresh
// record.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, fullName string) (*userdomain.User, error) {
	if len(fullName) > userdomain.FullNameMaxLen {
		return nil, fmt.Errorf("full name must be at most %d characters", userdomain.FullNameMaxLen)
	}
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.users.UpdateProfile(ctx, userID, fullName); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}

// ChangeRole sets the target account's role. Admin only.
func (s *AuthService) ChangeRole(ctx context.Context, actor *Identity, targetID string, role userdomain.Role, meta Meta) error {
	if err := RequireRole(actor, userdomain.RoleAdmin); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}
	if err := s.users.ChangeRole(ctx, targetID, role); err != nil {
		return err
	}
	s.logEvent(ctx, auditdomain.Event{
		EventType: auditdomain.EventRoleChange,
		UserID:    actor.UserID,
		Username:  actor.Username,
		Action:    "role_change",
		Metadata:  map[string]any{"target_id": targetID, "role": string(role)},
	}, meta)
	return nil
}

// Deactivate disables the target account and revokes its refresh
// tokens. Admin only.
func (s *AuthService) Deactivate(ctx context.Context, actor *Identity, targetID string, meta Meta) error {
	if err := RequireRole(actor, userdomain.RoleAdmin); err != nil {
		return err
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}
	if err := s.users.SetActive(ctx, targetID, false); err != nil {
		return err
	}
	if err := s.ledger.RevokeAllForUser(ctx, targetID); err != nil {
		return err
	}
	s.logEvent(ctx, auditdomain.Event{
		EventType: auditdomain.EventDeactivation,
		UserID:    actor.UserID,
		Username:  actor.Username,
		Action:    "deactivation",
		Metadata:  map[string]any{"target_id": targetID},
	}, meta)
	return nil
}

// issueTokens mints an access+refresh pair and records the refresh
// token in the ledger.
func (s *AuthService) issueTokens(ctx context.Context, user *userdomain.User) (*AuthResult, error) {
	accessToken, _, accessExp, err := s.codec.Mint(user.ID, user.Username, string(user.Role), security.TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, jti, refreshExp, err := s.codec.Mint(user.ID, user.Username, string(user.Role), security.TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	record := &tokendomain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: security.HashRefreshToken(refreshToken),
		JTI:       jti,
		ExpiresAt: refreshExp,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.Record(ctx, record); err != nil {
		return nil, err
	}
	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
	}, nil
}

// blacklistRemaining blacklists jti for the token's remaining lifetime.
// Already expired tokens need no entry.
func (s *AuthService) blacklistRemaining(ctx context.Context, jti string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if err := s.blacklist.BlacklistToken(ctx, jti, ttl); err != nil {
		log.Printf("auth: blacklist %s failed: %v", jti, err)
	}
}

func (s *AuthService) logEvent(ctx context.Context, e auditdomain.Event, meta Meta) {
	if s.audit == nil {
		return
	}
	e.ClientIP = meta.ClientIP
	e.UserAgent = meta.UserAgent
	s.audit.LogEvent(ctx, e)
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, security.ErrInvalidTokenType):
		return ErrInvalidTokenType
	default:
		return ErrInvalidToken
	}
}
