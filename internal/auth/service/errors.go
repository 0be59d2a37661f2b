package service

import "errors"

// Sentinel errors for the auth service; the HTTP handler maps them to
// status codes. Authentication failures are deliberately uniform so
// responses cannot be used to enumerate accounts.
var (
	ErrInvalidCredentials       = errors.New("incorrect username or password")
	ErrDuplicateEmail           = errors.New("email already registered")
	ErrDuplicateUsername        = errors.New("username already taken")
	ErrAccountInactive          = errors.New("account is inactive")
	ErrInvalidToken             = errors.New("invalid token")
	ErrTokenExpired             = errors.New("token has expired")
	ErrInvalidTokenType         = errors.New("invalid token type")
	ErrTokenRevoked             = errors.New("token has been revoked")
	ErrCurrentPasswordIncorrect = errors.New("current password is incorrect")
	ErrForbidden                = errors.New("insufficient role")
	ErrNotFound                 = errors.New("user not found")
	ErrUnavailable              = errors.New("service temporarily unavailable")
)
