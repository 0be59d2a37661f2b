package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for token validation; callers map them to auth failures.
var (
	// ErrInvalidToken is returned when a token is malformed or its signature is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a structurally valid token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidTokenType is returned when a valid token is presented where the other kind is required.
	ErrInvalidTokenType = errors.New("invalid token type")
)

// TokenKind distinguishes access tokens from refresh tokens. The kind is
// embedded in the signed payload and immutable once minted.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// SessionClaims holds the JWT claims for both access and refresh tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
}

// Kind returns the token kind marker from the claims.
func (c *SessionClaims) Kind() TokenKind {
	return TokenKind(c.TokenType)
}

// TokenCodec mints and verifies HS256-signed session tokens. The signing
// secret and issuer are fixed at construction from process configuration.
type TokenCodec struct {
	secret []byte
	issuer string
}

// NewTokenCodec returns a TokenCodec signing with the given symmetric secret.
func NewTokenCodec(secret []byte, issuer string) *TokenCodec {
	return &TokenCodec{secret: secret, issuer: issuer}
}

// Mint issues a signed token of the given kind for the user. Returns the
// token string, its jti, and expiration time. The jti is 128 bits of
// cryptographic randomness, unique per mint.
func (c *TokenCodec) Mint(userID, username, role string, kind TokenKind, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:  username,
		Role:      role,
		TokenType: string(kind),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = t.SignedString(c.secret)
	return token, jti, expiresAt, err
}

// Decode parses and validates the token (signature, expiry, issuer) and
// checks it carries the expected kind. Tokens without exp and iat claims are
// rejected; a signature-valid never-expiring token is not a session token.
// Expiry failures return ErrTokenExpired, a kind mismatch ErrInvalidTokenType,
// anything else ErrInvalidToken.
func (c *TokenCodec) Decode(tokenString string, want TokenKind) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, c.keyFunc,
		jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != c.issuer || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Kind() != want {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}

// Peek parses the token verifying its signature but ignoring expiry. Used for
// revocation bookkeeping: extracting jti and exp from a token that may
// already be expired. A missing exp claim is rejected since callers compute
// the remaining blacklist TTL from it. Kind is not checked.
func (c *TokenCodec) Peek(tokenString string) (*SessionClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, &SessionClaims{}, c.keyFunc)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *TokenCodec) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, ErrInvalidToken
	}
	return c.secret, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
