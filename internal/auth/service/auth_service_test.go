package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"photo-platform/backend/internal/audit"
	auditdomain "photo-platform/backend/internal/audit/domain"
	"photo-platform/backend/internal/security"
	tokendomain "photo-platform/backend/internal/token/domain"
	userdomain "photo-platform/backend/internal/user/domain"
)

type memUserRepo struct {
	mu         sync.Mutex
	byID       map[string]*userdomain.User
	byEmail    map[string]*userdomain.User
	byUsername map[string]*userdomain.User
	lookups    int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:       make(map[string]*userdomain.User),
		byEmail:    make(map[string]*userdomain.User),
		byUsername: make(map[string]*userdomain.User),
	}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	return r.byEmail[email], nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	return r.byUsername[username], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u2 := *u
	r.byID[u.ID] = &u2
	r.byEmail[u.Email] = &u2
	r.byUsername[u.Username] = &u2
	return nil
}

func (r *memUserRepo) UpdateProfile(ctx context.Context, id, fullName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.FullName = fullName
	}
	return nil
}

func (r *memUserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		t := time.Now().UTC()
		u.LastLoginAt = &t
	}
	return nil
}

func (r *memUserRepo) ChangePasswordHash(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (r *memUserRepo) ChangeRole(ctx context.Context, id string, role userdomain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.Role = role
	}
	return nil
}

func (r *memUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.IsActive = active
	}
	return nil
}

func (r *memUserRepo) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

type memLedger struct {
	mu sync.Mutex
	m  map[string]*tokendomain.RefreshToken
}

func newMemLedger() *memLedger {
	return &memLedger{m: make(map[string]*tokendomain.RefreshToken)}
}

func (l *memLedger) Record(ctx context.Context, t *tokendomain.RefreshToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t2 := *t
	l.m[t.TokenHash] = &t2
	return nil
}

func (l *memLedger) Lookup(ctx context.Context, tokenHash string) (*tokendomain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.m[tokenHash]; ok {
		r2 := *rec
		return &r2, nil
	}
	return nil, nil
}

func (l *memLedger) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.m[tokenHash]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	return true, nil
}

func (l *memLedger) RevokeAllForUser(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.m {
		if rec.UserID == userID {
			rec.Revoked = true
		}
	}
	return nil
}

func (l *memLedger) Rotate(ctx context.Context, oldHash string, next *tokendomain.RefreshToken) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.m[oldHash]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	n2 := *next
	l.m[next.TokenHash] = &n2
	return true, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

type memBlacklist struct {
	mu  sync.Mutex
	m   map[string]time.Time
	err error
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{m: make(map[string]time.Time)}
}

func (b *memBlacklist) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if ttl > 0 {
		b.m[jti] = time.Now().Add(ttl)
	}
	return nil
}

func (b *memBlacklist) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, b.err
	}
	deadline, ok := b.m[jti]
	return ok && time.Now().Before(deadline), nil
}

type memRecorder struct {
	mu     sync.Mutex
	events []auditdomain.Event
}

func (r *memRecorder) LogEvent(ctx context.Context, e auditdomain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *memRecorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

var _ audit.Recorder = (*memRecorder)(nil)

type testEnv struct {
	svc       *AuthService
	users     *memUserRepo
	ledger    *memLedger
	blacklist *memBlacklist
	recorder  *memRecorder
	codec     *security.TokenCodec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := newMemUserRepo()
	ledger := newMemLedger()
	blacklist := newMemBlacklist()
	recorder := &memRecorder{}
	hasher := security.NewHasher(4)
	codec := security.NewTokenCodec([]byte("test-secret-32-bytes-long-please"), "photo-platform-test")
	svc := NewAuthService(users, ledger, blacklist, hasher, codec, recorder, 15*time.Minute, 24*time.Hour)
	return &testEnv{svc: svc, users: users, ledger: ledger, blacklist: blacklist, recorder: recorder, codec: codec}
}

const testPassword = "Abc12345!"

func register(t *testing.T, env *testEnv) *AuthResult {
	t.Helper()
	res, err := env.svc.Register(context.Background(), "alice@example.com", "alice", testPassword, "Alice", Meta{ClientIP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	res := register(t, env)

	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("Register should return both tokens")
	}
	if env.ledger.count() != 1 {
		t.Errorf("ledger has %d records, want 1", env.ledger.count())
	}
	claims, err := env.codec.Decode(res.AccessToken, security.TokenKindAccess)
	if err != nil {
		t.Fatalf("Decode access: %v", err)
	}
	if claims.Subject != res.User.ID {
		t.Errorf("access subject = %q, want %q", claims.Subject, res.User.ID)
	}
	if claims.Role != string(userdomain.RoleUser) {
		t.Errorf("role = %q, want user", claims.Role)
	}
}

func TestRegister_Duplicates(t *testing.T) {
	env := newTestEnv(t)
	register(t, env)

	_, err := env.svc.Register(context.Background(), "alice@example.com", "alice2", testPassword, "", Meta{})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email: got %v, want ErrDuplicateEmail", err)
	}
	_, err = env.svc.Register(context.Background(), "alice2@example.com", "alice", testPassword, "", Meta{})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("duplicate username: got %v, want ErrDuplicateUsername", err)
	}
	if env.ledger.count() != 1 {
		t.Errorf("failed registrations must not record tokens; ledger has %d", env.ledger.count())
	}
}

func TestRegister_ReservedUsernameBeforeRepo(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(context.Background(), "root@example.com", "admin", testPassword, "", Meta{})
	if err == nil {
		t.Fatal("reserved username should fail")
	}
	if n := env.users.lookupCount(); n != 0 {
		t.Errorf("validation failure must not touch the repository; saw %d lookups", n)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	res, err := env.svc.Login(context.Background(), "alice", testPassword, Meta{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != reg.User.ID {
		t.Errorf("login identity %q, want %q", res.User.ID, reg.User.ID)
	}
	if res.AccessToken == reg.AccessToken {
		t.Error("login must mint a fresh access token")
	}
	regClaims, _ := env.codec.Decode(reg.AccessToken, security.TokenKindAccess)
	loginClaims, _ := env.codec.Decode(res.AccessToken, security.TokenKindAccess)
	if regClaims.ID == loginClaims.ID {
		t.Error("login access token must carry a fresh jti")
	}
	if res.User.LastLoginAt == nil {
		t.Error("login should stamp last login")
	}

	// Email works as the login identifier too.
	if _, err := env.svc.Login(context.Background(), "alice@example.com", testPassword, Meta{}); err != nil {
		t.Errorf("login by email: %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	register(t, env)

	_, err := env.svc.Login(context.Background(), "alice", "Wrong1234!", Meta{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	_, err = env.svc.Login(context.Background(), "nobody", testPassword, Meta{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user must fail identically, got %v", err)
	}

	types := env.recorder.eventTypes()
	if types[len(types)-1] != auditdomain.EventFailedLogin {
		t.Errorf("failed login should audit %s, got %v", auditdomain.EventFailedLogin, types)
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)
	env.users.SetActive(context.Background(), reg.User.ID, false)

	_, err := env.svc.Login(context.Background(), "alice", testPassword, Meta{})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("got %v, want ErrAccountInactive", err)
	}
}

func TestRefresh_RotatesSingleUse(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	res, err := env.svc.Refresh(context.Background(), reg.RefreshToken, Meta{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.RefreshToken == reg.RefreshToken {
		t.Error("rotation must issue a new refresh token")
	}

	// The old token is spent.
	_, err = env.svc.Refresh(context.Background(), reg.RefreshToken, Meta{})
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("reused refresh token: got %v, want ErrTokenRevoked", err)
	}

	// The replacement still works.
	if _, err := env.svc.Refresh(context.Background(), res.RefreshToken, Meta{}); err != nil {
		t.Fatalf("rotated token should refresh: %v", err)
	}
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := env.svc.Refresh(context.Background(), reg.RefreshToken, Meta{})
			results <- err
		}()
	}
	var successes, revoked int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTokenRevoked):
			revoked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || revoked != 1 {
		t.Fatalf("concurrent refresh: %d successes, %d revoked; want 1 and 1", successes, revoked)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	_, err := env.svc.Refresh(context.Background(), reg.AccessToken, Meta{})
	if !errors.Is(err, ErrInvalidTokenType) {
		t.Fatalf("got %v, want ErrInvalidTokenType", err)
	}
}

func TestRefresh_BlacklistOutageFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)
	env.blacklist.err = errors.New("redis down")

	_, err := env.svc.Refresh(context.Background(), reg.RefreshToken, Meta{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	if err := env.svc.Logout(context.Background(), reg.AccessToken, reg.RefreshToken, Meta{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	_, err := env.svc.Authorize(context.Background(), reg.AccessToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("authorize after logout: got %v, want ErrTokenRevoked", err)
	}
	_, err = env.svc.Refresh(context.Background(), reg.RefreshToken, Meta{})
	if err == nil {
		t.Error("refresh after logout should fail")
	}

	// Idempotent: repeating with spent tokens succeeds.
	if err := env.svc.Logout(context.Background(), reg.AccessToken, reg.RefreshToken, Meta{}); err != nil {
		t.Errorf("repeated logout: %v", err)
	}
}

func TestLogout_TokenWithoutExpiry(t *testing.T) {
	env := newTestEnv(t)
	register(t, env)

	// A buggy co-service holding the shared secret could sign a token
	// that omits exp. Logout must reject it cleanly, never crash on the
	// missing claim.
	claims := security.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       "no-exp-jti",
			Subject:  "user-1",
			Issuer:   "photo-platform-test",
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
		Username:  "alice",
		Role:      "user",
		TokenType: string(security.TokenKindAccess),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-secret-32-bytes-long-please"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := env.svc.Logout(context.Background(), token, "", Meta{}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("logout without exp: got %v, want ErrInvalidToken", err)
	}
	if _, err := env.svc.Authorize(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("authorize without exp: got %v, want ErrInvalidToken", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	err := env.svc.ChangePassword(context.Background(), reg.User.ID, "Wrong1234!", "NewPass123!", Meta{})
	if !errors.Is(err, ErrCurrentPasswordIncorrect) {
		t.Fatalf("got %v, want ErrCurrentPasswordIncorrect", err)
	}

	if err := env.svc.ChangePassword(context.Background(), reg.User.ID, testPassword, "NewPass123!", Meta{}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// All prior refresh tokens are dead.
	_, err = env.svc.Refresh(context.Background(), reg.RefreshToken, Meta{})
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("refresh after password change: got %v, want ErrTokenRevoked", err)
	}

	// Old password no longer logs in; new one does.
	if _, err := env.svc.Login(context.Background(), "alice", testPassword, Meta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.svc.Login(context.Background(), "alice", "NewPass123!", Meta{}); err != nil {
		t.Errorf("new password: %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	id, err := env.svc.Authorize(context.Background(), reg.AccessToken)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if id.UserID != reg.User.ID || id.Username != "alice" || id.Role != userdomain.RoleUser {
		t.Errorf("unexpected identity: %+v", id)
	}

	if _, err := env.svc.Authorize(context.Background(), reg.RefreshToken); !errors.Is(err, ErrInvalidTokenType) {
		t.Errorf("refresh token in authorize: got %v, want ErrInvalidTokenType", err)
	}
}

func TestAuthorize_ExpiredIsNotSignatureFailure(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	expired, _, _, err := env.codec.Mint(reg.User.ID, "alice", "user", security.TokenKindAccess, -1*time.Second)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	_, err = env.svc.Authorize(context.Background(), expired)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestAuthorize_BlacklistOutageFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)
	env.blacklist.err = errors.New("redis down")

	_, err := env.svc.Authorize(context.Background(), reg.AccessToken)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestRequireRole(t *testing.T) {
	user := &Identity{Role: userdomain.RoleUser}
	admin := &Identity{Role: userdomain.RoleAdmin}

	if err := RequireRole(admin, userdomain.RoleAdmin); err != nil {
		t.Errorf("admin should pass: %v", err)
	}
	if err := RequireRole(user, userdomain.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Errorf("user should be forbidden, got %v", err)
	}
	if err := RequireRole(nil, userdomain.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Errorf("nil identity should be forbidden, got %v", err)
	}
}

func TestAdminOperations(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	user := &Identity{UserID: "u2", Username: "bob", Role: userdomain.RoleUser}
	admin := &Identity{UserID: "a1", Username: "ops", Role: userdomain.RoleAdmin}

	if err := env.svc.ChangeRole(context.Background(), user, reg.User.ID, userdomain.RoleAdmin, Meta{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin role change: got %v, want ErrForbidden", err)
	}
	if err := env.svc.ChangeRole(context.Background(), admin, reg.User.ID, userdomain.RoleAdmin, Meta{}); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	got, _ := env.users.GetByID(context.Background(), reg.User.ID)
	if got.Role != userdomain.RoleAdmin {
		t.Errorf("role = %q, want admin", got.Role)
	}

	if err := env.svc.Deactivate(context.Background(), admin, reg.User.ID, Meta{}); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := env.svc.Login(context.Background(), "alice", testPassword, Meta{}); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("login after deactivation: got %v, want ErrAccountInactive", err)
	}
	if _, err := env.svc.Refresh(context.Background(), reg.RefreshToken, Meta{}); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("refresh after deactivation: got %v, want ErrTokenRevoked", err)
	}

	if err := env.svc.Deactivate(context.Background(), admin, "missing", Meta{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("deactivate unknown user: got %v, want ErrNotFound", err)
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env)

	u, err := env.svc.GetProfile(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q", u.Email)
	}

	updated, err := env.svc.UpdateProfile(context.Background(), reg.User.ID, "Alice A. Smith")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.FullName != "Alice A. Smith" {
		t.Errorf("full name = %q", updated.FullName)
	}

	if _, err := env.svc.GetProfile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
