// Package httpapi is the HTTP adapter over the auth service.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"photo-platform/backend/internal/audit"
	auditdomain "photo-platform/backend/internal/audit/domain"
	"photo-platform/backend/internal/auth/service"
	"photo-platform/backend/internal/ratelimit"
)

// AuditReader provides paginated access to a user's audit trail for the
// admin listing endpoint.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*auditdomain.Event, error)
}

// Rate is one request budget: limit requests per window.
type Rate struct {
	Limit  int
	Window time.Duration
}

// Rates holds the per-endpoint budgets.
type Rates struct {
	Login    Rate
	Register Rate
	API      Rate
}

// ReadyProbe checks readiness (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *service.AuthService
	limiter    *ratelimit.Limiter
	rates      Rates
	audit      audit.Recorder
	auditLog   AuditReader
	readyProbe ReadyProbe
	metrics    *Metrics
	version    string
}

func New(svc *service.AuthService, limiter *ratelimit.Limiter, rates Rates, recorder audit.Recorder, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		limiter:    limiter,
		rates:      rates,
		audit:      recorder,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/admin/users/", a.handleAdminUsers)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// WithAuditLog attaches the audit trail reader backing the admin listing
// endpoint. Without it the endpoint responds 404.
func (a *API) WithAuditLog(reader AuditReader) *API {
	a.auditLog = reader
	return a
}

// WithMetrics attaches request metrics instruments. A nil Metrics is allowed
// and leaves the handler chain unchanged.
func (a *API) WithMetrics(m *Metrics) *API {
	a.metrics = m
	return a
}

// Handler returns the full middleware-wrapped handler.
func (a *API) Handler() http.Handler {
	return a.metrics.Middleware(Logging(SecurityHeaders(a.mux)))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "photo-platform-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps service sentinels to status codes. The mapping
// is a contract shared by every service behind the gateway.
func handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrInvalidTokenType),
		errors.Is(err, service.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrDuplicateEmail),
		errors.Is(err, service.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCurrentPasswordIncorrect):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, service.ErrUnavailable.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
