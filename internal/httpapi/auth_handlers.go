package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	auditdomain "photo-platform/backend/internal/audit/domain"
	"photo-platform/backend/internal/auth/service"
	userdomain "photo-platform/backend/internal/user/domain"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type updateProfileRequest struct {
	FullName string `json:"full_name"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FullName    string     `json:"full_name,omitempty"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	IsVerified  bool       `json:"is_verified"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type auditEventResponse struct {
	EventType string         `json:"event_type"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	ClientIP  string         `json:"client_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func toAuditEventResponse(e *auditdomain.Event) auditEventResponse {
	return auditEventResponse{
		EventType: e.EventType,
		Action:    e.Action,
		Status:    e.Status,
		ClientIP:  e.ClientIP,
		UserAgent: e.UserAgent,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		FullName:    u.FullName,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func toTokenResponse(res *service.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(res.ExpiresAt).Seconds()),
	}
}

func requestMeta(r *http.Request) service.Meta {
	return service.Meta{ClientIP: clientIP(r), UserAgent: r.UserAgent()}
}

// allow runs the rate-limit guard for the request. It always sets the
// X-RateLimit headers; on denial it writes the 429 response, records
// the audit event, and returns false.
func (a *API) allow(w http.ResponseWriter, r *http.Request, purpose string, rate Rate) bool {
	if a.limiter == nil || rate.Limit <= 0 {
		return true
	}
	res := a.limiter.Check(r.Context(), purpose, r.URL.Path, clientIP(r), rate.Limit, rate.Window)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.RetryAfter).Unix(), 10))
	if res.Allowed {
		return true
	}
	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	if a.audit != nil {
		a.audit.LogEvent(r.Context(), auditdomain.Event{
			EventType: auditdomain.EventRateLimit,
			Action:    "rate_limit_exceeded",
			Status:    auditdomain.StatusFailure,
			ClientIP:  clientIP(r),
			UserAgent: r.UserAgent(),
			Metadata:  map[string]any{"route": r.URL.Path, "limit": res.Limit},
		})
	}
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// authorize authenticates the bearer token on a protected endpoint,
// writing the error response itself on failure.
func (a *API) authorize(w http.ResponseWriter, r *http.Request) (*service.Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}
	id, err := a.svc.Authorize(r.Context(), token)
	if err != nil {
		handleAuthError(w, err)
		return nil, false
	}
	return id, true
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allow(w, r, "register", a.rates.Register) {
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Register(r.Context(), req.Email, req.Username, req.Password, req.FullName, requestMeta(r))
	if err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   toUserResponse(res.User),
		"tokens": toTokenResponse(res),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allow(w, r, "login", a.rates.Login) {
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	res, err := a.svc.Login(r.Context(), req.Username, req.Password, requestMeta(r))
	if err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allow(w, r, "api", a.rates.API) {
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	res, err := a.svc.Refresh(r.Context(), req.RefreshToken, requestMeta(r))
	if err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	access := bearerToken(r)
	if access == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req logoutRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := a.svc.Logout(r.Context(), access, req.RefreshToken, requestMeta(r)); err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if !a.allow(w, r, "api", a.rates.API) {
		return
	}
	id, ok := a.authorize(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		u, err := a.svc.GetProfile(r.Context(), id.UserID)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
	case http.MethodPatch:
		var req updateProfileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		u, err := a.svc.UpdateProfile(r.Context(), id.UserID, req.FullName)
		if err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allow(w, r, "api", a.rates.API) {
		return
	}
	id, ok := a.authorize(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword, requestMeta(r)); err != nil {
		handleAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

// listParams reads limit and offset query parameters, clamping limit to
// [1, max] with the given default.
func listParams(r *http.Request, def, max int32) (limit, offset int32) {
	limit = def
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 32); err == nil && v > 0 {
		limit = int32(v)
		if limit > max {
			limit = max
		}
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 32); err == nil && v > 0 {
		offset = int32(v)
	}
	return limit, offset
}

// handleAdminUsers routes /v1/admin/users/{id}/role,
// /v1/admin/users/{id}/deactivate, and /v1/admin/users/{id}/audit.
func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if !a.allow(w, r, "api", a.rates.API) {
		return
	}
	id, ok := a.authorize(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	targetID, action := parts[0], parts[1]

	switch action {
	case "role":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPut)
			return
		}
		var req changeRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !userdomain.Role(req.Role).Valid() {
			writeError(w, http.StatusBadRequest, "role must be user or admin")
			return
		}
		if err := a.svc.ChangeRole(r.Context(), id, targetID, userdomain.Role(req.Role), requestMeta(r)); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "role_changed"})
	case "deactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		if err := a.svc.Deactivate(r.Context(), id, targetID, requestMeta(r)); err != nil {
			handleAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
	case "audit":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		if a.auditLog == nil {
			http.NotFound(w, r)
			return
		}
		if err := service.RequireRole(id, userdomain.RoleAdmin); err != nil {
			handleAuthError(w, err)
			return
		}
		limit, offset := listParams(r, 50, 200)
		events, err := a.auditLog.ListByUser(r.Context(), targetID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]auditEventResponse, 0, len(events))
		for _, e := range events {
			out = append(out, toAuditEventResponse(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": out})
	default:
		http.NotFound(w, r)
	}
}
