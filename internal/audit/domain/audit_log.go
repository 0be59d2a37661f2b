package domain

import "time"

// Event types recorded by the auth service. Downstream consumers filter
// on these, so they are stable identifiers.
const (
	EventLogin          = "auth.login"
	EventLogout         = "auth.logout"
	EventRegister       = "auth.register"
	EventFailedLogin    = "auth.failed_login"
	EventTokenRefresh   = "auth.token_refresh"
	EventPasswordChange = "auth.password_change"
	EventRateLimit      = "security.rate_limit"
	EventRoleChange     = "admin.role_change"
	EventDeactivation   = "admin.deactivation"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is one security audit record. UserID and Username may be empty
// when the actor could not be identified (e.g. a failed login for an
// unknown account).
type Event struct {
	ID        int64
	EventType string
	UserID    string
	Username  string
	Action    string
	Status    string
	ClientIP  string
	UserAgent string
	Metadata  map[string]any
	CreatedAt time.Time
}
