package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"photo-platform/backend/internal/audit"
	auditdomain "photo-platform/backend/internal/audit/domain"
)

// NewAuditMirror wraps next so every audit event is also emitted as an OTel
// log record via the given LoggerProvider. If provider is nil, next is
// returned unchanged.
func NewAuditMirror(provider *sdklog.LoggerProvider, next audit.Recorder) audit.Recorder {
	if provider == nil {
		return next
	}
	return &auditMirror{logger: provider.Logger("photo-platform.audit"), next: next}
}

type auditMirror struct {
	logger otellog.Logger
	next   audit.Recorder
}

// LogEvent emits the event as an OTel log record and then forwards it to the
// wrapped recorder. Emission is best-effort and never blocks persistence.
func (m *auditMirror) LogEvent(ctx context.Context, e auditdomain.Event) {
	rec := otellog.Record{}
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(e.Action))
	if e.Status == auditdomain.StatusFailure {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	if e.EventType != "" {
		rec.AddAttributes(otellog.String("event_type", e.EventType))
	}
	if e.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", e.UserID))
	}
	if e.Username != "" {
		rec.AddAttributes(otellog.String("username", e.Username))
	}
	if e.Status != "" {
		rec.AddAttributes(otellog.String("status", e.Status))
	}
	if e.ClientIP != "" {
		rec.AddAttributes(otellog.String("client_ip", e.ClientIP))
	}
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			rec.AddAttributes(otellog.String("metadata", string(b)))
		}
	}
	m.logger.Emit(ctx, rec)
	if m.next != nil {
		m.next.LogEvent(ctx, e)
	}
}
