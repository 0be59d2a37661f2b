package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"photo-platform/backend/internal/audit/domain"
	"photo-platform/backend/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit repository that uses the given
// executor for persistence.
func NewPostgresRepository(dbtx db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: dbtx}
}

// Create persists the event. The database assigns the ID.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("audit metadata: %w", err)
		}
	}
	userID := sql.NullString{String: e.UserID, Valid: e.UserID != ""}
	username := sql.NullString{String: e.Username, Valid: e.Username != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (event_type, user_id, username, action, status, client_ip, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.EventType, userID, username, e.Action, e.Status,
		e.ClientIP, e.UserAgent, nullableJSON(meta), e.CreatedAt,
	)
	return err
}

// ListByUser returns events for the user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, user_id, username, action, status, client_ip, user_agent, metadata, created_at
		FROM audit_logs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var (
			e        domain.Event
			uid      sql.NullString
			username sql.NullString
			clientIP sql.NullString
			ua       sql.NullString
			meta     []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &uid, &username, &e.Action,
			&e.Status, &clientIP, &ua, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = uid.String
		e.Username = username.String
		e.ClientIP = clientIP.String
		e.UserAgent = ua.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
