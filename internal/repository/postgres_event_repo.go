package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hirewire/authcore/internal/domain"
)

// PostgresEventRepo implements domain.EventRecorder over the append-only
// security_events table. Rows are inserted, never updated or deleted; the
// dashboard and alerting layer consume them downstream.
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo creates a new repository instance.
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Record inserts one immutable security event.
func (r *PostgresEventRepo) Record(ctx context.Context, event *domain.SecurityEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO security_events (id, user_id, event_type, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	// user_id may be empty for anonymous failures; the schema allows NULL.
	var uid sql.NullString
	if event.UserID != "" {
		uid.String = event.UserID
		uid.Valid = true
	}

	_, err = r.db.ExecContext(ctx, query,
		event.ID, uid, event.EventType, event.IPAddress, event.UserAgent, details, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record security event: %w", err)
	}
	return nil
}

// RecentByUser returns the newest events for a user, newest first.
func (r *PostgresEventRepo) RecentByUser(ctx context.Context, userID string, limit int) ([]domain.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, COALESCE(user_id, ''), event_type, COALESCE(ip_address, ''), COALESCE(user_agent, ''), details, created_at
		FROM security_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var event domain.SecurityEvent
		var details []byte
		if err := rows.Scan(&event.ID, &event.UserID, &event.EventType, &event.IPAddress, &event.UserAgent, &details, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &event.Details)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
