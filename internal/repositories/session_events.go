package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/repertoire/internal/shared"
)

// SessionEventKind labels an entry of the session audit trail.
type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
	SessionRefreshed SessionEventKind = "refreshed"
)

// SessionEvent is one row of the session_events table.
type SessionEvent struct {
	ID        string
	Kind      SessionEventKind
	UserID    string
	CreatedAt time.Time
}

// SessionEventRepository records sign-in, refresh and sign-out events.
type SessionEventRepository struct {
	db *sql.DB
}

// NewSessionEventRepository creates a new [SessionEventRepository] with the given database connection
func NewSessionEventRepository(db *sql.DB) *SessionEventRepository {
	return &SessionEventRepository{db: db}
}

// Record inserts a new event with a generated ID.
func (r *SessionEventRepository) Record(ctx context.Context, kind SessionEventKind, userID string) (*SessionEvent, error) {
	event := &SessionEvent{
		ID:        shared.GenerateID(),
		Kind:      kind,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	query := `INSERT INTO session_events (id, kind, user_id, created_at) VALUES (?, ?, ?, ?)`

	var uid sql.NullString
	if userID != "" {
		uid = sql.NullString{String: userID, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, event.ID, string(kind), uid, event.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert session event: %w", err)
	}
	return event, nil
}

// Recent returns at most limit events, newest first.
func (r *SessionEventRepository) Recent(ctx context.Context, limit int) ([]SessionEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, kind, user_id, created_at
		FROM session_events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var (
			event  SessionEvent
			kind   string
			userID sql.NullString
		)
		if err := rows.Scan(&event.ID, &kind, &userID, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		event.Kind = SessionEventKind(kind)
		event.UserID = userID.String
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}
