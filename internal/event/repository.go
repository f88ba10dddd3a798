// Package event provides the append-only audit trail for control
// activity. Events record what happened; nothing on the state
// synchronization path ever reads them back.
package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearth-home/hearth/internal/device"
)

// Well-known event types.
const (
	TypeDeviceControl = "device_control"
	TypeModeChange    = "mode_change"
	TypeFishFeeding   = "fish_feeding"
	TypeWatering      = "watering"
	TypeEVCharging    = "ev_charging"
)

// Event is a single immutable audit record.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"event_type"`
	DeviceID  string         `json:"device_id,omitempty"`
	Action    string         `json:"action,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Filter controls which events List returns.
type Filter struct {
	Type     string // optional: filter by event type
	DeviceID string // optional: filter by device
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains the paginated event results.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository defines the interface for event log operations.
//
// Append failures must never fail the mutation that caused the event;
// callers log the error and continue.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository persists events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts a new event. The ID and Timestamp are generated if empty.
func (r *SQLiteRepository) Append(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()[:8]
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var metadataJSON *string
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling event metadata: %w", err)
		}
		s := string(b)
		metadataJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, event_type, device_id, action, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type,
		nullableString(e.DeviceID), nullableString(e.Action),
		metadataJSON,
		device.FormatTimestamp(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for event queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Type != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.Type)
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions (? placeholders) — no user input in SQL string.
	countQuery := "SELECT COUNT(*) FROM events " + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	query := "SELECT id, event_type, device_id, action, metadata, timestamp FROM events " +
		where + " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var deviceID, action, metadataJSON sql.NullString
		var timestamp string

		if err := rows.Scan(&e.ID, &e.Type, &deviceID, &action, &metadataJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		if deviceID.Valid {
			e.DeviceID = deviceID.String
		}
		if action.Valid {
			e.Action = action.String
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			var metadata map[string]any
			if json.Unmarshal([]byte(metadataJSON.String), &metadata) == nil {
				e.Metadata = metadata
			}
		}

		ts, err := device.ParseTimestamp(timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", timestamp, err)
		}
		e.Timestamp = ts

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	if events == nil {
		events = []Event{}
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
