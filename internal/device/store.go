package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store defines the interface for device and home-mode persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Store interface {
	// Get retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, id string) (*Device, error)

	// List retrieves devices matching the filter, ordered by (room, type)
	// for stable dashboard grouping.
	List(ctx context.Context, filter Filter) ([]Device, error)

	// Write applies a partial update to a device. Only supplied fields
	// change; last_updated is stamped whenever at least one field is
	// supplied. Supplying neither is a no-op. Properties replace the
	// stored map wholesale, they are not merged.
	Write(ctx context.Context, id string, state *string, properties map[string]any) error

	// Rooms returns the sorted distinct non-null room labels.
	Rooms(ctx context.Context) ([]string, error)

	// ActiveMode returns the currently active home mode.
	// ok is false if no mode has ever been activated.
	ActiveMode(ctx context.Context) (mode Mode, ok bool, err error)

	// SetActiveMode deactivates every other mode and activates mode,
	// stamping last_activated, inside a single transaction.
	SetActiveMode(ctx context.Context, mode Mode) error

	// Stats computes aggregate counts from current store contents.
	Stats(ctx context.Context) (*Stats, error)

	// LastChanged returns the maximum last_updated across all devices.
	// ok is false when the store holds no devices.
	LastChanged(ctx context.Context) (ts string, ok bool, err error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const deviceColumns = "id, type, room, state, properties, last_updated"

// Get retrieves a device by its unique identifier.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves devices matching the filter.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Device, error) {
	var conditions []string
	var args []any

	if filter.Room != "" {
		conditions = append(conditions, "room = ?")
		args = append(args, filter.Room)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := "SELECT " + deviceColumns + " FROM devices"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY room, type, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// Write applies a partial update to a device.
func (s *SQLiteStore) Write(ctx context.Context, id string, state *string, properties map[string]any) error {
	var updates []string
	var args []any

	if state != nil {
		updates = append(updates, "state = ?")
		args = append(args, *state)
	}
	if properties != nil {
		propsJSON, err := json.Marshal(properties)
		if err != nil {
			return fmt.Errorf("marshalling properties: %w", err)
		}
		updates = append(updates, "properties = ?")
		args = append(args, string(propsJSON))
	}

	if len(updates) == 0 {
		return nil
	}

	updates = append(updates, "last_updated = ?")
	args = append(args, FormatTimestamp(time.Now()))
	args = append(args, id)

	// updates is assembled from fixed column fragments, all values are bound
	query := "UPDATE devices SET " + strings.Join(updates, ", ") + " WHERE id = ?"

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Rooms returns the sorted distinct non-null room labels.
func (s *SQLiteStore) Rooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT room FROM devices WHERE room IS NOT NULL ORDER BY room")
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}

	if rooms == nil {
		rooms = []string{}
	}
	return rooms, nil
}

// ActiveMode returns the currently active home mode.
func (s *SQLiteStore) ActiveMode(ctx context.Context) (Mode, bool, error) {
	var mode string
	err := s.db.QueryRowContext(ctx,
		"SELECT mode FROM home_modes WHERE is_active = 1").Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying active mode: %w", err)
	}
	return Mode(mode), true, nil
}

// SetActiveMode deactivates every other mode and activates mode.
//
// Both updates run inside one transaction so a concurrent reader never
// observes two active modes, and observes zero active modes for at most
// the duration of the commit.
func (s *SQLiteStore) SetActiveMode(ctx context.Context, mode Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "UPDATE home_modes SET is_active = 0"); err != nil {
		return fmt.Errorf("deactivating modes: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE home_modes SET is_active = 1, last_activated = ? WHERE mode = ?",
		FormatTimestamp(time.Now()), string(mode))
	if err != nil {
		return fmt.Errorf("activating mode: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing mode change: %w", err)
	}
	return nil
}

// Stats computes aggregate counts from current store contents.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM devices", &stats.TotalDevices},
		{"SELECT COUNT(*) FROM devices WHERE type = 'light'", &stats.LightsTotal},
		{"SELECT COUNT(*) FROM devices WHERE type = 'light' AND state = 'on'", &stats.LightsOn},
		{"SELECT COUNT(*) FROM devices WHERE type = 'lock'", &stats.LocksTotal},
		{"SELECT COUNT(*) FROM devices WHERE type = 'lock' AND state = 'locked'", &stats.LocksLocked},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting devices: %w", err)
		}
	}

	var garageState string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM devices WHERE type = 'garage'").Scan(&garageState)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying garage state: %w", err)
	}
	stats.GarageOpen = garageState == "open"

	mode, ok, err := s.ActiveMode(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		stats.ActiveMode = string(mode)
	}

	return stats, nil
}

// LastChanged returns the maximum last_updated across all devices.
//
// The raw stored string is returned rather than a parsed time: the
// notifier only compares it against the previous tick's value, and the
// fixed-width format makes string comparison sufficient.
func (s *SQLiteStore) LastChanged(ctx context.Context) (string, bool, error) {
	var ts sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(last_updated) FROM devices").Scan(&ts)
	if err != nil {
		return "", false, fmt.Errorf("querying last changed: %w", err)
	}
	if !ts.Valid {
		return "", false, nil
	}
	return ts.String, true, nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a device row from the standard column order.
func scanDevice(row scanner) (*Device, error) {
	var d Device
	var room sql.NullString
	var propsJSON sql.NullString
	var lastUpdated string

	if err := row.Scan(&d.ID, (*string)(&d.Type), &room, &d.State, &propsJSON, &lastUpdated); err != nil {
		return nil, err
	}

	if room.Valid {
		d.Room = &room.String
	}

	d.Properties = map[string]any{}
	if propsJSON.Valid && propsJSON.String != "" {
		if err := json.Unmarshal([]byte(propsJSON.String), &d.Properties); err != nil {
			// Corrupt properties degrade to empty rather than failing the read
			d.Properties = map[string]any{}
		}
	}

	ts, err := ParseTimestamp(lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("parsing last_updated %q: %w", lastUpdated, err)
	}
	d.LastUpdated = ts

	return &d, nil
}
