package event

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			device_id TEXT,
			action TEXT,
			metadata TEXT,
			timestamp TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteRepository_Append(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	e := &Event{
		Type:     TypeDeviceControl,
		DeviceID: "bedroom_light",
		Action:   "on",
		Metadata: map[string]any{"new_state": "on"},
	}

	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if e.ID == "" {
		t.Error("Append() did not generate an ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("Append() did not stamp a timestamp")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}

	got := result.Events[0]
	if got.ID != e.ID || got.Type != TypeDeviceControl || got.DeviceID != "bedroom_light" {
		t.Errorf("listed event = %+v, want appended event", got)
	}
	if got.Metadata["new_state"] != "on" {
		t.Errorf("metadata = %v, want new_state=on", got.Metadata)
	}
}

func TestSQLiteRepository_AppendMinimal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Mode-change events carry no device ID
	e := &Event{Type: TypeModeChange, Action: "away"}
	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{Type: TypeModeChange})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}
	got := result.Events[0]
	if got.DeviceID != "" || got.Metadata != nil {
		t.Errorf("minimal event = %+v, want empty device/metadata", got)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []Event{
		{Type: TypeDeviceControl, DeviceID: "bedroom_light", Action: "on", Timestamp: base},
		{Type: TypeDeviceControl, DeviceID: "kitchen_light_main", Action: "off", Timestamp: base.Add(time.Second)},
		{Type: TypeModeChange, Action: "sleep", Timestamp: base.Add(2 * time.Second)},
		{Type: TypeDeviceControl, DeviceID: "bedroom_light", Action: "off", Timestamp: base.Add(3 * time.Second)},
	}
	for i := range seed {
		if err := repo.Append(ctx, &seed[i]); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	t.Run("most recent first", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 4 {
			t.Fatalf("Total = %d, want 4", result.Total)
		}
		if result.Events[0].Action != "off" || result.Events[0].DeviceID != "bedroom_light" {
			t.Errorf("first event = %+v, want most recent", result.Events[0])
		}
	})

	t.Run("filter by type", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Type: TypeModeChange})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 1 || result.Events[0].Action != "sleep" {
			t.Errorf("List(mode_change) = %+v, want one sleep event", result.Events)
		}
	})

	t.Run("filter by device", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{DeviceID: "bedroom_light"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2", result.Total)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 4 || len(result.Events) != 2 {
			t.Errorf("paginated list = total %d len %d, want 4 and 2", result.Total, len(result.Events))
		}
	})

	t.Run("no matches is empty not nil", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Type: "unknown"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Events == nil {
			t.Error("Events = nil, want empty slice")
		}
	})
}
