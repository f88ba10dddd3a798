package homemode

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hearth-home/hearth/internal/control"
	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/event"
)

func setupEngine(t *testing.T) (*Engine, device.Store, event.Repository) {
	t.Helper()

	store, events := seededStore(t)
	ctrl := control.New(store, events, nil)
	return New(store, ctrl, events, nil), store, events
}

func seededStore(t *testing.T) (device.Store, event.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			room TEXT,
			state TEXT NOT NULL,
			properties TEXT NOT NULL DEFAULT '{}',
			last_updated TEXT NOT NULL
		) STRICT;
		CREATE TABLE home_modes (
			mode TEXT PRIMARY KEY,
			is_active INTEGER NOT NULL DEFAULT 0,
			last_activated TEXT
		) STRICT;
		INSERT INTO home_modes (mode, is_active) VALUES
			('home', 0), ('away', 0), ('sleep', 0), ('vacation', 0);
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
		t.Fatalf("failed to create test schema: %v", err)
	}
	if _, err := device.Seed(context.Background(), db); err != nil {
		t.Fatalf("failed to seed devices: %v", err)
	}

	return device.NewSQLiteStore(db), event.NewSQLiteRepository(db)
}

// failingStore wraps a Store and fails writes to one device ID.
type failingStore struct {
	device.Store
	failID string
}

var errInjected = errors.New("injected write failure")

func (f *failingStore) Write(ctx context.Context, id string, state *string, props map[string]any) error {
	if id == f.failID {
		return errInjected
	}
	return f.Store.Write(ctx, id, state, props)
}

func TestActivate_Home(t *testing.T) {
	engine, store, _ := setupEngine(t)
	ctx := context.Background()

	result, err := engine.Activate(ctx, device.ModeHome)
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}

	// Main lights on at 75%
	for _, id := range []string{"living_room_light_main", "kitchen_light_main"} {
		d, _ := store.Get(ctx, id)
		if d.State != "on" || d.Properties["brightness"] != float64(75) {
			t.Errorf("%s = %q/%v, want on/75", id, d.State, d.Properties["brightness"])
		}
	}

	// Non-main lights untouched
	d, _ := store.Get(ctx, "bedroom_light")
	if d.State != "off" {
		t.Errorf("bedroom_light = %q, want untouched off", d.State)
	}

	// Thermostat to 72 auto
	th, _ := store.Get(ctx, "thermostat_main")
	if th.State != "auto" || th.Properties["target_temp"] != float64(72) {
		t.Errorf("thermostat = %q/%v, want auto/72", th.State, th.Properties["target_temp"])
	}

	mode, ok, err := engine.Active(ctx)
	if err != nil || !ok || mode != device.ModeHome {
		t.Errorf("Active() = %q/%v/%v, want home", mode, ok, err)
	}
}

func TestActivate_VacationClosesGarage(t *testing.T) {
	engine, store, _ := setupEngine(t)
	ctx := context.Background()

	// Open the garage first
	open := "open"
	if err := store.Write(ctx, "garage_door", &open, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := engine.Activate(ctx, device.ModeVacation); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	d, _ := store.Get(ctx, "garage_door")
	if d.State != "closed" {
		t.Errorf("garage = %q, want closed", d.State)
	}

	th, _ := store.Get(ctx, "thermostat_main")
	if th.Properties["target_temp"] != float64(60) {
		t.Errorf("thermostat target = %v, want 60", th.Properties["target_temp"])
	}

	mode, ok, _ := engine.Active(ctx)
	if !ok || mode != device.ModeVacation {
		t.Errorf("Active() = %q, want vacation", mode)
	}
}

func TestActivate_SleepDimsBedroom(t *testing.T) {
	engine, store, _ := setupEngine(t)
	ctx := context.Background()

	// Light up the house first so sleep has something to turn off
	on := "on"
	if err := store.Write(ctx, "kitchen_light_main", &on,
		map[string]any{"brightness": float64(100), "color_temp": float64(4000)}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	unlocked := "unlocked"
	if err := store.Write(ctx, "front_door_lock", &unlocked, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := engine.Activate(ctx, device.ModeSleep); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	bedroom, _ := store.Get(ctx, "bedroom_light")
	if bedroom.State != "on" || bedroom.Properties["brightness"] != float64(20) {
		t.Errorf("bedroom_light = %q/%v, want on/20", bedroom.State, bedroom.Properties["brightness"])
	}

	kitchen, _ := store.Get(ctx, "kitchen_light_main")
	if kitchen.State != "off" || kitchen.Properties["brightness"] != float64(0) {
		t.Errorf("kitchen_light_main = %q/%v, want off/0", kitchen.State, kitchen.Properties["brightness"])
	}

	lock, _ := store.Get(ctx, "front_door_lock")
	if lock.State != "locked" {
		t.Errorf("front_door_lock = %q, want locked", lock.State)
	}

	th, _ := store.Get(ctx, "thermostat_main")
	if th.Properties["target_temp"] != float64(68) {
		t.Errorf("thermostat target = %v, want 68", th.Properties["target_temp"])
	}
}

func TestActivate_BestEffortOnWriteFailure(t *testing.T) {
	store, events := seededStore(t)
	failing := &failingStore{Store: store, failID: "kitchen_light_main"}
	ctrl := control.New(failing, events, nil)
	engine := New(failing, ctrl, events, nil)
	ctx := context.Background()

	result, err := engine.Activate(ctx, device.ModeHome)
	if err != nil {
		t.Fatalf("Activate() error = %v, want nil despite device failure", err)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}

	// The other main light was still applied
	d, _ := store.Get(ctx, "living_room_light_main")
	if d.State != "on" {
		t.Errorf("living_room_light_main = %q, want on despite sibling failure", d.State)
	}

	// And the mode was still activated
	mode, ok, _ := engine.Active(ctx)
	if !ok || mode != device.ModeHome {
		t.Errorf("Active() = %q/%v, want home activated", mode, ok)
	}
}

func TestActivate_Exclusivity(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	for _, mode := range []device.Mode{device.ModeHome, device.ModeAway, device.ModeVacation, device.ModeSleep} {
		if _, err := engine.Activate(ctx, mode); err != nil {
			t.Fatalf("Activate(%s) error = %v", mode, err)
		}
	}

	mode, ok, err := engine.Active(ctx)
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if !ok || mode != device.ModeSleep {
		t.Errorf("Active() = %q, want most recent sleep", mode)
	}
}

func TestActivate_Reactivation(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	first, err := engine.Activate(ctx, device.ModeAway)
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if first.Applied == 0 {
		t.Fatal("first activation applied nothing")
	}

	// All rules are already satisfied, so nothing gets rewritten
	second, err := engine.Activate(ctx, device.ModeAway)
	if err != nil {
		t.Fatalf("second Activate() error = %v", err)
	}
	if second.Applied != 0 {
		t.Errorf("second activation applied %d devices, want 0", second.Applied)
	}
}

func TestActivate_Events(t *testing.T) {
	engine, _, events := setupEngine(t)
	ctx := context.Background()

	result, err := engine.Activate(ctx, device.ModeAway)
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	summary, err := events.List(ctx, event.Filter{Type: event.TypeModeChange})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if summary.Total != 1 {
		t.Fatalf("mode_change events = %d, want 1", summary.Total)
	}
	if summary.Events[0].Action != "away" {
		t.Errorf("summary action = %q, want away", summary.Events[0].Action)
	}
	if count, ok := summary.Events[0].Metadata["actions_count"].(float64); !ok || int(count) != result.Applied {
		t.Errorf("actions_count = %v, want %d", summary.Events[0].Metadata["actions_count"], result.Applied)
	}

	perDevice, err := events.List(ctx, event.Filter{Type: event.TypeDeviceControl})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if perDevice.Total != result.Applied {
		t.Errorf("device_control events = %d, want %d", perDevice.Total, result.Applied)
	}
}

func TestActivate_InvalidMode(t *testing.T) {
	engine, _, _ := setupEngine(t)

	_, err := engine.Activate(context.Background(), device.Mode("party"))
	if !errors.Is(err, device.ErrInvalidMode) {
		t.Errorf("Activate(party) error = %v, want ErrInvalidMode", err)
	}
}

func TestActive_NeverActivated(t *testing.T) {
	engine, _, _ := setupEngine(t)

	_, ok, err := engine.Active(context.Background())
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if ok {
		t.Error("Active() ok = true on fresh store, want false")
	}
}
