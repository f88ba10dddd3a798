package control

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/event"
)

// recordingSink captures emitted change signals for assertions.
type recordingSink struct {
	signals []Signal
}

func (r *recordingSink) DeviceChanged(sig Signal) {
	r.signals = append(r.signals, sig)
}

// setupController builds a controller over a seeded in-memory store.
func setupController(t *testing.T) (*Controller, device.Store, event.Repository, *recordingSink) {
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

	store := device.NewSQLiteStore(db)
	events := event.NewSQLiteRepository(db)
	sink := &recordingSink{}
	return New(store, events, nil, sink), store, events, sink
}

func intPtr(v int) *int { return &v }

func modePtr(s string) *string { return &s }

func TestApply_BrightnessClamping(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	outcomes, err := ctrl.Apply(ctx, Request{
		Action:   ActionSet,
		DeviceID: "living_room_light_main",
		Params:   Params{Brightness: intPtr(150)},
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(outcomes) != 1 || !outcomes[0].Changed {
		t.Fatalf("outcomes = %+v, want one changed", outcomes)
	}

	d, err := store.Get(ctx, "living_room_light_main")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.State != "on" {
		t.Errorf("State = %q, want on", d.State)
	}
	if d.Properties["brightness"] != float64(100) {
		t.Errorf("brightness = %v, want clamped to 100", d.Properties["brightness"])
	}
}

func TestApply_LightOnDefaultsBrightness(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	// Seeded brightness is 0, so plain "on" defaults to 100
	if _, err := ctrl.Apply(ctx, Request{Action: ActionOn, DeviceID: "bedroom_light"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	d, _ := store.Get(ctx, "bedroom_light")
	if d.State != "on" || d.Properties["brightness"] != float64(100) {
		t.Errorf("after on: state=%q brightness=%v, want on/100", d.State, d.Properties["brightness"])
	}

	// "off" zeroes brightness, restoring the original record
	if _, err := ctrl.Apply(ctx, Request{Action: ActionOff, DeviceID: "bedroom_light"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	d, _ = store.Get(ctx, "bedroom_light")
	if d.State != "off" || d.Properties["brightness"] != float64(0) {
		t.Errorf("after off: state=%q brightness=%v, want off/0", d.State, d.Properties["brightness"])
	}
}

func TestApply_LockToggle(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	// Seeded state is locked
	outcomes, err := ctrl.Apply(ctx, Request{Action: ActionToggle, DeviceID: "front_door_lock"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if outcomes[0].NewState != "unlocked" {
		t.Errorf("first toggle = %q, want unlocked", outcomes[0].NewState)
	}

	outcomes, err = ctrl.Apply(ctx, Request{Action: ActionToggle, DeviceID: "front_door_lock"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if outcomes[0].NewState != "locked" {
		t.Errorf("second toggle = %q, want locked", outcomes[0].NewState)
	}

	d, _ := store.Get(ctx, "front_door_lock")
	if d.State != "locked" {
		t.Errorf("final state = %q, want locked", d.State)
	}
}

func TestApply_Idempotence(t *testing.T) {
	ctrl, _, events, sink := setupController(t)
	ctx := context.Background()

	req := Request{
		Action:   ActionSet,
		DeviceID: "kitchen_light_main",
		Params:   Params{Brightness: intPtr(60)},
	}

	outcomes, err := ctrl.Apply(ctx, req)
	if err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	if !outcomes[0].Changed {
		t.Fatal("first apply should change the device")
	}

	// Identical request again: no write, no event, no signal
	outcomes, err = ctrl.Apply(ctx, req)
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if outcomes[0].Changed {
		t.Error("second apply reported a change, want no-op")
	}

	result, err := events.List(ctx, event.Filter{DeviceID: "kitchen_light_main"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("event count = %d, want exactly 1", result.Total)
	}
	if len(sink.signals) != 1 {
		t.Errorf("signal count = %d, want exactly 1", len(sink.signals))
	}
}

func TestApply_IncompatibleActionIsSilentNoOp(t *testing.T) {
	ctrl, _, _, sink := setupController(t)
	ctx := context.Background()

	// "lock" against every living room device: only a hypothetical lock
	// would respond, the rest are silent no-ops, never errors
	outcomes, err := ctrl.Apply(ctx, Request{Action: ActionLock, Room: "living_room"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	for _, o := range outcomes {
		if o.Changed {
			t.Errorf("device %s changed on incompatible action", o.DeviceID)
		}
	}
	if len(sink.signals) != 0 {
		t.Errorf("signals = %d, want 0", len(sink.signals))
	}
}

func TestApply_RoomTypeFilter(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	outcomes, err := ctrl.Apply(ctx, Request{
		Action:     ActionOn,
		Room:       "kitchen",
		DeviceType: device.TypeLight,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2 kitchen lights", len(outcomes))
	}

	for _, id := range []string{"kitchen_light_main", "kitchen_light_under_cabinet"} {
		d, _ := store.Get(ctx, id)
		if d.State != "on" {
			t.Errorf("%s state = %q, want on", id, d.State)
		}
	}
}

func TestApply_ZeroMatchesIsEmptyResult(t *testing.T) {
	ctrl, _, _, _ := setupController(t)

	outcomes, err := ctrl.Apply(context.Background(), Request{
		Action: ActionOn,
		Room:   "attic",
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(outcomes))
	}
}

func TestApply_UnknownDevice(t *testing.T) {
	ctrl, _, _, _ := setupController(t)

	_, err := ctrl.Apply(context.Background(), Request{Action: ActionOn, DeviceID: "nonexistent"})
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Apply() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestApply_BlindsPosition(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	// Explicit position on close overrides the default and re-derives state
	if _, err := ctrl.Apply(ctx, Request{
		Action:   ActionSet,
		DeviceID: "living_room_blinds",
		Params:   Params{Position: intPtr(0)},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	d, _ := store.Get(ctx, "living_room_blinds")
	if d.State != "closed" || d.Properties["position"] != float64(0) {
		t.Errorf("blinds = %q/%v, want closed/0", d.State, d.Properties["position"])
	}

	// Close action stores the valid "closed" state, not the verb
	if _, err := ctrl.Apply(ctx, Request{Action: ActionOpen, DeviceID: "living_room_blinds"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := ctrl.Apply(ctx, Request{Action: ActionClose, DeviceID: "living_room_blinds"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	d, _ = store.Get(ctx, "living_room_blinds")
	if d.State != "closed" {
		t.Errorf("blinds state = %q, want closed", d.State)
	}
}

func TestApply_FanSpeed(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		speed     int
		wantSpeed float64
		wantState string
	}{
		{"speed derives on", 2, 2, "on"},
		{"speed clamps high", 9, 3, "on"},
		{"zero speed derives off", 0, 0, "off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ctrl.Apply(ctx, Request{
				Action:   ActionSet,
				DeviceID: "bedroom_fan",
				Params:   Params{Speed: intPtr(tt.speed)},
			}); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}

			d, _ := store.Get(ctx, "bedroom_fan")
			if d.State != tt.wantState || d.Properties["speed"] != tt.wantSpeed {
				t.Errorf("fan = %q/%v, want %q/%v",
					d.State, d.Properties["speed"], tt.wantState, tt.wantSpeed)
			}
		})
	}
}

func TestApply_ThermostatSet(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	// Target temp alone changes properties but not state
	if _, err := ctrl.Apply(ctx, Request{
		Action:   ActionSet,
		DeviceID: "thermostat_main",
		Params:   Params{TargetTemp: intPtr(68)},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	d, _ := store.Get(ctx, "thermostat_main")
	if d.State != "auto" || d.Properties["target_temp"] != float64(68) {
		t.Errorf("thermostat = %q/%v, want auto/68", d.State, d.Properties["target_temp"])
	}

	// Mode becomes both a property and the new state
	if _, err := ctrl.Apply(ctx, Request{
		Action:   ActionSet,
		DeviceID: "thermostat_main",
		Params:   Params{Mode: modePtr("heat")},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	d, _ = store.Get(ctx, "thermostat_main")
	if d.State != "heat" || d.Properties["mode"] != "heat" {
		t.Errorf("thermostat = %q/%v, want heat/heat", d.State, d.Properties["mode"])
	}
}

func TestFeedFish(t *testing.T) {
	ctrl, store, events, sink := setupController(t)
	ctx := context.Background()

	outcome, err := ctrl.FeedFish(ctx)
	if err != nil {
		t.Fatalf("FeedFish() error = %v", err)
	}
	if !outcome.Changed || outcome.NewState != "idle" {
		t.Errorf("outcome = %+v, want changed settling to idle", outcome)
	}

	d, _ := store.Get(ctx, "fish_feeder")
	if d.State != "idle" {
		t.Errorf("feeder state = %q, want idle", d.State)
	}
	if d.Properties["last_fed"] == nil {
		t.Error("last_fed was not stamped")
	}

	result, err := events.List(ctx, event.Filter{Type: event.TypeFishFeeding})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("feeding events = %d, want 1", result.Total)
	}

	// Sinks see the feeding pulse and then the settle; the last signal
	// must match the stored state.
	if len(sink.signals) != 2 {
		t.Fatalf("signals emitted = %d, want 2 (feeding then idle)", len(sink.signals))
	}
	if sink.signals[0].State != "feeding" {
		t.Errorf("first signal state = %q, want feeding", sink.signals[0].State)
	}
	if last := sink.signals[len(sink.signals)-1]; last.State != d.State {
		t.Errorf("last signal state = %q, want stored state %q", last.State, d.State)
	}
}

func TestWaterPlants(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	t.Run("single zone", func(t *testing.T) {
		outcomes, err := ctrl.WaterPlants(ctx, "front_yard", 10)
		if err != nil {
			t.Fatalf("WaterPlants() error = %v", err)
		}
		if len(outcomes) != 1 || outcomes[0].DeviceID != "front_yard_sprinkler" {
			t.Fatalf("outcomes = %+v, want front_yard_sprinkler only", outcomes)
		}

		d, _ := store.Get(ctx, "front_yard_sprinkler")
		if d.State != "on" || d.Properties["duration"] != float64(10) {
			t.Errorf("sprinkler = %q/%v, want on/10", d.State, d.Properties["duration"])
		}

		back, _ := store.Get(ctx, "back_yard_sprinkler")
		if back.State != "off" {
			t.Errorf("back yard sprinkler = %q, want untouched off", back.State)
		}
	})

	t.Run("all zones", func(t *testing.T) {
		outcomes, err := ctrl.WaterPlants(ctx, "", 20)
		if err != nil {
			t.Fatalf("WaterPlants() error = %v", err)
		}
		if len(outcomes) != 2 {
			t.Errorf("outcomes = %d, want both sprinklers", len(outcomes))
		}
	})
}

func TestEVCharging(t *testing.T) {
	ctrl, store, _, _ := setupController(t)
	ctx := context.Background()

	outcome, err := ctrl.StartEVCharging(ctx)
	if err != nil {
		t.Fatalf("StartEVCharging() error = %v", err)
	}
	if !outcome.Changed || outcome.NewState != "charging" {
		t.Errorf("outcome = %+v, want charging", outcome)
	}

	d, _ := store.Get(ctx, "ev_charger")
	if d.Properties["charging"] != true {
		t.Errorf("charging property = %v, want true", d.Properties["charging"])
	}

	// Starting again is an unchanged outcome
	outcome, err = ctrl.StartEVCharging(ctx)
	if err != nil {
		t.Fatalf("second StartEVCharging() error = %v", err)
	}
	if outcome.Changed {
		t.Error("second start reported a change")
	}

	outcome, err = ctrl.StopEVCharging(ctx)
	if err != nil {
		t.Fatalf("StopEVCharging() error = %v", err)
	}
	if !outcome.Changed || outcome.NewState != "idle" {
		t.Errorf("stop outcome = %+v, want idle", outcome)
	}
}

func TestApply_SignalCarriesDeviceContext(t *testing.T) {
	ctrl, _, _, sink := setupController(t)
	ctx := context.Background()

	if _, err := ctrl.Apply(ctx, Request{Action: ActionOn, DeviceID: "living_room_light_main"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(sink.signals))
	}
	sig := sink.signals[0]
	if sig.DeviceID != "living_room_light_main" || sig.Type != device.TypeLight {
		t.Errorf("signal = %+v, want light device context", sig)
	}
	if sig.Room == nil || *sig.Room != "living_room" {
		t.Errorf("signal room = %v, want living_room", sig.Room)
	}
	if sig.State != "on" {
		t.Errorf("signal state = %q, want on", sig.State)
	}
}
