package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// seedDevice is one bootstrap fleet entry.
type seedDevice struct {
	ID         string
	Type       DeviceType
	Room       string // empty means roomless (NULL)
	State      string
	Properties map[string]any
}

// seedFleet is the initial device fleet, created once on an empty store.
// Devices are never added or removed after bootstrap; they are only
// mutated through the control surface and the mode engine.
var seedFleet = []seedDevice{
	// Living room
	{"living_room_light_main", TypeLight, "living_room", "off",
		map[string]any{"brightness": float64(0), "color_temp": float64(3000)}},
	{"living_room_light_accent", TypeLight, "living_room", "off",
		map[string]any{"brightness": float64(0), "color_temp": float64(2700)}},
	{"living_room_temp", TypeTemperatureSensor, "living_room", "active",
		map[string]any{"value": float64(72), "unit": "F"}},
	{"living_room_motion", TypeMotionSensor, "living_room", "no_motion",
		map[string]any{"last_motion": nil}},
	{"living_room_blinds", TypeBlinds, "living_room", "open",
		map[string]any{"position": float64(100)}},
	{"fish_feeder", TypeFishFeeder, "living_room", "idle",
		map[string]any{"last_fed": nil}},

	// Bedroom
	{"bedroom_light", TypeLight, "bedroom", "off",
		map[string]any{"brightness": float64(0), "color_temp": float64(2700)}},
	{"bedroom_temp", TypeTemperatureSensor, "bedroom", "active",
		map[string]any{"value": float64(70), "unit": "F"}},
	{"bedroom_motion", TypeMotionSensor, "bedroom", "no_motion",
		map[string]any{"last_motion": nil}},
	{"bedroom_blinds", TypeBlinds, "bedroom", "closed",
		map[string]any{"position": float64(0)}},
	{"bedroom_fan", TypeFan, "bedroom", "off",
		map[string]any{"speed": float64(0)}},

	// Kitchen
	{"kitchen_light_main", TypeLight, "kitchen", "off",
		map[string]any{"brightness": float64(0), "color_temp": float64(4000)}},
	{"kitchen_light_under_cabinet", TypeLight, "kitchen", "off",
		map[string]any{"brightness": float64(0), "color_temp": float64(3500)}},
	{"kitchen_temp", TypeTemperatureSensor, "kitchen", "active",
		map[string]any{"value": float64(73), "unit": "F"}},
	{"kitchen_exhaust", TypeFan, "kitchen", "off",
		map[string]any{"speed": float64(0)}},

	// Bathroom
	{"bathroom_light", TypeLight, "bathroom", "off",
		map[string]any{"brightness": float64(0), "color_temp": float64(4000)}},
	{"bathroom_exhaust", TypeFan, "bathroom", "off",
		map[string]any{"speed": float64(0)}},

	// Climate
	{"thermostat_main", TypeThermostat, "", "auto",
		map[string]any{"target_temp": float64(72), "current_temp": float64(71), "mode": "auto"}},

	// Security
	{"front_door_lock", TypeLock, "", "locked", map[string]any{}},
	{"back_door_lock", TypeLock, "", "locked", map[string]any{}},
	{"garage_door", TypeGarage, "", "closed", map[string]any{}},

	// Outdoor
	{"front_yard_sprinkler", TypeSprinkler, "outdoor", "off",
		map[string]any{"zone": "front_yard", "duration": float64(15)}},
	{"back_yard_sprinkler", TypeSprinkler, "outdoor", "off",
		map[string]any{"zone": "back_yard", "duration": float64(15)}},
	{"ev_charger", TypeEVCharger, "outdoor", "idle",
		map[string]any{"battery_level": float64(85), "charging": false}},
}

// Seed inserts the bootstrap fleet if the devices table is empty.
// It returns the number of devices inserted (0 if the table already
// held devices).
func Seed(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := FormatTimestamp(time.Now())
	for _, d := range seedFleet {
		propsJSON, err := json.Marshal(d.Properties)
		if err != nil {
			return 0, fmt.Errorf("marshalling properties for %s: %w", d.ID, err)
		}

		var room any
		if d.Room != "" {
			room = d.Room
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO devices (id, type, room, state, properties, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, string(d.Type), room, d.State, string(propsJSON), now,
		); err != nil {
			return 0, fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing seed: %w", err)
	}
	return len(seedFleet), nil
}
