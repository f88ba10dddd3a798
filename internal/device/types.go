package device

import "time"

// TimestampLayout is the storage format for all device timestamps.
//
// It is a fixed-width UTC form of RFC 3339 with nanoseconds, so that
// lexical comparison of stored values matches chronological order and
// SQL MAX(last_updated) returns the newest write. time.RFC3339Nano
// trims trailing zeros and cannot guarantee that.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in the canonical storage format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp value.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// Device represents a single simulated smart-home unit.
//
// State is constrained to the subset valid for Type; the constraint is
// enforced by the transition code that produces new states, not by the
// store.
type Device struct {
	ID          string         `json:"id"`
	Type        DeviceType     `json:"type"`
	Room        *string        `json:"room"`
	State       string         `json:"state"`
	Properties  map[string]any `json:"properties"`
	LastUpdated time.Time      `json:"last_updated"`
}

// DeepCopy creates a complete independent copy of the Device.
// The properties map is cloned so modifications to the copy do not
// affect the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Properties = deepCopyMap(d.Properties)
	if d.Room != nil {
		room := *d.Room
		cpy.Room = &room
	}
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, float64, nil) are safe to copy by value
		return v
	}
}

// DeviceType represents the kind of device.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// Device type constants.
const (
	TypeLight             DeviceType = "light"
	TypeFan               DeviceType = "fan"
	TypeBlinds            DeviceType = "blinds"
	TypeThermostat        DeviceType = "thermostat"
	TypeLock              DeviceType = "lock"
	TypeGarage            DeviceType = "garage"
	TypeTemperatureSensor DeviceType = "temperature_sensor"
	TypeMotionSensor      DeviceType = "motion_sensor"
	TypeSprinkler         DeviceType = "sprinkler"
	TypeEVCharger         DeviceType = "ev_charger"
	TypeFishFeeder        DeviceType = "fish_feeder"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		TypeLight, TypeFan, TypeBlinds, TypeThermostat, TypeLock,
		TypeGarage, TypeTemperatureSensor, TypeMotionSensor,
		TypeSprinkler, TypeEVCharger, TypeFishFeeder,
	}
}

// validStates maps each device type to the states it may occupy.
var validStates = map[DeviceType][]string{
	TypeLight:             {"on", "off"},
	TypeFan:               {"on", "off"},
	TypeBlinds:            {"open", "closed"},
	TypeThermostat:        {"auto", "heat", "cool", "off"},
	TypeLock:              {"locked", "unlocked"},
	TypeGarage:            {"open", "closed"},
	TypeTemperatureSensor: {"active", "inactive"},
	TypeMotionSensor:      {"motion", "no_motion"},
	TypeSprinkler:         {"on", "off"},
	TypeEVCharger:         {"charging", "idle", "on", "off"},
	TypeFishFeeder:        {"feeding", "idle"},
}

// IsValid reports whether t is a recognised device type.
func (t DeviceType) IsValid() bool {
	_, ok := validStates[t]
	return ok
}

// ValidState reports whether state is a member of the subset valid for t.
func (t DeviceType) ValidState(state string) bool {
	for _, s := range validStates[t] {
		if s == state {
			return true
		}
	}
	return false
}

// Mode represents a home mode.
type Mode string

// Home mode constants. Exactly one mode may be active at any time.
const (
	ModeHome     Mode = "home"
	ModeAway     Mode = "away"
	ModeSleep    Mode = "sleep"
	ModeVacation Mode = "vacation"
)

// AllModes returns all valid home mode values.
func AllModes() []Mode {
	return []Mode{ModeHome, ModeAway, ModeSleep, ModeVacation}
}

// IsValid reports whether m is a recognised home mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeHome, ModeAway, ModeSleep, ModeVacation:
		return true
	}
	return false
}

// Filter controls which devices List returns. Zero values match everything.
type Filter struct {
	Room string
	Type DeviceType
}

// Stats aggregates current store contents for the dashboard summary.
// Always computed fresh, never cached.
type Stats struct {
	TotalDevices int    `json:"total_devices"`
	LightsOn     int    `json:"lights_on"`
	LightsTotal  int    `json:"lights_total"`
	LocksLocked  int    `json:"locks_locked"`
	LocksTotal   int    `json:"locks_total"`
	GarageOpen   bool   `json:"garage_open"`
	ActiveMode   string `json:"active_mode,omitempty"`
}
