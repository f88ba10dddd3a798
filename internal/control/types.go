package control

import "github.com/hearth-home/hearth/internal/device"

// Action is a control verb applied to one or more devices.
type Action string

// Action constants.
const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
	ActionSet    Action = "set"
	ActionToggle Action = "toggle"
)

// IsValid reports whether a is a recognised action.
func (a Action) IsValid() bool {
	switch a {
	case ActionOn, ActionOff, ActionOpen, ActionClose,
		ActionLock, ActionUnlock, ActionSet, ActionToggle:
		return true
	}
	return false
}

// Params carries the optional typed parameters of a control request.
// Nil pointers mean "not supplied".
type Params struct {
	// Brightness is a light level, clamped to [0,100].
	Brightness *int `json:"brightness,omitempty"`
	// Position is a blinds position, clamped to [0,100].
	Position *int `json:"position,omitempty"`
	// Speed is a fan speed, clamped to [0,3].
	Speed *int `json:"speed,omitempty"`
	// TargetTemp is a thermostat target temperature.
	TargetTemp *int `json:"target_temp,omitempty"`
	// Mode is a thermostat mode (heat, cool, auto, off).
	Mode *string `json:"mode,omitempty"`
}

// Request targets devices either by exact ID or by room/type filter.
// A filter matching zero devices is an empty result, not an error.
type Request struct {
	Action     Action            `json:"action"`
	DeviceID   string            `json:"device_id,omitempty"`
	Room       string            `json:"room,omitempty"`
	DeviceType device.DeviceType `json:"device_type,omitempty"`
	Params
}

// Outcome describes what happened to one matched device.
type Outcome struct {
	DeviceID string `json:"device_id"`
	Changed  bool   `json:"changed"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
	// Summary is a human-readable line for assistant and CLI callers.
	Summary string `json:"summary"`
}

// Signal is the internal change notification emitted for every device
// that actually changed. Consumed by the external feeds (MQTT state
// topics, telemetry); viewer consistency relies on the change notifier's
// polling, not on these signals.
type Signal struct {
	DeviceID   string            `json:"device_id"`
	Type       device.DeviceType `json:"type"`
	Room       *string           `json:"room,omitempty"`
	State      string            `json:"state"`
	Properties map[string]any    `json:"properties"`
}

// SignalSink receives change signals. Implementations must not block;
// slow consumers are expected to buffer or drop internally.
type SignalSink interface {
	DeviceChanged(sig Signal)
}

// Logger is the minimal logging interface the controller needs.
// It matches the logging package's slog-style methods.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is supplied.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
