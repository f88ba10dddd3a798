// Package homemode implements the rule-driven home-mode engine.
//
// A mode (home, away, sleep, vacation) is a named global policy: on
// activation a fixed rule table computes a deterministic batch of device
// mutations, written through the control surface's commit path so each
// change carries its own audit event and change signal. The batch is
// best-effort: a failed device write is logged and counted, the rest of
// the batch proceeds, and the mode is still activated afterwards.
package homemode

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hearth-home/hearth/internal/control"
	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/event"
)

// Logger is the minimal logging interface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ModeSink receives the mode-change signal emitted once per activation,
// distinct from the per-device signals. The MQTT feed uses it to publish
// the retained mode topic; viewers get the change through the notifier's
// active-mode delta.
type ModeSink interface {
	ModeChanged(mode device.Mode)
}

// Result summarises one mode activation.
type Result struct {
	Mode    device.Mode `json:"mode"`
	Applied int         `json:"applied"`
	Failed  int         `json:"failed"`
	Actions []string    `json:"actions"`
}

// Engine activates home modes against the device store.
type Engine struct {
	store  device.Store
	ctrl   *control.Controller
	events event.Repository
	logger Logger
	sinks  []ModeSink
}

// New creates an Engine. logger may be nil; sinks are optional.
func New(store device.Store, ctrl *control.Controller, events event.Repository, logger Logger, sinks ...ModeSink) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		store:  store,
		ctrl:   ctrl,
		events: events,
		logger: logger,
		sinks:  sinks,
	}
}

// Activate applies mode's rule table to the full device list, then
// activates the mode.
//
// The device batch is best-effort: a failed write is logged, counted in
// the result, and the batch continues. Only a failure to activate the
// mode itself is returned as an error; the devices already written stay
// written.
func (e *Engine) Activate(ctx context.Context, mode device.Mode) (*Result, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", device.ErrInvalidMode, mode)
	}

	devices, err := e.store.List(ctx, device.Filter{})
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	result := &Result{Mode: mode}
	for i := range devices {
		d := &devices[i]

		ch := ruleFor(mode, d)
		if ch == nil || unchanged(d, ch) {
			continue
		}

		evt := &event.Event{
			Type:     event.TypeDeviceControl,
			DeviceID: d.ID,
			Action:   "mode_apply",
			Metadata: map[string]any{"mode": string(mode)},
		}
		if err := e.ctrl.WriteDevice(ctx, d, ch.State, ch.Properties, evt); err != nil {
			e.logger.Error("mode device write failed",
				"mode", mode, "device_id", d.ID, "error", err)
			result.Failed++
			continue
		}

		result.Applied++
		result.Actions = append(result.Actions, describeChange(d, ch))
	}

	if err := e.store.SetActiveMode(ctx, mode); err != nil {
		return result, fmt.Errorf("activating mode %s: %w", mode, err)
	}

	if err := e.events.Append(ctx, &event.Event{
		Type:     event.TypeModeChange,
		Action:   string(mode),
		Metadata: map[string]any{"actions_count": result.Applied},
	}); err != nil {
		e.logger.Warn("mode event append failed", "mode", mode, "error", err)
	}

	for _, sink := range e.sinks {
		sink.ModeChanged(mode)
	}

	e.logger.Info("home mode activated",
		"mode", mode, "applied", result.Applied, "failed", result.Failed)
	return result, nil
}

// Active returns the currently active mode. ok is false when no mode
// has ever been activated. Querying never mutates state.
func (e *Engine) Active(ctx context.Context) (device.Mode, bool, error) {
	return e.store.ActiveMode(ctx)
}

// unchanged reports whether the rule's candidate equals the device's
// current record, in which case no write, event, or signal occurs.
func unchanged(d *device.Device, ch *change) bool {
	if ch.State != nil && *ch.State != d.State {
		return false
	}
	if ch.Properties == nil {
		return true
	}
	if len(ch.Properties) == 0 && len(d.Properties) == 0 {
		return true
	}
	return reflect.DeepEqual(ch.Properties, d.Properties)
}

func describeChange(d *device.Device, ch *change) string {
	state := d.State
	if ch.State != nil {
		state = *ch.State
	}

	switch d.Type {
	case device.TypeLight:
		if b, ok := ch.Properties["brightness"].(float64); ok && state == "on" {
			return fmt.Sprintf("%s: on (%.0f%%)", d.ID, b)
		}
		return fmt.Sprintf("%s: %s", d.ID, state)
	case device.TypeThermostat:
		if t, ok := ch.Properties["target_temp"].(float64); ok {
			return fmt.Sprintf("%s: target %.0f", d.ID, t)
		}
	}
	return fmt.Sprintf("%s: %s", d.ID, state)
}
