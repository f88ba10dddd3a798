package control

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/event"
)

// Controller is the device-mutation surface used by every caller: the
// REST layer, the assistant tooling, and the mode engine. It computes
// type-gated transitions, writes through the store, appends audit
// events, and emits change signals to the registered sinks.
type Controller struct {
	store  device.Store
	events event.Repository
	logger Logger
	sinks  []SignalSink
}

// New creates a Controller. logger may be nil; sinks are optional.
func New(store device.Store, events event.Repository, logger Logger, sinks ...SignalSink) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		store:  store,
		events: events,
		logger: logger,
		sinks:  sinks,
	}
}

// Apply executes one control request against every matched device.
//
// Incompatible action/type pairs are silent per-device no-ops, and a
// candidate equal to the device's current state and properties produces
// no write, no event, and no signal. Matching zero devices returns an
// empty outcome list, not an error. A store write failure aborts the
// batch and propagates; the failed device was not mutated.
func (c *Controller) Apply(ctx context.Context, req Request) ([]Outcome, error) {
	if !req.Action.IsValid() {
		return nil, fmt.Errorf("control: unknown action %q", req.Action)
	}

	devices, err := c.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(devices))
	for i := range devices {
		d := &devices[i]

		outcome, err := c.applyOne(ctx, d, req.Action, req.Params)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// resolve loads the target devices for a request.
func (c *Controller) resolve(ctx context.Context, req Request) ([]device.Device, error) {
	if req.DeviceID != "" {
		d, err := c.store.Get(ctx, req.DeviceID)
		if err != nil {
			return nil, err
		}
		return []device.Device{*d}, nil
	}

	return c.store.List(ctx, device.Filter{Room: req.Room, Type: req.DeviceType})
}

// applyOne runs the transition for a single device and commits the
// result if it changed anything.
func (c *Controller) applyOne(ctx context.Context, d *device.Device, action Action, p Params) (Outcome, error) {
	cand := transition(d, action, p)

	newState := d.State
	if cand.State != nil {
		newState = *cand.State
	}

	stateChanged := newState != d.State
	propsChanged := cand.Properties != nil && !propsEqual(cand.Properties, d.Properties)

	if !stateChanged && !propsChanged {
		return Outcome{
			DeviceID: d.ID,
			Changed:  false,
			OldState: d.State,
			NewState: d.State,
			Summary:  fmt.Sprintf("%s: no change needed (already %s)", d.ID, d.State),
		}, nil
	}

	newProps := cand.Properties
	if newProps == nil {
		newProps = d.Properties
	}

	if err := c.commit(ctx, d, cand.State, newProps, &event.Event{
		Type:     event.TypeDeviceControl,
		DeviceID: d.ID,
		Action:   string(action),
		Metadata: map[string]any{"new_state": newState, "properties": newProps},
	}); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		DeviceID: d.ID,
		Changed:  true,
		OldState: d.State,
		NewState: newState,
		Summary:  summarise(d, newState, newProps),
	}, nil
}

// commit writes the device, appends the audit event, and emits the
// change signal. The event append is fire-and-forget: failure is logged
// and never fails the mutation, but the write itself propagates errors
// because a failed write means the mutation did not happen.
func (c *Controller) commit(ctx context.Context, d *device.Device, state *string, props map[string]any, evt *event.Event) error {
	if err := c.store.Write(ctx, d.ID, state, props); err != nil {
		return fmt.Errorf("writing device %s: %w", d.ID, err)
	}

	if err := c.events.Append(ctx, evt); err != nil {
		c.logger.Warn("event append failed", "device_id", d.ID, "error", err)
	}

	newState := d.State
	if state != nil {
		newState = *state
	}
	c.emit(d, newState, props)

	return nil
}

// emit fans a change signal out to the registered sinks.
func (c *Controller) emit(d *device.Device, state string, props map[string]any) {
	sig := Signal{
		DeviceID:   d.ID,
		Type:       d.Type,
		Room:       d.Room,
		State:      state,
		Properties: props,
	}
	for _, sink := range c.sinks {
		sink.DeviceChanged(sig)
	}
}

// WriteDevice is the raw write path for callers that compute their own
// candidate, such as the mode engine. It runs the same commit sequence
// as Apply: store write, audit event, change signal.
func (c *Controller) WriteDevice(ctx context.Context, d *device.Device, state *string, props map[string]any, evt *event.Event) error {
	return c.commit(ctx, d, state, props, evt)
}

// FeedFish triggers the fish feeder: a feeding pulse that stamps
// last_fed and settles back to idle. Both writes land before the next
// notifier tick, so the dashboard simply sees the updated last_fed.
func (c *Controller) FeedFish(ctx context.Context) (Outcome, error) {
	const feederID = "fish_feeder"

	feeder, err := c.store.Get(ctx, feederID)
	if err != nil {
		return Outcome{}, err
	}

	now := device.FormatTimestamp(time.Now())
	props := copyProperties(feeder)
	props["last_fed"] = now

	feeding := "feeding"
	if err := c.commit(ctx, feeder, &feeding, props, &event.Event{
		Type:     event.TypeFishFeeding,
		DeviceID: feederID,
		Action:   "feed",
		Metadata: map[string]any{"timestamp": now},
	}); err != nil {
		return Outcome{}, err
	}

	// The settle write emits its own signal; the last signal a sink
	// sees must match the stored state. Only one feeding event is
	// recorded for the pulse.
	idle := "idle"
	if err := c.store.Write(ctx, feederID, &idle, props); err != nil {
		return Outcome{}, fmt.Errorf("settling feeder: %w", err)
	}
	c.emit(feeder, idle, props)

	return Outcome{
		DeviceID: feederID,
		Changed:  true,
		OldState: feeder.State,
		NewState: idle,
		Summary:  fmt.Sprintf("%s: fed at %s", feederID, now),
	}, nil
}

// WaterPlants starts the sprinklers, optionally restricted to one zone,
// for the given duration in minutes.
func (c *Controller) WaterPlants(ctx context.Context, zone string, duration int) ([]Outcome, error) {
	if duration <= 0 {
		duration = 15
	}

	sprinklers, err := c.store.List(ctx, device.Filter{Type: device.TypeSprinkler})
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(sprinklers))
	for i := range sprinklers {
		s := &sprinklers[i]

		zoneName, _ := s.Properties["zone"].(string)
		if zone != "" && zoneName != zone {
			continue
		}

		props := copyProperties(s)
		props["duration"] = float64(duration)

		on := "on"
		if err := c.commit(ctx, s, &on, props, &event.Event{
			Type:     event.TypeWatering,
			DeviceID: s.ID,
			Action:   "start",
			Metadata: map[string]any{"duration": duration, "zone": zoneName},
		}); err != nil {
			return outcomes, err
		}

		outcomes = append(outcomes, Outcome{
			DeviceID: s.ID,
			Changed:  true,
			OldState: s.State,
			NewState: on,
			Summary:  fmt.Sprintf("%s: watering %s for %d minutes", s.ID, zoneName, duration),
		})
	}

	return outcomes, nil
}

// StartEVCharging begins charging the EV. Already charging is an
// unchanged outcome, not an error.
func (c *Controller) StartEVCharging(ctx context.Context) (Outcome, error) {
	return c.setEVCharging(ctx, true)
}

// StopEVCharging stops charging the EV. Not charging is an unchanged
// outcome, not an error.
func (c *Controller) StopEVCharging(ctx context.Context) (Outcome, error) {
	return c.setEVCharging(ctx, false)
}

func (c *Controller) setEVCharging(ctx context.Context, charging bool) (Outcome, error) {
	const chargerID = "ev_charger"

	charger, err := c.store.Get(ctx, chargerID)
	if err != nil {
		return Outcome{}, err
	}

	isCharging := charger.State == "charging"
	if isCharging == charging {
		verb := "not currently charging"
		if isCharging {
			verb = "already charging"
		}
		return Outcome{
			DeviceID: chargerID,
			Changed:  false,
			OldState: charger.State,
			NewState: charger.State,
			Summary:  fmt.Sprintf("%s: %s", chargerID, verb),
		}, nil
	}

	state := "idle"
	evtAction := "stop"
	if charging {
		state = "charging"
		evtAction = "start"
	}

	props := copyProperties(charger)
	props["charging"] = charging

	if err := c.commit(ctx, charger, &state, props, &event.Event{
		Type:     event.TypeEVCharging,
		DeviceID: chargerID,
		Action:   evtAction,
	}); err != nil {
		return Outcome{}, err
	}

	battery := propNumber(props, "battery_level")
	return Outcome{
		DeviceID: chargerID,
		Changed:  true,
		OldState: charger.State,
		NewState: state,
		Summary:  fmt.Sprintf("%s: %s (battery %.0f%%)", chargerID, state, battery),
	}, nil
}

// summarise builds the human-readable outcome line.
func summarise(d *device.Device, newState string, props map[string]any) string {
	msg := fmt.Sprintf("%s: %s -> %s", d.ID, d.State, newState)
	switch d.Type {
	case device.TypeLight:
		if _, ok := props["brightness"]; ok {
			msg += fmt.Sprintf(" (brightness: %.0f%%)", propNumber(props, "brightness"))
		}
	case device.TypeThermostat:
		if _, ok := props["target_temp"]; ok {
			msg += fmt.Sprintf(" (target: %.0f)", propNumber(props, "target_temp"))
		}
	case device.TypeBlinds:
		if _, ok := props["position"]; ok {
			msg += fmt.Sprintf(" (position: %.0f%%)", propNumber(props, "position"))
		}
	}
	return msg
}

// propsEqual compares property maps, treating nil and empty as equal.
func propsEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
