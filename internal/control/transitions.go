package control

import "github.com/hearth-home/hearth/internal/device"

// candidate is the computed result of applying an action to one device.
// A nil State and nil Properties means the action does not apply to the
// device's type (or carried no usable parameter) and the device is a
// silent no-op.
type candidate struct {
	State      *string
	Properties map[string]any
}

// transition computes the candidate state and properties for one device.
// Each device type has its own transition function so the valid-state
// constraint holds by construction: only type-aware code produces states.
func transition(d *device.Device, action Action, p Params) candidate {
	switch d.Type {
	case device.TypeLight:
		return transitionLight(d, action, p)
	case device.TypeFan:
		return transitionFan(d, action, p)
	case device.TypeBlinds:
		return transitionBlinds(d, action, p)
	case device.TypeGarage:
		return transitionGarage(d, action)
	case device.TypeLock:
		return transitionLock(d, action)
	case device.TypeThermostat:
		return transitionThermostat(d, action, p)
	case device.TypeSprinkler, device.TypeEVCharger:
		return transitionSwitchable(action)
	case device.TypeTemperatureSensor, device.TypeMotionSensor, device.TypeFishFeeder:
		// Sensors and the feeder have no generic control actions; the
		// feeder is driven by its dedicated operation.
		return candidate{}
	}
	return candidate{}
}

func transitionLight(d *device.Device, action Action, p Params) candidate {
	switch action {
	case ActionOn, ActionOff:
		state := string(action)
		props := copyProperties(d)
		switch {
		case p.Brightness != nil:
			props["brightness"] = clampFloat(*p.Brightness, 0, 100)
		case action == ActionOn && propNumber(props, "brightness") == 0:
			props["brightness"] = float64(100)
		case action == ActionOff:
			props["brightness"] = float64(0)
		}
		return candidate{State: &state, Properties: props}

	case ActionSet:
		if p.Brightness == nil {
			return candidate{}
		}
		brightness := clampFloat(*p.Brightness, 0, 100)
		state := "off"
		if brightness > 0 {
			state = "on"
		}
		props := copyProperties(d)
		props["brightness"] = brightness
		return candidate{State: &state, Properties: props}

	case ActionToggle:
		state := "on"
		brightness := float64(100)
		if d.State == "on" {
			state = "off"
			brightness = 0
		}
		props := copyProperties(d)
		props["brightness"] = brightness
		return candidate{State: &state, Properties: props}
	}
	return candidate{}
}

func transitionFan(d *device.Device, action Action, p Params) candidate {
	switch action {
	case ActionOn, ActionOff:
		state := string(action)
		props := copyProperties(d)
		if p.Speed != nil {
			props["speed"] = clampFloat(*p.Speed, 0, 3)
		}
		return candidate{State: &state, Properties: props}

	case ActionSet:
		if p.Speed == nil {
			return candidate{}
		}
		speed := clampFloat(*p.Speed, 0, 3)
		state := "off"
		if speed > 0 {
			state = "on"
		}
		props := copyProperties(d)
		props["speed"] = speed
		return candidate{State: &state, Properties: props}

	case ActionToggle:
		state := "on"
		if d.State == "on" {
			state = "off"
		}
		return candidate{State: &state, Properties: copyProperties(d)}
	}
	return candidate{}
}

func transitionBlinds(d *device.Device, action Action, p Params) candidate {
	switch action {
	case ActionOpen, ActionClose:
		state := "open"
		position := float64(100)
		if action == ActionClose {
			state = "closed"
			position = 0
		}
		if p.Position != nil {
			position = clampFloat(*p.Position, 0, 100)
			if position > 0 {
				state = "open"
			} else {
				state = "closed"
			}
		}
		props := copyProperties(d)
		props["position"] = position
		return candidate{State: &state, Properties: props}

	case ActionSet:
		if p.Position == nil {
			return candidate{}
		}
		position := clampFloat(*p.Position, 0, 100)
		state := "closed"
		if position > 0 {
			state = "open"
		}
		props := copyProperties(d)
		props["position"] = position
		return candidate{State: &state, Properties: props}

	case ActionToggle:
		state := "open"
		position := float64(100)
		if d.State == "open" {
			state = "closed"
			position = 0
		}
		props := copyProperties(d)
		props["position"] = position
		return candidate{State: &state, Properties: props}
	}
	return candidate{}
}

func transitionGarage(d *device.Device, action Action) candidate {
	switch action {
	case ActionOpen:
		state := "open"
		return candidate{State: &state, Properties: copyProperties(d)}
	case ActionClose:
		state := "closed"
		return candidate{State: &state, Properties: copyProperties(d)}
	case ActionToggle:
		state := "open"
		if d.State == "open" {
			state = "closed"
		}
		return candidate{State: &state, Properties: copyProperties(d)}
	}
	return candidate{}
}

func transitionLock(d *device.Device, action Action) candidate {
	switch action {
	case ActionLock:
		state := "locked"
		return candidate{State: &state, Properties: copyProperties(d)}
	case ActionUnlock:
		state := "unlocked"
		return candidate{State: &state, Properties: copyProperties(d)}
	case ActionToggle:
		state := "locked"
		if d.State == "locked" {
			state = "unlocked"
		}
		return candidate{State: &state, Properties: copyProperties(d)}
	}
	return candidate{}
}

func transitionThermostat(d *device.Device, action Action, p Params) candidate {
	if action != ActionSet {
		return candidate{}
	}
	if p.TargetTemp == nil && p.Mode == nil {
		return candidate{}
	}

	props := copyProperties(d)
	var state *string
	if p.TargetTemp != nil {
		props["target_temp"] = float64(*p.TargetTemp)
	}
	if p.Mode != nil {
		props["mode"] = *p.Mode
		state = p.Mode
	}
	return candidate{State: state, Properties: props}
}

// transitionSwitchable covers sprinklers and EV chargers, which only
// respond to plain on/off.
func transitionSwitchable(action Action) candidate {
	switch action {
	case ActionOn, ActionOff:
		state := string(action)
		return candidate{State: &state}
	}
	return candidate{}
}

// copyProperties returns an independent copy of the device's property
// map, so candidate computation never mutates the loaded record.
func copyProperties(d *device.Device) map[string]any {
	cpy := d.DeepCopy().Properties
	if cpy == nil {
		cpy = map[string]any{}
	}
	return cpy
}

// clampFloat clamps v to [lo, hi] and widens to float64, the numeric
// type JSON round-trips produce. Keeping all stored numbers float64
// makes the idempotence comparison reliable.
func clampFloat(v, lo, hi int) float64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return float64(v)
}

// propNumber reads a numeric property, tolerating the int values that
// appear before a record's first JSON round trip.
func propNumber(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
