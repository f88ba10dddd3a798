package homemode

import (
	"strings"

	"github.com/hearth-home/hearth/internal/device"
)

// change is one rule-computed device mutation. A nil State means the
// rule only touches properties.
type change struct {
	State      *string
	Properties map[string]any
}

// ruleFor computes the mutation a mode applies to one device, or nil if
// the mode leaves the device untouched. The tables are fixed and
// deterministic; activation is the only entry point, there are no
// automatic transitions.
func ruleFor(mode device.Mode, d *device.Device) *change {
	switch mode {
	case device.ModeHome:
		return ruleHome(d)
	case device.ModeAway:
		return ruleAway(d)
	case device.ModeSleep:
		return ruleSleep(d)
	case device.ModeVacation:
		return ruleVacation(d)
	}
	return nil
}

// ruleHome: main lights on at 75%, thermostat to 72 auto.
func ruleHome(d *device.Device) *change {
	switch d.Type {
	case device.TypeLight:
		if !strings.Contains(d.ID, "main") {
			return nil
		}
		return lightChange(d, "on", 75)
	case device.TypeThermostat:
		return thermostatChange(d, 72, "auto")
	}
	return nil
}

// ruleAway: all lights off, locks engaged, thermostat to 65.
func ruleAway(d *device.Device) *change {
	switch d.Type {
	case device.TypeLight:
		return lightChange(d, "off", 0)
	case device.TypeLock:
		return lockEngage(d)
	case device.TypeThermostat:
		return thermostatChange(d, 65, "")
	}
	return nil
}

// ruleSleep: bedroom lights dim to 20%, other lights off, locks
// engaged, thermostat to 68.
func ruleSleep(d *device.Device) *change {
	switch d.Type {
	case device.TypeLight:
		if strings.Contains(d.ID, "bedroom") {
			return lightChange(d, "on", 20)
		}
		return lightChange(d, "off", 0)
	case device.TypeLock:
		return lockEngage(d)
	case device.TypeThermostat:
		return thermostatChange(d, 68, "")
	}
	return nil
}

// ruleVacation: everything off and secured, thermostat to 60.
func ruleVacation(d *device.Device) *change {
	switch d.Type {
	case device.TypeLight:
		return lightChange(d, "off", 0)
	case device.TypeLock:
		return lockEngage(d)
	case device.TypeGarage:
		if d.State == "closed" {
			return nil
		}
		state := "closed"
		return &change{State: &state}
	case device.TypeThermostat:
		return thermostatChange(d, 60, "")
	}
	return nil
}

func lightChange(d *device.Device, state string, brightness float64) *change {
	props := copyProps(d)
	props["brightness"] = brightness
	return &change{State: &state, Properties: props}
}

func lockEngage(d *device.Device) *change {
	if d.State == "locked" {
		return nil
	}
	state := "locked"
	return &change{State: &state}
}

// thermostatChange sets the target temperature and, when mode is
// non-empty, the thermostat mode which also becomes the device state.
func thermostatChange(d *device.Device, targetTemp float64, mode string) *change {
	props := copyProps(d)
	props["target_temp"] = targetTemp

	var state *string
	if mode != "" {
		props["mode"] = mode
		state = &mode
	}
	return &change{State: state, Properties: props}
}

func copyProps(d *device.Device) map[string]any {
	props := d.DeepCopy().Properties
	if props == nil {
		props = map[string]any{}
	}
	return props
}
