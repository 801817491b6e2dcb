package mqtt

import (
	"fmt"
	"math"
	"strings"

	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// Device groups the entities of one inverter in Home Assistant.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// Entity is a Home Assistant MQTT discovery payload. Component selects the
// discovery topic and is not serialised.
type Entity struct {
	Component string `json:"-"`
	ObjectID  string `json:"-"`

	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	Unit              string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Min               *float64 `json:"min,omitempty"`
	Max               *float64 `json:"max,omitempty"`
	Step              float64  `json:"step,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	Options           []string `json:"options,omitempty"`
	Device            Device   `json:"device"`
}

const (
	componentSensor = "sensor"
	componentNumber = "number"
	componentSelect = "select"

	timeStep = 15
)

func deviceClass(unit string) string {
	switch unit {
	case sensors.Watt:
		return "power"
	case sensors.KWh:
		return "energy"
	case sensors.Volt:
		return "voltage"
	case sensors.Amps:
		return "current"
	case sensors.Celsius:
		return "temperature"
	case sensors.Hertz:
		return "frequency"
	case sensors.Percent:
		return "battery"
	}
	return ""
}

func stateClass(unit string) string {
	switch unit {
	case sensors.KWh:
		return "total_increasing"
	case "":
		return ""
	}
	return "measurement"
}

func writableIcon(unit string) string {
	switch unit {
	case sensors.Watt:
		return "mdi:flash"
	case sensors.Volt:
		return "mdi:sine-wave"
	case sensors.Amps:
		return "mdi:current-ac"
	case sensors.Percent:
		return "mdi:battery-lock"
	}
	return "mdi:cog"
}

// entity builds the discovery payload of s from its current bounds.
func (p *Publisher) entity(s sensors.Sensor) Entity {
	stateTopic := p.stateTopic(s.ID())
	e := Entity{
		Component:         componentSensor,
		ObjectID:          s.ID(),
		Name:              strings.TrimSpace(p.cfg.SensorPrefix + " " + s.Name()),
		UniqueID:          fmt.Sprintf("%s_%s", p.inverter.ID(), s.ID()),
		StateTopic:        stateTopic,
		AvailabilityTopic: p.availabilityTopic(),
		Unit:              s.Unit(),
		Device:            p.device(),
	}

	if !sensors.IsWritable(s) {
		e.DeviceClass = deviceClass(s.Unit())
		e.StateClass = stateClass(s.Unit())
		return e
	}

	e.EntityCategory = "config"
	e.Icon = writableIcon(s.Unit())
	e.CommandTopic = stateTopic + "_set"

	switch x := s.(type) {
	case *sensors.Number:
		e.Component = componentNumber
		e.Mode = p.cfg.NumberEntityMode
		e.Step = 1
		if f := math.Abs(x.Scale()); f > 0 && f < 1 {
			e.Step = 0.1
		}
		lo, hi := numberRange(x)
		e.Min, e.Max = &lo, &hi
	case *sensors.Select:
		e.Component = componentSelect
		e.Options = x.Options().Labels()
	case *sensors.Time:
		e.Component = componentSelect
		e.Icon = "mdi:clock"
		for _, t := range x.Options(timeStep) {
			e.Options = append(e.Options, t.String())
		}
	}
	return e
}

// numberRange resolves the bounds of n, falling back to the register width.
func numberRange(n *sensors.Number) (float64, float64) {
	factor := math.Abs(n.Scale())
	if factor == 0 {
		factor = 1
	}
	lo, hi := 0.0, (math.Ldexp(1, 16*len(n.Addresses()))-1)*factor
	if n.Scale() < 0 {
		hi = hi / 2
		lo = -hi
	}
	if v, ok := n.Min(); ok {
		lo = v
	}
	if v, ok := n.Max(); ok {
		hi = v
	}
	return lo, hi
}

func (p *Publisher) discoveryTopic(e Entity) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", p.cfg.DiscoveryPrefix, e.Component, p.inverter.ID(), e.ObjectID)
}

func (p *Publisher) device() Device {
	serial := p.inverter.Serial()
	return Device{
		Identifiers:  []string{p.inverter.ID()},
		Name:         strings.TrimSpace("Sunsynk Inverter " + serial),
		Model:        strings.TrimSpace(fmt.Sprintf("%dkW Inverter %s", int(p.inverter.RatedPower()/1000), serial)),
		Manufacturer: "Sunsynk",
	}
}
