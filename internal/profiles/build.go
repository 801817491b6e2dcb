package profiles

import (
	"fmt"

	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

// Register builds the sensors of every profile and adds them to r. The
// registry still needs Link afterwards, so profiles may reference catalog
// sensors and each other.
func Register(r *sensors.Registry, defs ...*types.SensorProfileDefinition) error {
	for _, def := range defs {
		for _, sd := range def.Sensors {
			s, err := NewSensor(sd)
			if err != nil {
				return fmt.Errorf("profile %s: %w", def.Profile.ID, err)
			}
			models := sd.Models
			if len(models) == 0 && def.Profile.Model != "" {
				models = []string{def.Profile.Model}
			}
			if err := r.Add(s, models...); err != nil {
				return fmt.Errorf("profile %s: %w", def.Profile.ID, err)
			}
		}
	}
	return nil
}

// NewSensor builds one sensor from its definition.
func NewSensor(sd types.SensorDefinition) (sensors.Sensor, error) {
	addrs := sd.Addresses
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%s: no addresses", sd.Name)
	}
	single := func() (uint16, error) {
		if len(addrs) != 1 {
			return 0, fmt.Errorf("%s: %s sensors use exactly one address", sd.Name, sd.Kind)
		}
		return addrs[0], nil
	}

	switch sd.Kind {
	case types.SensorKindPlain, "":
		return sensors.New(addrs, sd.Name, sd.Unit, sd.Scale), nil

	case types.SensorKindMath:
		if len(sd.Factors) != len(addrs) {
			return nil, fmt.Errorf("%s: %d addresses but %d factors", sd.Name, len(addrs), len(sd.Factors))
		}
		if sd.Absolute {
			return sensors.NewAbsMath(addrs, sd.Name, sd.Unit, sd.Factors...), nil
		}
		return sensors.NewMath(addrs, sd.Name, sd.Unit, sd.Factors...), nil

	case types.SensorKindTemperature:
		a, err := single()
		if err != nil {
			return nil, err
		}
		return sensors.NewTemperature(a, sd.Name, sd.Scale), nil

	case types.SensorKindSerial:
		return sensors.NewSerial(addrs, sd.Name), nil

	case types.SensorKindFault:
		return sensors.NewFault(addrs, sd.Name), nil

	case types.SensorKindEnum, types.SensorKindSelect:
		a, err := single()
		if err != nil {
			return nil, err
		}
		options := make(sensors.Options, len(sd.Options))
		for _, o := range sd.Options {
			options[o.Code] = o.Label
		}
		if sd.Kind == types.SensorKindEnum {
			return sensors.NewEnum(a, sd.Name, options, sd.Bitmask), nil
		}
		return sensors.NewSelect(a, sd.Name, options, sd.Bitmask), nil

	case types.SensorKindNumber:
		lo, err := bound(sd.Min, false)
		if err != nil {
			return nil, fmt.Errorf("%s: min: %w", sd.Name, err)
		}
		hi, err := bound(sd.Max, false)
		if err != nil {
			return nil, fmt.Errorf("%s: max: %w", sd.Name, err)
		}
		return sensors.NewNumber(addrs, sd.Name, sd.Unit, sd.Scale, lo, hi), nil

	case types.SensorKindTime:
		a, err := single()
		if err != nil {
			return nil, err
		}
		lo, err := bound(sd.Min, true)
		if err != nil {
			return nil, fmt.Errorf("%s: min: %w", sd.Name, err)
		}
		hi, err := bound(sd.Max, true)
		if err != nil {
			return nil, fmt.Errorf("%s: max: %w", sd.Name, err)
		}
		if sd.Format == types.TimeFormatPacked {
			return sensors.NewPackedTime(a, sd.Name, lo, hi), nil
		}
		return sensors.NewTime(a, sd.Name, lo, hi), nil
	}

	return nil, fmt.Errorf("%s: unknown sensor kind %q", sd.Name, sd.Kind)
}

func bound(b *types.BoundDef, timeOfDay bool) (sensors.Bound, error) {
	switch {
	case b == nil:
		return sensors.Bound{}, nil
	case b.Ref != "":
		return sensors.Ref(b.Ref), nil
	case b.Time != "":
		if !timeOfDay {
			return sensors.Bound{}, fmt.Errorf("time bound on a numeric sensor")
		}
		t, err := sensors.ParseTimeOfDay(b.Time)
		if err != nil {
			return sensors.Bound{}, err
		}
		return sensors.LimitTime(t), nil
	case b.Value != nil:
		if timeOfDay {
			return sensors.Bound{}, fmt.Errorf("numeric bound on a time sensor")
		}
		return sensors.Limit(*b.Value), nil
	}
	return sensors.Bound{}, nil
}
