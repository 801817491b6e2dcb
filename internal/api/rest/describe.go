package rest

import (
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

const timeOptionStep = 15

func kindOf(s sensors.Sensor) types.SensorKind {
	switch s.(type) {
	case *sensors.Number:
		return types.SensorKindNumber
	case *sensors.Select:
		return types.SensorKindSelect
	case *sensors.Time:
		return types.SensorKindTime
	case *sensors.Enum:
		return types.SensorKindEnum
	case *sensors.Math:
		return types.SensorKindMath
	case *sensors.Temperature:
		return types.SensorKindTemperature
	case *sensors.Serial:
		return types.SensorKindSerial
	case *sensors.Fault:
		return types.SensorKindFault
	default:
		return types.SensorKindPlain
	}
}

// describe builds the API view of s from its cached value and current bounds.
func describe(r *sensors.Registry, s sensors.Sensor) types.SensorInfo {
	v, known := s.Last()
	info := describeValue(r, s, v)
	info.Known = known
	return info
}

func describeValue(r *sensors.Registry, s sensors.Sensor, v any) types.SensorInfo {
	info := types.SensorInfo{
		ID:        s.ID(),
		Name:      s.Name(),
		Kind:      kindOf(s),
		Addresses: s.Addresses(),
		Unit:      s.Unit(),
		Writable:  sensors.IsWritable(s),
		Value:     v,
		Formatted: sensors.Format(v),
		Known:     v != nil,
		Models:    r.Models(s.ID()),
	}

	switch x := s.(type) {
	case *sensors.Number:
		if lo, ok := x.Min(); ok {
			info.Min = lo
		}
		if hi, ok := x.Max(); ok {
			info.Max = hi
		}
	case *sensors.Time:
		if lo, ok := x.Min(); ok {
			info.Min = lo
		}
		if hi, ok := x.Max(); ok {
			info.Max = hi
		}
		for _, t := range x.Options(timeOptionStep) {
			info.Options = append(info.Options, t.String())
		}
	case *sensors.Select:
		info.Options = x.Options().Labels()
	case *sensors.Enum:
		info.Options = x.Options().Labels()
	}

	if w, ok := s.(sensors.Writable); ok {
		for _, dep := range w.Dependencies() {
			info.DependsOn = append(info.DependsOn, dep.ID())
		}
	}
	return info
}
