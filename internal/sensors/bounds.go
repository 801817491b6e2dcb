package sensors

import (
	"fmt"
	"strconv"
	"strings"
)

// Bound is one side of a writable sensor's valid range: absent (the zero
// value), a literal constant or a reference to another sensor's last value.
type Bound struct {
	literal any
	ref     string
	target  Sensor
}

// Limit is a literal numeric bound.
func Limit(v float64) Bound {
	return Bound{literal: v}
}

// LimitTime is a literal time-of-day bound.
func LimitTime(t TimeOfDay) Bound {
	return Bound{literal: t}
}

// Ref bounds a sensor by the current value of the sensor with the given id.
// References are linked by the registry, so the target may be declared later.
func Ref(id string) Bound {
	return Bound{ref: id}
}

func (b *Bound) IsSet() bool {
	return b.literal != nil || b.ref != ""
}

// RefID returns the referenced sensor id, empty for literal or absent bounds.
func (b *Bound) RefID() string {
	return b.ref
}

// Target returns the linked sensor of a reference bound.
func (b *Bound) Target() Sensor {
	return b.target
}

func (b *Bound) link(lookup func(id string) (Sensor, error)) error {
	if b.ref == "" || b.target != nil {
		return nil
	}
	s, err := lookup(b.ref)
	if err != nil {
		return fmt.Errorf("bound reference %q: %w", b.ref, err)
	}
	b.target = s
	return nil
}

// resolve returns the bound's current value. ok is false when the bound is
// absent or its referenced sensor has not been read yet.
func (b *Bound) resolve() (any, bool, error) {
	if b.literal != nil {
		return b.literal, true, nil
	}
	if b.ref == "" {
		return nil, false, nil
	}
	if b.target == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrUnlinked, b.ref)
	}
	v, ok := b.target.Last()
	return v, ok, nil
}

func (b *Bound) numeric() (float64, bool, error) {
	v, ok, err := b.resolve()
	if err != nil || !ok {
		return 0, false, err
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, false, nil
	}
	return f, true, nil
}

func (b *Bound) timeOfDay() (TimeOfDay, bool, error) {
	v, ok, err := b.resolve()
	if err != nil || !ok {
		return 0, false, err
	}
	t, err := toTime(v)
	if err != nil {
		return 0, false, nil
	}
	return t, true, nil
}

func dependencies(bs ...*Bound) []Sensor {
	var deps []Sensor
	for _, b := range bs {
		if b.target != nil {
			deps = append(deps, b.target)
		}
	}
	return deps
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case interface{ Float64() (float64, error) }:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
}
