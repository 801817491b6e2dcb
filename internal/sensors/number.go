package sensors

import (
	"fmt"

	"github.com/KevinKickass/OpenInverterCore/internal/codec"
)

// Number is a writable numeric setting with optional min/max bounds.
type Number struct {
	base
	min, max Bound
}

// NewNumber creates a writable numeric sensor. Pass the zero Bound for an
// unconstrained side.
func NewNumber(addrs []uint16, name, unit string, scale float64, min, max Bound) *Number {
	s := &Number{min: min, max: max}
	s.init(addrs, name, unit, scale)
	return s
}

func (s *Number) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	return codec.Decode(words, s.scale), nil
}

func (s *Number) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}

// Min returns the currently resolved lower bound.
func (s *Number) Min() (float64, bool) {
	v, ok, err := s.min.numeric()
	return v, ok && err == nil
}

// Max returns the currently resolved upper bound.
func (s *Number) Max() (float64, bool) {
	v, ok, err := s.max.numeric()
	return v, ok && err == nil
}

func (s *Number) Validate(value any) error {
	v, err := toFloat(value)
	if err != nil {
		return fmt.Errorf("%s: %w", s.id, err)
	}
	return s.validate(v)
}

func (s *Number) validate(v float64) error {
	lo, ok, err := s.min.numeric()
	if err != nil {
		return err
	}
	if ok && v < lo {
		return &BoundsError{Sensor: s.id, Value: v, Limit: lo, Side: "min"}
	}

	hi, ok, err := s.max.numeric()
	if err != nil {
		return err
	}
	if ok && v > hi {
		return &BoundsError{Sensor: s.id, Value: v, Limit: hi, Side: "max"}
	}
	return nil
}

func (s *Number) Encode(value any, _ []uint16) ([]uint16, error) {
	v, err := toFloat(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.id, err)
	}
	words, err := codec.Encode(v, s.scale, len(s.addrs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.id, err)
	}
	return words, nil
}

func (s *Number) Write(value any, current []uint16) ([]uint16, error) {
	v, err := toFloat(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.id, err)
	}
	if err := s.validate(v); err != nil {
		return nil, err
	}
	words, err := s.Encode(v, current)
	if err != nil {
		return nil, err
	}
	s.store(codec.Decode(words, s.scale))
	return words, nil
}

func (s *Number) Dependencies() []Sensor {
	return dependencies(&s.min, &s.max)
}

func (s *Number) NeedsCurrent() bool { return false }

func (s *Number) bounds() []*Bound {
	return []*Bound{&s.min, &s.max}
}
