package sensors

import (
	"fmt"
	"slices"
	"strings"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a wall clock time in minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: time %d:%d", ErrInvalidValue, hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidValue, s)
	}
	return NewTimeOfDay(h, m)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// TimeFormat selects how hour and minute share the register word.
type TimeFormat int

const (
	// TimeDecimal stores hour*100 + minute (e.g. 2330 for 23:30).
	TimeDecimal TimeFormat = iota
	// TimePacked stores the hour in the high byte and the minute in the low byte.
	TimePacked
)

func (f TimeFormat) decode(raw uint16) (TimeOfDay, error) {
	if f == TimePacked {
		return NewTimeOfDay(int(raw>>8), int(raw&0xFF))
	}
	return NewTimeOfDay(int(raw)/100, int(raw)%100)
}

func (f TimeFormat) encode(t TimeOfDay) uint16 {
	if f == TimePacked {
		return uint16(t.Hour())<<8 | uint16(t.Minute())
	}
	return uint16(t.Hour()*100 + t.Minute())
}

// Time is a writable time-of-day setting. Its bounds are compared modulo
// 24 hours: when max precedes min the valid arc runs through midnight.
type Time struct {
	base
	min, max Bound
	format   TimeFormat
}

func NewTime(addr uint16, name string, min, max Bound) *Time {
	return newTime(addr, name, min, max, TimeDecimal)
}

// NewPackedTime creates a time sensor using the hour/minute byte layout.
func NewPackedTime(addr uint16, name string, min, max Bound) *Time {
	return newTime(addr, name, min, max, TimePacked)
}

func newTime(addr uint16, name string, min, max Bound, format TimeFormat) *Time {
	s := &Time{min: min, max: max, format: format}
	s.init([]uint16{addr}, name, "", 0)
	return s
}

func (s *Time) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	t, err := s.format.decode(words[0])
	if err != nil {
		return nil, fmt.Errorf("%s: raw 0x%04X: %w", s.id, words[0], err)
	}
	return t, nil
}

func (s *Time) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}

func (s *Time) Min() (TimeOfDay, bool) {
	t, ok, err := s.min.timeOfDay()
	return t, ok && err == nil
}

func (s *Time) Max() (TimeOfDay, bool) {
	t, ok, err := s.max.timeOfDay()
	return t, ok && err == nil
}

func (s *Time) Validate(value any) error {
	t, err := toTime(value)
	if err != nil {
		return fmt.Errorf("%s: %w", s.id, err)
	}
	return s.validate(t)
}

func (s *Time) validate(t TimeOfDay) error {
	lo, hasLo, err := s.min.timeOfDay()
	if err != nil {
		return err
	}
	hi, hasHi, err := s.max.timeOfDay()
	if err != nil {
		return err
	}

	switch {
	case hasLo && hasHi:
		if onArc(t, lo, hi) {
			return nil
		}
		// report the side the candidate is closest to
		before := (int(lo) - int(t) + minutesPerDay) % minutesPerDay
		after := (int(t) - int(hi) + minutesPerDay) % minutesPerDay
		if before <= after {
			return &BoundsError{Sensor: s.id, Value: t, Limit: lo, Side: "min"}
		}
		return &BoundsError{Sensor: s.id, Value: t, Limit: hi, Side: "max"}
	case hasLo && t < lo:
		return &BoundsError{Sensor: s.id, Value: t, Limit: lo, Side: "min"}
	case hasHi && t > hi:
		return &BoundsError{Sensor: s.id, Value: t, Limit: hi, Side: "max"}
	}
	return nil
}

// onArc reports whether t lies on the forward arc from lo to hi.
func onArc(t, lo, hi TimeOfDay) bool {
	if lo <= hi {
		return lo <= t && t <= hi
	}
	return t >= lo || t <= hi
}

func (s *Time) Encode(value any, _ []uint16) ([]uint16, error) {
	t, err := toTime(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.id, err)
	}
	return []uint16{s.format.encode(t)}, nil
}

func (s *Time) Write(value any, current []uint16) ([]uint16, error) {
	t, err := toTime(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.id, err)
	}
	if err := s.validate(t); err != nil {
		return nil, err
	}
	words, err := s.Encode(t, current)
	if err != nil {
		return nil, err
	}
	s.store(t)
	return words, nil
}

// Options lists the times at step-minute intervals that currently pass
// validation, always including the current value.
func (s *Time) Options(step int) []TimeOfDay {
	if step <= 0 {
		step = 15
	}
	var out []TimeOfDay
	for m := 0; m < minutesPerDay; m += step {
		if t := TimeOfDay(m); s.validate(t) == nil {
			out = append(out, t)
		}
	}
	if v, ok := s.Last(); ok {
		if cur, ok := v.(TimeOfDay); ok && !slices.Contains(out, cur) {
			out = append(out, cur)
			slices.Sort(out)
		}
	}
	return out
}

func (s *Time) Dependencies() []Sensor {
	return dependencies(&s.min, &s.max)
}

func (s *Time) NeedsCurrent() bool { return false }

func (s *Time) bounds() []*Bound {
	return []*Bound{&s.min, &s.max}
}

func toTime(v any) (TimeOfDay, error) {
	switch x := v.(type) {
	case TimeOfDay:
		if x < 0 || x >= minutesPerDay {
			return 0, fmt.Errorf("%w: time %d", ErrInvalidValue, int(x))
		}
		return x, nil
	case string:
		return ParseTimeOfDay(x)
	default:
		return 0, fmt.Errorf("%w: %T is not a time of day", ErrInvalidValue, v)
	}
}
