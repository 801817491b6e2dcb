package inverter

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenInverterCore/internal/catalog"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// Filter names accepted in "sensor:filter" selections.
const (
	FilterNow        = "now"
	FilterLast       = "last"
	FilterAvg        = "avg"
	FilterMin        = "min"
	FilterMax        = "max"
	FilterStep       = "step"
	FilterRoundRobin = "round_robin"
)

var ErrUnknownFilter = errors.New("unknown filter")

// Filter decides in which poll cycles a sensor is read and which of its
// readings are passed on to listeners.
type Filter interface {
	// ShouldUpdate reports whether the sensor is read in the current cycle.
	ShouldUpdate() bool
	// Update feeds one reading and returns the value to publish, if any.
	Update(value any) (any, bool)
}

// SuggestedFilter is the filter used when a sensor is selected without one.
func SuggestedFilter(s sensors.Sensor) string {
	if sensors.IsWritable(s) {
		return FilterRoundRobin
	}
	switch s.ID() {
	case catalog.Serial, catalog.RatedPower, "fault", "device_type":
		return FilterRoundRobin
	case "battery_soc", "grid_connected_status":
		return FilterLast
	case "overall_state", "sd_status":
		return FilterStep
	}
	switch s.Unit() {
	case sensors.Volt, sensors.Celsius, sensors.Hertz:
		return FilterAvg
	case sensors.KWh:
		return FilterLast
	}
	return FilterStep
}

// roundRobin lets one member read per cycle.
type roundRobin struct {
	members int
	current int
}

func (r *roundRobin) join() int {
	r.members++
	return r.members - 1
}

func (r *roundRobin) tick() {
	if r.members > 0 {
		r.current = (r.current + 1) % r.members
	}
}

// ParseFilter validates a filter definition such as "avg" or "step:50".
func ParseFilter(spec string) error {
	_, err := newFilter(spec, 1, &roundRobin{})
	return err
}

// newFilter builds a filter from its definition. window is the number of
// cycles aggregated by windowed filters.
func newFilter(spec string, window int, robin *roundRobin) (Filter, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(spec), ":")
	if window < 1 {
		window = 1
	}

	switch name {
	case FilterNow:
		return nowFilter{}, nil
	case FilterLast, FilterAvg, FilterMin, FilterMax:
		return &windowFilter{kind: name, size: window}, nil
	case FilterStep:
		threshold := 1.0
		if hasArg {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("%w: invalid step threshold %q", ErrUnknownFilter, arg)
			}
			threshold = v
		}
		return &stepFilter{threshold: threshold, size: window}, nil
	case FilterRoundRobin:
		return &robinFilter{robin: robin, slot: robin.join()}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, spec)
}

type nowFilter struct{}

func (nowFilter) ShouldUpdate() bool           { return true }
func (nowFilter) Update(value any) (any, bool) { return value, true }

// windowFilter reads every cycle and publishes once per window. Non numeric
// values publish the last reading.
type windowFilter struct {
	kind   string
	size   int
	values []float64
	last   any
	count  int
}

func (f *windowFilter) ShouldUpdate() bool { return true }

func (f *windowFilter) Update(value any) (any, bool) {
	f.last = value
	f.count++
	if v, ok := value.(float64); ok {
		f.values = append(f.values, v)
	}
	if f.count < f.size {
		return nil, false
	}

	out := f.last
	if len(f.values) == f.count {
		switch f.kind {
		case FilterAvg:
			var sum float64
			for _, v := range f.values {
				sum += v
			}
			out = sum / float64(len(f.values))
		case FilterMin:
			out = slices.Min(f.values)
		case FilterMax:
			out = slices.Max(f.values)
		}
	}
	f.values = f.values[:0]
	f.count = 0
	return out, true
}

// stepFilter publishes when a value moves by at least threshold, and at
// least once per window.
type stepFilter struct {
	threshold float64
	size      int
	last      any
	known     bool
	since     int
}

func (f *stepFilter) ShouldUpdate() bool { return true }

func (f *stepFilter) Update(value any) (any, bool) {
	f.since++
	publish := !f.known || f.since >= f.size
	if !publish {
		prev, pok := f.last.(float64)
		cur, cok := value.(float64)
		if pok && cok {
			publish = math.Abs(cur-prev) >= f.threshold
		} else {
			publish = !reflect.DeepEqual(f.last, value)
		}
	}
	if !publish {
		return nil, false
	}
	f.last, f.known, f.since = value, true, 0
	return value, true
}

type robinFilter struct {
	robin *roundRobin
	slot  int
}

func (f *robinFilter) ShouldUpdate() bool           { return f.robin.current == f.slot }
func (f *robinFilter) Update(value any) (any, bool) { return value, true }
