package sensors

import (
	"fmt"
	"slices"
	"sync"
)

// Registry owns the sensor catalog: one live Sensor per id, registration
// order preserved, optional model tags per sensor.
type Registry struct {
	mu     sync.RWMutex
	order  []Sensor
	byID   map[string]Sensor
	models map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]Sensor),
		models: make(map[string][]string),
	}
}

// Add registers s. Sensors without model tags apply to every model.
func (r *Registry) Add(s Sensor, models ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[s.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, s.ID())
	}
	r.byID[s.ID()] = s
	r.order = append(r.order, s)
	if len(models) > 0 {
		r.models[s.ID()] = append([]string(nil), models...)
	}
	return nil
}

// Link resolves every bound reference by id. It runs after all sensors are
// added, so references may point forward or form cycles.
func (r *Registry) Link() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lookup := func(id string) (Sensor, error) {
		s, ok := r.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return s, nil
	}

	for _, s := range r.order {
		w, ok := s.(Writable)
		if !ok {
			continue
		}
		for _, b := range w.bounds() {
			if err := b.link(lookup); err != nil {
				return fmt.Errorf("%s: %w", s.ID(), err)
			}
		}
	}
	return nil
}

func (r *Registry) Lookup(id string) (Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// LookupWritable returns the sensor when it accepts writes.
func (r *Registry) LookupWritable(id string) (Writable, error) {
	s, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	w, ok := s.(Writable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, id)
	}
	return w, nil
}

// All returns every sensor in registration order.
func (r *Registry) All() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Sensor(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Models returns the model tags of a sensor; nil means all models.
func (r *Registry) Models(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.models[id]...)
}

// ForModel returns the sensors applicable to model.
func (r *Registry) ForModel(model string) []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Sensor
	for _, s := range r.order {
		tags, tagged := r.models[s.ID()]
		if !tagged || slices.Contains(tags, model) {
			out = append(out, s)
		}
	}
	return out
}

// Dependencies returns the sensors referenced by the bounds of ss,
// transitively, that are not part of ss themselves.
func (r *Registry) Dependencies(ss []Sensor) []Sensor {
	seen := make(map[string]bool, len(ss))
	for _, s := range ss {
		seen[s.ID()] = true
	}

	var out []Sensor
	queue := append([]Sensor(nil), ss...)
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		w, ok := s.(Writable)
		if !ok {
			continue
		}
		for _, dep := range w.Dependencies() {
			if seen[dep.ID()] {
				continue
			}
			seen[dep.ID()] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}

// Dependants returns the writable sensors whose bounds reference id.
func (r *Registry) Dependants(id string) []Writable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Writable
	for _, s := range r.order {
		w, ok := s.(Writable)
		if !ok {
			continue
		}
		for _, dep := range w.Dependencies() {
			if dep.ID() == id {
				out = append(out, w)
				break
			}
		}
	}
	return out
}
