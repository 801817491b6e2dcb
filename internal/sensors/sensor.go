package sensors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenInverterCore/internal/codec"
)

// Units used by the catalog. The unit is an opaque tag and never interpreted.
const (
	Celsius = "°C"
	KWh     = "kWh"
	Amps    = "A"
	Volt    = "V"
	Watt    = "W"
	Hertz   = "Hz"
	Percent = "%"
)

// Sensor maps one logical value onto one or more holding registers.
type Sensor interface {
	ID() string
	Name() string
	Addresses() []uint16
	Unit() string
	Scale() float64

	// Decode converts raw words (one per address, in address order) into a value.
	Decode(words []uint16) (any, error)
	// Read decodes and stores the result as the last known value.
	Read(words []uint16) (any, error)
	// Last returns the cached value of the most recent Read or Write.
	Last() (any, bool)
}

// Writable is a Sensor whose value can be validated and encoded for a register write.
type Writable interface {
	Sensor

	Validate(value any) error
	// Encode returns the words to write. current holds the present register
	// contents and is only consulted by sensors sharing a register.
	Encode(value any, current []uint16) ([]uint16, error)
	// Write validates and encodes value, then updates the cached value.
	// Nothing is changed when an error is returned.
	Write(value any, current []uint16) ([]uint16, error)
	// Dependencies lists the sensors referenced by min/max bounds.
	Dependencies() []Sensor
	// NeedsCurrent reports whether Encode requires the present register contents.
	NeedsCurrent() bool

	bounds() []*Bound
}

type base struct {
	id    string
	name  string
	addrs []uint16
	unit  string
	scale float64

	mu    sync.RWMutex
	last  any
	known bool
}

func (b *base) init(addrs []uint16, name, unit string, scale float64) {
	if len(addrs) == 0 {
		panic(fmt.Sprintf("sensors: %q declares no register address", name))
	}
	b.id = Slug(name)
	b.name = name
	b.addrs = make([]uint16, len(addrs))
	copy(b.addrs, addrs)
	b.unit = unit
	b.scale = scale
}

func (b *base) ID() string     { return b.id }
func (b *base) Name() string   { return b.name }
func (b *base) Unit() string   { return b.unit }
func (b *base) Scale() float64 { return b.scale }

func (b *base) Addresses() []uint16 {
	a := make([]uint16, len(b.addrs))
	copy(a, b.addrs)
	return a
}

func (b *base) Last() (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.known
}

func (b *base) store(v any) {
	b.mu.Lock()
	b.last = v
	b.known = true
	b.mu.Unlock()
}

func (b *base) checkWords(words []uint16) error {
	if len(words) != len(b.addrs) {
		return fmt.Errorf("%w: %s expects %d words, got %d", ErrWordCount, b.id, len(b.addrs), len(words))
	}
	return nil
}

type decoder interface {
	Decode(words []uint16) (any, error)
}

func read(d decoder, b *base, words []uint16) (any, error) {
	v, err := d.Decode(words)
	if err != nil {
		return nil, err
	}
	b.store(v)
	return v, nil
}

// Plain is a read-only numeric sensor.
type Plain struct {
	base
}

// New creates a read-only numeric sensor. A negative scale marks a signed
// register, zero returns the raw integer.
func New(addrs []uint16, name, unit string, scale float64) *Plain {
	s := &Plain{}
	s.init(addrs, name, unit, scale)
	return s
}

func (s *Plain) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	return codec.Decode(words, s.scale), nil
}

func (s *Plain) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}

// Slug turns a display name into a stable sensor id.
func Slug(name string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			underscore = false
		case !underscore && sb.Len() > 0:
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}

// IsWritable reports whether s accepts writes.
func IsWritable(s Sensor) bool {
	_, ok := s.(Writable)
	return ok
}
