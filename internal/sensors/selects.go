package sensors

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenInverterCore/internal/codec"
)

// Options maps a raw field code to its display label.
type Options map[uint16]string

// Codes returns the option codes in ascending order.
func (o Options) Codes() []uint16 {
	codes := make([]uint16, 0, len(o))
	for c := range o {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	return codes
}

// Labels returns the option labels ordered by code.
func (o Options) Labels() []string {
	labels := make([]string, 0, len(o))
	for _, c := range o.Codes() {
		labels = append(labels, o[c])
	}
	return labels
}

// Enum is a read-only enumerated sensor. With a non-zero bitmask the code
// occupies only those bits, so several enums can share one register.
type Enum struct {
	base
	options Options
	mask    uint16
}

func NewEnum(addr uint16, name string, options Options, mask uint16) *Enum {
	s := &Enum{}
	s.setup(addr, name, options, mask)
	return s
}

func (s *Enum) setup(addr uint16, name string, options Options, mask uint16) {
	s.init([]uint16{addr}, name, "", 0)
	s.options = make(Options, len(options))
	for k, v := range options {
		s.options[k] = v
	}
	s.mask = mask
}

func (s *Enum) Options() Options {
	o := make(Options, len(s.options))
	for k, v := range s.options {
		o[k] = v
	}
	return o
}

func (s *Enum) Bitmask() uint16 { return s.mask }

// Decode returns the option label, or the raw code when the code is unknown.
func (s *Enum) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	code := codec.Extract(words[0], s.mask)
	if label, ok := s.options[code]; ok {
		return label, nil
	}
	return code, nil
}

func (s *Enum) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}

// Select is a writable enumerated setting.
type Select struct {
	Enum
}

func NewSelect(addr uint16, name string, options Options, mask uint16) *Select {
	s := &Select{}
	s.setup(addr, name, options, mask)
	return s
}

func (s *Select) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}

// Code resolves a label or numeric code to a valid option code.
func (s *Select) Code(value any) (uint16, error) {
	var code uint16
	switch x := value.(type) {
	case string:
		label := strings.TrimSpace(x)
		for c, l := range s.options {
			if strings.EqualFold(l, label) {
				return c, nil
			}
		}
		n, err := strconv.ParseUint(label, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%s: %w: unknown option %q", s.id, ErrOutOfBounds, x)
		}
		code = uint16(n)
	default:
		f, err := toFloat(value)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", s.id, err)
		}
		if f < 0 || f > 0xFFFF || f != float64(uint16(f)) {
			return 0, fmt.Errorf("%s: %w: option code %v", s.id, ErrOutOfBounds, value)
		}
		code = uint16(f)
	}

	if _, ok := s.options[code]; !ok {
		return 0, fmt.Errorf("%s: %w: unknown option code %d", s.id, ErrOutOfBounds, code)
	}
	if !codec.Fits(s.mask, code) {
		return 0, fmt.Errorf("%s: %w: code %d into 0x%04X", s.id, ErrValueOutOfMask, code, s.mask)
	}
	return code, nil
}

func (s *Select) Validate(value any) error {
	_, err := s.Code(value)
	return err
}

func (s *Select) Encode(value any, current []uint16) ([]uint16, error) {
	code, err := s.Code(value)
	if err != nil {
		return nil, err
	}
	if s.mask == 0 {
		return []uint16{code}, nil
	}
	if len(current) != 1 {
		return nil, fmt.Errorf("%w: %s needs the current register value to pack bits", ErrWordCount, s.id)
	}
	packed, err := codec.Pack(current[0], s.mask, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.id, err)
	}
	return []uint16{packed}, nil
}

func (s *Select) Write(value any, current []uint16) ([]uint16, error) {
	words, err := s.Encode(value, current)
	if err != nil {
		return nil, err
	}
	s.store(s.options[codec.Extract(words[0], s.mask)])
	return words, nil
}

func (s *Select) Dependencies() []Sensor { return nil }

func (s *Select) NeedsCurrent() bool { return s.mask != 0 }

func (s *Select) bounds() []*Bound { return nil }
