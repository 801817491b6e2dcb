package sensors

import (
	"fmt"
	"math"

	"github.com/KevinKickass/OpenInverterCore/internal/codec"
)

// Math is a read-only sensor summing independently decoded registers, each
// with its own factor (e.g. three phase currents). A negative factor reads
// its register as signed and subtracts the term.
type Math struct {
	base
	factors  []float64
	absolute bool
}

func NewMath(addrs []uint16, name, unit string, factors ...float64) *Math {
	return newMath(addrs, name, unit, factors, false)
}

// NewAbsMath reports the absolute value of the sum.
func NewAbsMath(addrs []uint16, name, unit string, factors ...float64) *Math {
	return newMath(addrs, name, unit, factors, true)
}

func newMath(addrs []uint16, name, unit string, factors []float64, absolute bool) *Math {
	if len(addrs) != len(factors) {
		panic(fmt.Sprintf("sensors: %q has %d addresses but %d factors", name, len(addrs), len(factors)))
	}
	s := &Math{absolute: absolute}
	s.init(addrs, name, unit, 0)
	s.factors = append([]float64(nil), factors...)
	return s
}

func (s *Math) Factors() []float64 {
	return append([]float64(nil), s.factors...)
}

func (s *Math) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	var sum float64
	for i, w := range words {
		term := codec.Decode([]uint16{w}, s.factors[i])
		if s.factors[i] < 0 {
			term = -term
		}
		sum += term
	}
	if s.absolute {
		sum = math.Abs(sum)
	}
	return sum, nil
}

func (s *Math) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}
