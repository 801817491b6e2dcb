package sensors

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenInverterCore/internal/codec"
)

// temperatureOffset is subtracted after scaling; the inverter reports
// temperatures with a +100 °C offset.
const temperatureOffset = 100

// Temperature is a read-only temperature sensor.
type Temperature struct {
	base
}

func NewTemperature(addr uint16, name string, scale float64) *Temperature {
	s := &Temperature{}
	s.init([]uint16{addr}, name, Celsius, scale)
	return s
}

func (s *Temperature) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	return codec.Decode(words, s.scale) - temperatureOffset, nil
}

func (s *Temperature) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}

// Serial decodes an ASCII string packed two characters per register.
type Serial struct {
	base
}

func NewSerial(addrs []uint16, name string) *Serial {
	s := &Serial{}
	s.init(addrs, name, "", 0)
	return s
}

func (s *Serial) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, w := range words {
		for _, c := range []byte{byte(w >> 8), byte(w)} {
			if c != 0 {
				sb.WriteByte(c)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (s *Serial) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}

// Fault decodes a fault bitset into comma separated codes (F01, F02, ...).
// Bit n of register i maps to fault 16*i+n+1.
type Fault struct {
	base
}

func NewFault(addrs []uint16, name string) *Fault {
	s := &Fault{}
	s.init(addrs, name, "", 0)
	return s
}

func (s *Fault) Decode(words []uint16) (any, error) {
	if err := s.checkWords(words); err != nil {
		return nil, err
	}
	var codes []string
	for i, w := range words {
		for bit := 0; bit < 16; bit++ {
			if w&(1<<bit) != 0 {
				codes = append(codes, fmt.Sprintf("F%02d", i*16+bit+1))
			}
		}
	}
	return strings.Join(codes, ", "), nil
}

func (s *Fault) Read(words []uint16) (any, error) {
	return read(s, &s.base, words)
}
