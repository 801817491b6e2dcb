package codec

import (
	"errors"
	"fmt"
	"math"
)

// MaxWords is the widest value the codec assembles (64 bit).
const MaxWords = 4

var (
	ErrOutOfRange     = errors.New("value out of range")
	ErrValueOutOfMask = errors.New("value does not fit bitmask")
	ErrWordCount      = errors.New("invalid word count")
)

// Decode assembles raw register words (first word = most significant) and
// applies the scale factor. A negative scale marks a signed quantity, zero
// returns the raw unsigned integer.
func Decode(words []uint16, scale float64) float64 {
	raw := assemble(words)

	switch {
	case scale > 0:
		return float64(raw) * scale
	case scale < 0:
		return float64(signed(raw, len(words))) * -scale
	default:
		return float64(raw)
	}
}

// Encode converts an engineering value back into wordCount register words.
func Encode(value float64, scale float64, wordCount int) ([]uint16, error) {
	if wordCount < 1 || wordCount > MaxWords {
		return nil, fmt.Errorf("%w: %d", ErrWordCount, wordCount)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, value)
	}

	bits := uint(16 * wordCount)
	step := math.Abs(scale)
	if step == 0 {
		step = 1
	}
	n := math.Round(value / step)

	var raw uint64
	if scale < 0 {
		limit := math.Ldexp(1, int(bits)-1)
		if n < -limit || n >= limit {
			return nil, fmt.Errorf("%w: %v does not fit %d signed bits", ErrOutOfRange, value, bits)
		}
		raw = uint64(int64(n))
		if bits < 64 {
			raw &= 1<<bits - 1
		}
	} else {
		if n < 0 || n >= math.Ldexp(1, int(bits)) {
			return nil, fmt.Errorf("%w: %v does not fit %d unsigned bits", ErrOutOfRange, value, bits)
		}
		if n >= math.Ldexp(1, 63) {
			raw = uint64(n-math.Ldexp(1, 63)) | 1<<63
		} else {
			raw = uint64(n)
		}
	}

	return split(raw, wordCount), nil
}

func assemble(words []uint16) uint64 {
	var raw uint64
	for _, w := range words {
		raw = raw<<16 | uint64(w)
	}
	return raw
}

func split(raw uint64, wordCount int) []uint16 {
	words := make([]uint16, wordCount)
	for i := wordCount - 1; i >= 0; i-- {
		words[i] = uint16(raw)
		raw >>= 16
	}
	return words
}

// signed reinterprets the low 16*wordCount bits as two's complement.
func signed(raw uint64, wordCount int) int64 {
	bits := uint(16 * wordCount)
	if bits >= 64 {
		return int64(raw)
	}
	if raw&(1<<(bits-1)) != 0 {
		return int64(raw) - int64(1)<<bits
	}
	return int64(raw)
}
