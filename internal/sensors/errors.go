package sensors

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenInverterCore/internal/codec"
)

var (
	ErrNotFound     = errors.New("sensor not found")
	ErrDuplicateID  = errors.New("duplicate sensor id")
	ErrReadOnly     = errors.New("sensor is read-only")
	ErrOutOfBounds  = errors.New("value out of bounds")
	ErrInvalidValue = errors.New("invalid value")
	ErrUnlinked     = errors.New("bound reference not linked")

	ErrOutOfRange     = codec.ErrOutOfRange
	ErrValueOutOfMask = codec.ErrValueOutOfMask
	ErrWordCount      = codec.ErrWordCount
)

// BoundsError reports a candidate rejected by a resolved min or max.
type BoundsError struct {
	Sensor string
	Value  any
	Limit  any
	Side   string // "min" or "max"
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s: %v violates %s %v", e.Sensor, e.Value, e.Side, e.Limit)
}

func (e *BoundsError) Unwrap() error {
	return ErrOutOfBounds
}
