package codec

import (
	"fmt"
	"math/bits"
)

// Extract returns the bits selected by mask shifted down to bit 0.
// A zero mask selects the whole register.
func Extract(raw, mask uint16) uint16 {
	if mask == 0 {
		return raw
	}
	return (raw & mask) >> bits.TrailingZeros16(mask)
}

// Pack replaces the masked bits of raw with field and leaves every other bit untouched.
func Pack(raw, mask, field uint16) (uint16, error) {
	if mask == 0 {
		return field, nil
	}
	shift := bits.TrailingZeros16(mask)
	shifted := uint32(field) << shift
	if shifted&^uint32(mask) != 0 {
		return 0, fmt.Errorf("%w: %d into 0x%04X", ErrValueOutOfMask, field, mask)
	}
	return raw&^mask | uint16(shifted), nil
}

// Fits reports whether field can be packed under mask.
func Fits(mask, field uint16) bool {
	if mask == 0 {
		return true
	}
	return uint32(field)<<bits.TrailingZeros16(mask)&^uint32(mask) == 0
}
