package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	chargeMask uint16 = 0x03
	modeMask   uint16 = 0x1C
)

func TestExtract(t *testing.T) {
	raw := uint16(0b1_0110) // mode=0b101, charge=0b10

	assert.Equal(t, uint16(0b10), Extract(raw, chargeMask))
	assert.Equal(t, uint16(0b101), Extract(raw, modeMask))
	assert.Equal(t, raw, Extract(raw, 0))
}

func TestPackKeepsSiblingField(t *testing.T) {
	raw := uint16(0xFF00 | 0b11) // charge = 3, foreign high byte set

	packed, err := Pack(raw, modeMask, 0b100)
	require.NoError(t, err)

	assert.Equal(t, uint16(0b100), Extract(packed, modeMask))
	assert.Equal(t, Extract(raw, chargeMask), Extract(packed, chargeMask))
	assert.Equal(t, raw&^modeMask, packed&^modeMask)
}

func TestPackOutOfMask(t *testing.T) {
	_, err := Pack(0, chargeMask, 4)
	assert.ErrorIs(t, err, ErrValueOutOfMask)

	_, err = Pack(0, modeMask, 8)
	assert.ErrorIs(t, err, ErrValueOutOfMask)

	assert.False(t, Fits(modeMask, 8))
	assert.True(t, Fits(modeMask, 7))
	assert.True(t, Fits(0, 0xFFFF))
}

func TestPackIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.Uint16().Draw(t, "raw")
		field := rapid.Uint16Range(0, 7).Draw(t, "field")

		packed, err := Pack(raw, modeMask, field)
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		if Extract(packed, modeMask) != field {
			t.Fatalf("field lost: got %d want %d", Extract(packed, modeMask), field)
		}
		if packed&^modeMask != raw&^modeMask {
			t.Fatalf("sibling bits changed: 0x%04X -> 0x%04X", raw, packed)
		}
	})
}
