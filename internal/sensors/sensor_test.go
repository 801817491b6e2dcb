package sensors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regs(a ...uint16) []uint16 { return a }

func TestSlug(t *testing.T) {
	assert.Equal(t, "battery_soc", Slug("Battery SOC"))
	assert.Equal(t, "grid_ct_power", Slug("Grid CT power"))
	assert.Equal(t, "day_battery_discharge", Slug("  Day Battery discharge "))
	assert.Equal(t, "load_limit", Slug("Load-Limit"))
}

func TestPlainReadUpdatesCache(t *testing.T) {
	s := New(regs(590), "Battery power", Watt, -1)

	_, known := s.Last()
	assert.False(t, known)

	v, err := s.Read([]uint16{0xFF38})
	require.NoError(t, err)
	assert.Equal(t, float64(-200), v)

	last, known := s.Last()
	assert.True(t, known)
	assert.Equal(t, float64(-200), last)
}

func TestReadWordCountMismatch(t *testing.T) {
	s := New(regs(516, 517), "Total Battery Charge", KWh, 0.1)

	_, err := s.Read([]uint16{1})
	assert.ErrorIs(t, err, ErrWordCount)

	_, known := s.Last()
	assert.False(t, known, "failed read must not touch the cache")
}

func TestNewPanicsWithoutAddress(t *testing.T) {
	assert.Panics(t, func() { New(nil, "Nothing", "", 1) })
	assert.Panics(t, func() { NewMath(regs(1, 2), "Broken", "", 1) })
}

func TestMathSum(t *testing.T) {
	s := NewMath(regs(610, 611, 612), "Grid current", Amps, 0.01, 0.01, 0.01)

	v, err := s.Read([]uint16{100, 200, 300})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, v, 1e-9)
}

func TestMathTermsDecodeIndependently(t *testing.T) {
	s := NewMath(regs(175, 167, 166), "Essential power", Watt, 1, 1, -1)

	// 0xFFFF is 65535 for the unsigned terms and -1 for the subtracted one
	v, err := s.Decode([]uint16{0xFFFF, 0xFFFF, 0xFFFF})
	require.NoError(t, err)
	assert.Equal(t, float64(65535+65535+1), v)

	abs := NewAbsMath(regs(1, 2), "Abs", Watt, -1, -1)
	v, err = abs.Decode([]uint16{0xFFFF, 0xFFFE})
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)
}

func TestMathNegativeFactorSubtracts(t *testing.T) {
	s := NewMath(regs(175, 167, 166), "Essential power", Watt, 1, 1, -1)
	v, err := s.Decode([]uint16{100, 50, 400})
	require.NoError(t, err)
	assert.Equal(t, float64(-250), v)

	abs := NewAbsMath(regs(175, 167, 166), "Essential abs power", Watt, 1, 1, -1)
	v, err = abs.Read([]uint16{100, 50, 400})
	require.NoError(t, err)
	assert.Equal(t, float64(250), v)

	last, ok := abs.Last()
	require.True(t, ok)
	assert.Equal(t, float64(250), last)
}

func TestTemperature(t *testing.T) {
	s := NewTemperature(586, "Battery temperature", 0.1)
	v, err := s.Decode([]uint16{1250})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, v, 1e-9)
}

func TestSerial(t *testing.T) {
	s := NewSerial(regs(3, 4, 5, 6, 7), "Serial")
	v, err := s.Decode([]uint16{0x3231, 0x3033, 0x3034, 0x3536, 0x3738})
	require.NoError(t, err)
	assert.Equal(t, "2103045678", v)
}

func TestFault(t *testing.T) {
	s := NewFault(regs(103, 104), "Fault")

	v, err := s.Decode([]uint16{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "", v)

	v, err = s.Decode([]uint16{0x0001, 0x8004})
	require.NoError(t, err)
	assert.Equal(t, "F01, F19, F32", v)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "5", Format(5.0))
	assert.Equal(t, "53.5", Format(53.5))
	assert.Equal(t, "0.123", Format(0.12345))
	assert.Equal(t, "-0.01", Format(-0.01))
	assert.Equal(t, "23:30", Format(TimeOfDay(23*60+30)))
	assert.Equal(t, "Zero Export", Format("Zero Export"))
	assert.Equal(t, "7", Format(uint16(7)))
}

func TestBoundsErrorUnwrap(t *testing.T) {
	var err error = &BoundsError{Sensor: "x", Value: 1.0, Limit: 2.0, Side: "min"}
	assert.True(t, errors.Is(err, ErrOutOfBounds))
	assert.Contains(t, err.Error(), "min 2")
}
