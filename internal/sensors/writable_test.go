package sensors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLink(t *testing.T, ss ...Sensor) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, s := range ss {
		require.NoError(t, r.Add(s))
	}
	require.NoError(t, r.Link())
	return r
}

func capacityChain(t *testing.T) (shutdown, restart, low *Number) {
	t.Helper()
	shutdown = NewNumber(regs(217), "Battery Shutdown Capacity", Percent, 0, Bound{}, Ref("battery_low_capacity"))
	restart = NewNumber(regs(218), "Battery Restart Capacity", Percent, 0, Ref("battery_low_capacity"), Bound{})
	low = NewNumber(regs(219), "Battery Low Capacity", Percent, 0, Ref("battery_shutdown_capacity"), Ref("battery_restart_capacity"))
	mustLink(t, shutdown, restart, low)
	return shutdown, restart, low
}

func TestChainedCapacityBound(t *testing.T) {
	shutdown, restart, low := capacityChain(t)

	_, err := shutdown.Write(10, nil)
	require.NoError(t, err)
	_, err = restart.Write(50, nil)
	require.NoError(t, err)

	words, err := low.Write(30, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{30}, words)

	_, err = low.Write(5, nil)
	var be *BoundsError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, float64(10), be.Limit)
	assert.Equal(t, "min", be.Side)

	last, _ := low.Last()
	assert.Equal(t, float64(30), last, "rejected write must not change the cache")

	// the chain now constrains the neighbours too
	_, err = shutdown.Write(40, nil)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = restart.Write(20, nil)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestUnknownBoundIsUnconstrained(t *testing.T) {
	_, _, low := capacityChain(t)
	prog := NewNumber(regs(268), "Prog1 Capacity", Percent, 0, Ref("battery_low_capacity"), Bound{})
	mustLink(t, low, prog)

	_, err := prog.Write(1, nil)
	assert.NoError(t, err)
}

func TestLiteralBounds(t *testing.T) {
	s := NewNumber(regs(201), "Battery Equalization voltage", Volt, 0.01, Limit(41), Limit(60))

	words, err := s.Write("53.5", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{5350}, words)

	_, err = s.Write(40.99, nil)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = s.Write(60.01, nil)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	lo, ok := s.Min()
	assert.True(t, ok)
	assert.Equal(t, float64(41), lo)
}

func TestNumberOutOfRange(t *testing.T) {
	s := NewNumber(regs(256), "Prog1 power", Watt, 0, Bound{}, Bound{})

	_, err := s.Write(70000, nil)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, known := s.Last()
	assert.False(t, known)
}

func TestNumberInvalidValue(t *testing.T) {
	s := NewNumber(regs(256), "Prog1 power", Watt, 0, Bound{}, Bound{})
	_, err := s.Write("lots", nil)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestUnlinkedReference(t *testing.T) {
	s := NewNumber(regs(219), "Battery Low Capacity", Percent, 0, Ref("battery_shutdown_capacity"), Bound{})
	err := s.Validate(10)
	assert.ErrorIs(t, err, ErrUnlinked)
}

func programTimes(t *testing.T) []*Time {
	t.Helper()
	ids := []string{"prog1_time", "prog2_time", "prog3_time", "prog4_time", "prog5_time", "prog6_time"}
	names := []string{"Prog1 Time", "Prog2 Time", "Prog3 Time", "Prog4 Time", "Prog5 Time", "Prog6 Time"}

	var times []*Time
	var all []Sensor
	for i := range ids {
		prev := ids[(i+5)%6]
		next := ids[(i+1)%6]
		tm := NewTime(uint16(250+i), names[i], Ref(prev), Ref(next))
		times = append(times, tm)
		all = append(all, tm)
	}
	mustLink(t, all...)

	for i, tm := range times {
		_, err := tm.Read([]uint16{uint16(i * 4 * 100)})
		require.NoError(t, err)
	}
	return times
}

func TestTimeWrapAroundBound(t *testing.T) {
	times := programTimes(t)
	prog6 := times[5]

	words, err := prog6.Write("23:30", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{2330}, words)

	_, err = prog6.Write("03:00", nil)
	var be *BoundsError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, TimeOfDay(0), be.Limit)

	_, err = prog6.Write("12:00", nil)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestTimeArcThroughMidnight(t *testing.T) {
	lo, _ := NewTimeOfDay(23, 0)
	hi, _ := NewTimeOfDay(2, 0)
	s := NewTime(250, "Slot", LimitTime(lo), LimitTime(hi))

	assert.NoError(t, s.Validate("23:30"))
	assert.NoError(t, s.Validate("01:00"))
	assert.ErrorIs(t, s.Validate("12:00"), ErrOutOfBounds)
}

func TestTimeDecode(t *testing.T) {
	s := NewTime(250, "Prog1 Time", Bound{}, Bound{})

	v, err := s.Decode([]uint16{2345})
	require.NoError(t, err)
	assert.Equal(t, "23:45", v.(TimeOfDay).String())

	_, err = s.Decode([]uint16{2460})
	assert.ErrorIs(t, err, ErrInvalidValue)

	packed := NewPackedTime(250, "Packed", Bound{}, Bound{})
	v, err = packed.Decode([]uint16{0x1705})
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(23*60+5), v)

	words, err := packed.Encode("23:05", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1705}, words)
}

func TestTimeOptions(t *testing.T) {
	times := programTimes(t)

	opts := times[1].Options(60) // between 00:00 and 08:00
	var got []string
	for _, o := range opts {
		got = append(got, o.String())
	}
	assert.Equal(t, []string{"00:00", "01:00", "02:00", "03:00", "04:00", "05:00", "06:00", "07:00", "08:00"}, got)
}

var (
	chargeOptions = Options{0: "No Grid or Gen", 1: "Allow Grid", 2: "Allow Gen", 3: "Allow Grid & Gen"}
	modeOptions   = Options{0: "None", 1: "General", 2: "Backup", 4: "Charge"}
)

func TestSelectSharedRegister(t *testing.T) {
	charge := NewSelect(274, "Prog1 charge", chargeOptions, 0x03)
	mode := NewSelect(274, "Prog1 mode", modeOptions, 0x1C)

	current := []uint16{0x0002 | 0x0004} // charge=Allow Gen, mode=General

	v, err := charge.Read(current)
	require.NoError(t, err)
	assert.Equal(t, "Allow Gen", v)
	v, err = mode.Read(current)
	require.NoError(t, err)
	assert.Equal(t, "General", v)

	words, err := mode.Write("Charge", current)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0002|0x0010), words[0])

	v, err = charge.Decode(words)
	require.NoError(t, err)
	assert.Equal(t, "Allow Gen", v, "charge field must survive a mode write")

	last, _ := mode.Last()
	assert.Equal(t, "Charge", last)
}

func TestSelectRejectsUnknownOption(t *testing.T) {
	mode := NewSelect(274, "Prog1 mode", modeOptions, 0x1C)

	_, err := mode.Write("Turbo", []uint16{0})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = mode.Write(3, []uint16{0})
	assert.ErrorIs(t, err, ErrOutOfBounds)

	wide := NewSelect(275, "Wide", Options{8: "Too wide"}, 0x03)
	_, err = wide.Write(8, []uint16{0})
	assert.ErrorIs(t, err, ErrValueOutOfMask)

	_, err = mode.Write("General", nil)
	assert.ErrorIs(t, err, ErrWordCount)
}

func TestSelectUnknownCodeOnRead(t *testing.T) {
	s := NewEnum(59, "Overall state", Options{2: "ok"}, 0)
	v, err := s.Read([]uint16{9})
	require.NoError(t, err)
	assert.Equal(t, uint16(9), v)
}

func TestSelectWholeRegister(t *testing.T) {
	s := NewSelect(244, "Load Limit", Options{0: "Allow Export", 1: "Essentials", 2: "Zero Export"}, 0)
	assert.False(t, s.NeedsCurrent())

	words, err := s.Write("zero export", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{2}, words)

	words, err = s.Write("1", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, words)
	assert.Equal(t, []string{"Allow Export", "Essentials", "Zero Export"}, s.Options().Labels())
}

func TestWriteIsAllOrNothing(t *testing.T) {
	_, _, low := capacityChain(t)
	_, err := low.Write(30, nil)
	require.NoError(t, err)

	errs := []error{}
	for _, v := range []any{-1, 70000, "x"} {
		_, err := low.Write(v, nil)
		errs = append(errs, err)
	}
	for _, err := range errs {
		assert.Error(t, err)
	}
	last, _ := low.Last()
	assert.Equal(t, float64(30), last)
	assert.False(t, errors.Is(errs[2], ErrOutOfBounds))
}
