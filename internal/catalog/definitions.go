// Package catalog declares the Sunsynk / Deye hybrid inverter register map.
package catalog

import (
	"fmt"

	s "github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// Model tags. Sensors without a tag are available on every model.
const (
	ModelSunsynk5k8k = "sunsynk-5k-8k"
	ModelDeye12k     = "deye-12k"
)

// Models lists the supported model tags.
var Models = []string{ModelSunsynk5k8k, ModelDeye12k}

// Ids of sensors that other sensors reference or that the service reads at start-up.
const (
	RatedPower = "rated_power"
	Serial     = "serial"

	BatteryFloatVoltage = "battery_float_voltage"

	BatteryShutdownCapacity = "battery_shutdown_capacity"
	BatteryRestartCapacity  = "battery_restart_capacity"
	BatteryLowCapacity      = "battery_low_capacity"

	BatteryShutdownVoltage = "battery_shutdown_voltage"
	BatteryRestartVoltage  = "battery_restart_voltage"
	BatteryLowVoltage      = "battery_low_voltage"
)

// Absolute battery voltage limits of the inverter.
const (
	MinVoltage = 41
	MaxVoltage = 60
)

// Program slot option sets. Mode codes are field values within bits 2..4.
var (
	ProgChargeOptions = s.Options{
		0: "No Grid or Gen",
		1: "Allow Grid",
		2: "Allow Gen",
		3: "Allow Grid & Gen",
	}
	ProgModeOptions = s.Options{
		0: "None",
		1: "General",
		2: "Backup",
		4: "Charge",
	}
	InverterStateOptions = s.Options{
		0: "standby",
		1: "selftest",
		2: "ok",
		3: "alarm",
		4: "fault",
		5: "activating",
	}
	SDStatusOptions = s.Options{
		1000: "fault",
		2000: "ok",
	}
)

const (
	progChargeMask = 0x03
	progModeMask   = 0x1C
	progSlots      = 6
)

type entry struct {
	sensor s.Sensor
	models []string
}

func all(ss ...s.Sensor) []entry {
	out := make([]entry, 0, len(ss))
	for _, x := range ss {
		out = append(out, entry{sensor: x})
	}
	return out
}

func only(model string, ss ...s.Sensor) []entry {
	out := make([]entry, 0, len(ss))
	for _, x := range ss {
		out = append(out, entry{sensor: x, models: []string{model}})
	}
	return out
}

func addrs(a ...uint16) []uint16 { return a }

func battery() []entry {
	return all(
		s.NewTemperature(586, "Battery temperature", 0.1),
		s.New(addrs(587), "Battery voltage", s.Volt, 0.01),
		s.New(addrs(588), "Battery SOC", s.Percent, 1),
		s.New(addrs(590), "Battery power", s.Watt, -1),
		s.New(addrs(591), "Battery current", s.Amps, -0.01),
	)
}

func inverter() []entry {
	return all(
		s.New(addrs(636), "Inverter power", s.Watt, -1),
		s.New(addrs(633), "Inverter L1 power", s.Watt, -1),
		s.New(addrs(634), "Inverter L2 power", s.Watt, -1),
		s.New(addrs(635), "Inverter L3 power", s.Watt, -1),
		s.New(addrs(627), "Inverter voltage", s.Volt, 0.1),
		s.New(addrs(638), "Inverter frequency", s.Hertz, 0.01),
	)
}

func grid() []entry {
	return all(
		s.New(addrs(609), "Grid frequency", s.Hertz, 0.01),
		s.New(addrs(625), "Grid power", s.Watt, -1),
		s.New(addrs(622), "Grid L1 power", s.Watt, -1),
		s.New(addrs(623), "Grid L2 power", s.Watt, -1),
		s.New(addrs(624), "Grid L3 power", s.Watt, -1),
		s.New(addrs(601), "Grid voltage", s.Volt, 0.1),
		s.NewMath(addrs(610, 611, 612), "Grid current", s.Amps, 0.01, 0.01, 0.01),
		s.New(addrs(619), "Grid CT power", s.Watt, -1),
	)
}

func load() []entry {
	return all(
		s.New(addrs(653), "Load power", s.Watt, -1),
		s.New(addrs(650), "Load L1 power", s.Watt, -1),
		s.New(addrs(651), "Load L2 power", s.Watt, -1),
		s.New(addrs(652), "Load L3 power", s.Watt, -1),
	)
}

func solar() []entry {
	out := all(
		s.New(addrs(672), "PV1 power", s.Watt, -1),
		s.New(addrs(676), "PV1 voltage", s.Volt, 0.1),
		s.New(addrs(677), "PV1 current", s.Amps, 0.1),
		s.New(addrs(673), "PV2 power", s.Watt, -1),
		s.New(addrs(678), "PV2 voltage", s.Volt, 0.1),
		s.New(addrs(679), "PV2 current", s.Amps, 0.1),
	)
	// the 12k has two MPPTs
	return append(out, only(ModelSunsynk5k8k,
		s.New(addrs(674), "PV3 power", s.Watt, -1),
		s.New(addrs(680), "PV3 voltage", s.Volt, 0.1),
		s.New(addrs(681), "PV3 current", s.Amps, 0.1),
		s.New(addrs(675), "PV4 power", s.Watt, -1),
		s.New(addrs(682), "PV4 voltage", s.Volt, 0.1),
		s.New(addrs(683), "PV4 current", s.Amps, 0.1),
	)...)
}

func generator() []entry {
	return all(
		s.New(addrs(667), "Gen power", s.Watt, -1),
		s.New(addrs(664), "Gen L1 power", s.Watt, -1),
		s.New(addrs(665), "Gen L2 power", s.Watt, -1),
		s.New(addrs(666), "Gen L3 power", s.Watt, -1),
	)
}

func energy() []entry {
	out := all(
		s.New(addrs(502), "Day Active Energy", s.KWh, -0.1),
		s.New(addrs(514), "Day Battery Charge", s.KWh, 0.1),
		s.New(addrs(515), "Day Battery discharge", s.KWh, 0.1),
		s.New(addrs(521), "Day Grid Export", s.KWh, 0.1),
		s.New(addrs(520), "Day Grid Import", s.KWh, 0.1),
		s.New(addrs(536), "Day Gen Energy", s.KWh, 0.1),
		s.New(addrs(526), "Day Load Energy", s.KWh, 0.1),
		s.New(addrs(529), "Day PV Energy", s.KWh, 0.1),
		s.New(addrs(506, 507), "Total Active Energy", s.KWh, 0.1),
		s.New(addrs(516, 517), "Total Battery Charge", s.KWh, 0.1),
		s.New(addrs(518, 519), "Total Battery Discharge", s.KWh, 0.1),
		s.New(addrs(524, 525), "Total Grid Export", s.KWh, 0.1),
		s.New(addrs(522, 523), "Total Grid Import", s.KWh, 0.1),
		s.New(addrs(527, 528), "Total Load Energy", s.KWh, 0.1),
		s.New(addrs(534, 535), "Total PV Energy", s.KWh, 0.1),
	)
	return append(out, only(ModelSunsynk5k8k,
		s.New(addrs(61), "Day Reactive Energy", "kVarh", -0.1),
		s.New(addrs(67), "Month Grid Energy", s.KWh, 0.1),
		s.New(addrs(66), "Month Load Energy", s.KWh, 0.1),
		s.New(addrs(65), "Month PV Energy", s.KWh, 0.1),
		s.New(addrs(98, 99), "Year Grid Export", s.KWh, 0.1),
		s.New(addrs(87, 88), "Year Load Energy", s.KWh, 0.1),
		s.New(addrs(68, 69), "Year PV Energy", s.KWh, 0.1),
	)...)
}

func general() []entry {
	out := all(
		s.New(addrs(16, 17), "Rated power", s.Watt, 0.1),
		s.New(addrs(0), "Device Type", "", 0),
		s.NewSerial(addrs(3, 4, 5, 6, 7), "Serial"),
		s.NewTemperature(540, "DC transformer temperature", 0.1),
		s.NewTemperature(217, "Environment temperature", 0.1),
		s.NewTemperature(541, "Radiator temperature", 0.1),
	)
	return append(out, only(ModelSunsynk5k8k,
		s.NewFault(addrs(103, 104, 105, 106, 107), "Fault"),
		s.NewEnum(59, "Overall state", InverterStateOptions, 0),
		s.NewEnum(92, "SD Status", SDStatusOptions, 0),
		s.New(addrs(194), "Grid Connected Status", "", 0),
	)...)
}

func settings() []entry {
	return all(
		s.New(addrs(200), "Control Mode", "", 0),
		s.New(addrs(230), "Grid Charge Battery current", s.Amps, -1),
		s.New(addrs(232), "Grid Charge enabled", "", -1),
		s.New(addrs(312), "Battery charging voltage", s.Volt, 0.01),
		s.New(addrs(603), "Bat1 SOC", s.Percent, 1),
		s.New(addrs(611), "Bat1 Cycle", "", 0),

		s.NewNumber(addrs(201), "Battery Equalization voltage", s.Volt, 0.01, s.Limit(MinVoltage), s.Limit(MaxVoltage)),
		s.NewNumber(addrs(202), "Battery Absorption voltage", s.Volt, 0.01, s.Limit(MinVoltage), s.Limit(MaxVoltage)),
		s.NewNumber(addrs(203), "Battery Float voltage", s.Volt, 0.01, s.Limit(MinVoltage), s.Limit(MaxVoltage)),

		s.NewNumber(addrs(217), "Battery Shutdown Capacity", s.Percent, 0, s.Bound{}, s.Ref(BatteryLowCapacity)),
		s.NewNumber(addrs(218), "Battery Restart Capacity", s.Percent, 0, s.Ref(BatteryLowCapacity), s.Bound{}),
		s.NewNumber(addrs(219), "Battery Low Capacity", s.Percent, 0, s.Ref(BatteryShutdownCapacity), s.Ref(BatteryRestartCapacity)),

		s.NewNumber(addrs(220), "Battery Shutdown voltage", s.Volt, 0.01, s.Limit(MinVoltage), s.Ref(BatteryLowVoltage)),
		s.NewNumber(addrs(221), "Battery Restart voltage", s.Volt, 0.01, s.Ref(BatteryLowVoltage), s.Limit(MaxVoltage)),
		s.NewNumber(addrs(222), "Battery Low voltage", s.Volt, 0.01, s.Ref(BatteryShutdownVoltage), s.Ref(BatteryRestartVoltage)),
	)
}

// ProgTime returns the id of program slot n's start time (1-based).
func ProgTime(n int) string {
	return fmt.Sprintf("prog%d_time", n)
}

// wrap maps any slot number onto 1..progSlots.
func wrap(n int) int {
	return (n+progSlots-1)%progSlots + 1
}

func program() []entry {
	out := all(
		s.NewSelect(243, "Priority Mode", s.Options{0: "Battery first", 1: "Load first"}, 0),
		s.NewSelect(244, "Load Limit", s.Options{0: "Allow Export", 1: "Essentials", 2: "Zero Export"}, 0),
	)

	// each slot starts after the previous one and before the next, with
	// slot 6 wrapping back to slot 1 through midnight
	for n := 1; n <= progSlots; n++ {
		out = append(out, all(s.NewTime(uint16(249+n), fmt.Sprintf("Prog%d Time", n), s.Ref(ProgTime(wrap(n-1))), s.Ref(ProgTime(wrap(n+1)))))...)
	}
	for n := 1; n <= progSlots; n++ {
		out = append(out, all(s.NewNumber(addrs(uint16(255+n)), fmt.Sprintf("Prog%d power", n), s.Watt, 0, s.Bound{}, s.Ref(RatedPower)))...)
	}
	for n := 1; n <= progSlots; n++ {
		out = append(out, all(s.NewNumber(addrs(uint16(267+n)), fmt.Sprintf("Prog%d Capacity", n), s.Percent, 0, s.Ref(BatteryLowCapacity), s.Bound{}))...)
	}
	for n := 1; n <= progSlots; n++ {
		out = append(out, all(s.NewSelect(uint16(273+n), fmt.Sprintf("Prog%d charge", n), ProgChargeOptions, progChargeMask))...)
	}
	for n := 1; n <= progSlots; n++ {
		out = append(out, all(s.NewSelect(uint16(273+n), fmt.Sprintf("Prog%d mode", n), ProgModeOptions, progModeMask))...)
	}
	for n := 1; n <= progSlots; n++ {
		out = append(out, all(s.NewNumber(addrs(uint16(261+n)), fmt.Sprintf("Prog%d voltage", n), s.Volt, 0.01, s.Ref(BatteryLowVoltage), s.Ref(BatteryFloatVoltage)))...)
	}
	return out
}

// Register adds fresh instances of every catalog sensor to r without
// linking, so further sensors (custom profiles) can be added first.
func Register(r *s.Registry) error {
	groups := [][]entry{
		battery(), inverter(), grid(), load(), solar(), generator(),
		energy(), general(), settings(), program(),
	}
	for _, g := range groups {
		for _, e := range g {
			if err := r.Add(e.sensor, e.models...); err != nil {
				return fmt.Errorf("catalog: %w", err)
			}
		}
	}
	return nil
}

// New returns a linked registry holding the full catalog.
func New() (*s.Registry, error) {
	r := s.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	if err := r.Link(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return r, nil
}
