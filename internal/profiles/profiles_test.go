package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinKickass/OpenInverterCore/internal/catalog"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

const essentialJSON = `{
  "profile": {"id": "essential", "vendor": "Sunsynk", "description": "essential load power"},
  "sensors": [
    {"name": "Essential abs power", "kind": "math", "unit": "W",
     "addresses": [175, 167, 166], "factors": [1, 1, -1], "absolute": true},
    {"name": "Essential l2 power", "kind": "math", "unit": "W",
     "addresses": [175, 169, 166], "factors": [1, 1, -1], "absolute": true}
  ]
}`

const settingsYAML = `
profile:
  id: extra-settings
  model: sunsynk-5k-8k
sensors:
  - name: Gen charge voltage
    kind: number
    addresses: [300]
    unit: V
    scale: 0.01
    min: {ref: battery_low_voltage}
    max: {value: 60}
  - name: Gen peak shaving
    kind: select
    addresses: [178]
    bitmask: 48
    options:
      - {code: 2, label: Disabled}
      - {code: 3, label: Enabled}
  - name: Night start
    kind: time
    addresses: [350]
    time_format: packed
    min: {time: "18:00"}
    max: {time: "06:00"}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newLoader(t *testing.T) (*ProfileLoader, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := NewProfileLoader([]string{dir})
	require.NoError(t, err)
	return l, dir
}

func TestLoadJSONAndYAML(t *testing.T) {
	l, dir := newLoader(t)
	writeFile(t, dir, "essential.json", essentialJSON)
	writeFile(t, dir, "extra-settings.yaml", settingsYAML)

	p, err := l.Load("essential")
	require.NoError(t, err)
	assert.Equal(t, "essential", p.Profile.ID)
	require.Len(t, p.Sensors, 2)
	assert.Equal(t, types.SensorKindMath, p.Sensors[0].Kind)
	assert.Equal(t, []float64{1, 1, -1}, p.Sensors[0].Factors)

	p, err = l.Load("extra-settings")
	require.NoError(t, err)
	require.Len(t, p.Sensors, 3)
	assert.Equal(t, uint16(48), p.Sensors[1].Bitmask)
	assert.Equal(t, "battery_low_voltage", p.Sensors[0].Min.Ref)

	all, err := l.LoadAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadCached(t *testing.T) {
	l, dir := newLoader(t)
	path := writeFile(t, dir, "essential.json", essentialJSON)

	first, err := l.Load("essential")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	second, err := l.Load("essential")
	require.NoError(t, err)
	assert.Same(t, first, second)

	l.ClearCache()
	_, err = l.Load("essential")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestValidationRejectsBadProfiles(t *testing.T) {
	l, _ := newLoader(t)

	bad := map[string]string{
		"missing sensors": `{"profile": {"id": "x"}}`,
		"unknown kind":    `{"profile": {"id": "x"}, "sensors": [{"name": "a", "kind": "magic", "addresses": [1]}]}`,
		"math no factors": `{"profile": {"id": "x"}, "sensors": [{"name": "a", "kind": "math", "addresses": [1]}]}`,
		"select 2 addrs":  `{"profile": {"id": "x"}, "sensors": [{"name": "a", "kind": "select", "addresses": [1, 2], "options": [{"code": 0, "label": "a"}]}]}`,
		"two bound kinds": `{"profile": {"id": "x"}, "sensors": [{"name": "a", "kind": "number", "addresses": [1], "min": {"value": 1, "ref": "b"}}]}`,
		"bad time":        `{"profile": {"id": "x"}, "sensors": [{"name": "a", "kind": "time", "addresses": [1], "min": {"time": "25:00"}}]}`,
		"not json":        `{`,
	}
	for name, doc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := l.Parse([]byte(doc), ".json")
			assert.Error(t, err)
		})
	}
}

func TestRegisterWithCatalog(t *testing.T) {
	l, dir := newLoader(t)
	writeFile(t, dir, "essential.json", essentialJSON)
	writeFile(t, dir, "extra-settings.yml", settingsYAML)
	defs, err := l.LoadAll()
	require.NoError(t, err)

	r := sensors.NewRegistry()
	require.NoError(t, catalog.Register(r))
	require.NoError(t, Register(r, defs...))
	require.NoError(t, r.Link())

	s, err := r.Lookup("essential_abs_power")
	require.NoError(t, err)
	v, err := s.Decode([]uint16{100, 50, 400})
	require.NoError(t, err)
	assert.Equal(t, float64(250), v)

	assert.Equal(t, []string{catalog.ModelSunsynk5k8k}, r.Models("gen_charge_voltage"))

	low, err := r.Lookup(catalog.BatteryLowVoltage)
	require.NoError(t, err)
	_, err = low.Read([]uint16{4800})
	require.NoError(t, err)

	w, err := r.LookupWritable("gen_charge_voltage")
	require.NoError(t, err)
	_, err = w.Write(47, nil)
	assert.ErrorIs(t, err, sensors.ErrOutOfBounds)
	_, err = w.Write(55, nil)
	assert.NoError(t, err)

	night, err := r.LookupWritable("night_start")
	require.NoError(t, err)
	words, err := night.Write("23:15", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x170F}, words)
	assert.ErrorIs(t, night.Validate("12:00"), sensors.ErrOutOfBounds)
}

func TestRegisterDuplicateOfCatalog(t *testing.T) {
	r := sensors.NewRegistry()
	require.NoError(t, catalog.Register(r))

	def := &types.SensorProfileDefinition{
		Profile: types.ProfileInfo{ID: "dup"},
		Sensors: []types.SensorDefinition{{Name: "Battery SOC", Kind: types.SensorKindPlain, Addresses: []uint16{588}}},
	}
	assert.ErrorIs(t, Register(r, def), sensors.ErrDuplicateID)
}

func TestNewSensorKinds(t *testing.T) {
	tests := []struct {
		def  types.SensorDefinition
		want any
	}{
		{types.SensorDefinition{Name: "a", Kind: types.SensorKindPlain, Addresses: []uint16{1}}, &sensors.Plain{}},
		{types.SensorDefinition{Name: "b", Kind: types.SensorKindTemperature, Addresses: []uint16{1}, Scale: 0.1}, &sensors.Temperature{}},
		{types.SensorDefinition{Name: "c", Kind: types.SensorKindSerial, Addresses: []uint16{1, 2}}, &sensors.Serial{}},
		{types.SensorDefinition{Name: "d", Kind: types.SensorKindFault, Addresses: []uint16{1}}, &sensors.Fault{}},
		{types.SensorDefinition{Name: "e", Kind: types.SensorKindEnum, Addresses: []uint16{1}, Options: []types.OptionDef{{Code: 1, Label: "on"}}}, &sensors.Enum{}},
		{types.SensorDefinition{Name: "f", Kind: types.SensorKindTime, Addresses: []uint16{1}}, &sensors.Time{}},
	}
	for _, tt := range tests {
		s, err := NewSensor(tt.def)
		require.NoError(t, err, tt.def.Name)
		assert.IsType(t, tt.want, s)
	}

	_, err := NewSensor(types.SensorDefinition{Name: "g", Kind: types.SensorKindTime, Addresses: []uint16{1}, Min: &types.BoundDef{Value: new(float64)}})
	assert.Error(t, err)
}
