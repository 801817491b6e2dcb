package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/catalog"
	"github.com/KevinKickass/OpenInverterCore/internal/config"
	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/modbus/modbustest"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

const essentialProfile = `{
  "profile": {"id": "essential"},
  "sensors": [
    {"name": "Essential abs power", "kind": "math", "unit": "W",
     "addresses": [175, 167, 166], "factors": [1, 1, -1], "absolute": true}
  ]
}`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPPort: 0, ShutdownTimeout: 5 * time.Second},
		Inverter: config.InverterConfig{
			ID:        "2103045678",
			Transport: "tcp",
			Host:      "127.0.0.1",
			Port:      502,
			BatchSize: 60,
		},
		Sensors: config.SensorsConfig{PollInterval: time.Hour},
	}
}

func TestBuildRegistryWithProfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "essential.json"), []byte(essentialProfile), 0o600))

	r, err := BuildRegistry(config.ProfilesConfig{SearchPaths: []string{dir}}, zap.NewNop())
	require.NoError(t, err)

	s, err := r.Lookup("essential_abs_power")
	require.NoError(t, err)
	assert.IsType(t, &sensors.Math{}, s)

	_, err = BuildRegistry(config.ProfilesConfig{Files: []string{filepath.Join(dir, "missing.json")}}, zap.NewNop())
	assert.Error(t, err)
}

func TestSelectSensors(t *testing.T) {
	r, err := BuildRegistry(config.ProfilesConfig{}, zap.NewNop())
	require.NoError(t, err)

	cfg := *testConfig()
	all, err := SelectSensors(r, cfg)
	require.NoError(t, err)
	assert.Len(t, all, r.Len())

	cfg.Inverter.Model = catalog.ModelDeye12k
	deye, err := SelectSensors(r, cfg)
	require.NoError(t, err)
	assert.Less(t, len(deye), r.Len())

	cfg.Sensors.Selected = []string{"Battery SOC", "prog1_time"}
	picked, err := SelectSensors(r, cfg)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "battery_soc", picked[0].ID())

	cfg.Sensors.Selected = []string{"nope"}
	_, err = SelectSensors(r, cfg)
	assert.ErrorIs(t, err, sensors.ErrNotFound)
}

func TestSensorFilters(t *testing.T) {
	r, err := BuildRegistry(config.ProfilesConfig{}, zap.NewNop())
	require.NoError(t, err)

	cfg := *testConfig()
	cfg.Sensors.Selected = []string{"battery_soc:last", "Battery power:step:50", "battery_soc", "prog1_time"}
	cfg.Sensors.Filters = map[string]string{"battery_power": "avg", "Battery low capacity": "now"}

	picked, err := SelectSensors(r, cfg)
	require.NoError(t, err)
	require.Len(t, picked, 3)
	assert.Equal(t, "battery_power", picked[1].ID())

	filters, err := SensorFilters(cfg.Sensors)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"battery_soc":          "last",
		"battery_power":        "step:50",
		"battery_low_capacity": "now",
	}, filters)

	cfg.Sensors.Selected = []string{"battery_soc:median"}
	_, err = SensorFilters(cfg.Sensors)
	assert.ErrorIs(t, err, inverter.ErrUnknownFilter)

	lcfg := testConfig()
	lcfg.Sensors.Filters = map[string]string{"battery_soc": "step:x"}
	_, err = NewLifecycleManager(lcfg, zap.NewNop(), WithTransport(modbustest.NewMemory(nil)))
	assert.ErrorIs(t, err, inverter.ErrUnknownFilter)
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Sensors.Selected = []string{"battery_soc", "prog1_time"}
	bank := modbustest.NewMemory(modbustest.SunsynkRegisters())

	lm, err := NewLifecycleManager(cfg, zap.NewNop(), WithTransport(bank))
	require.NoError(t, err)
	require.NoError(t, lm.Start(context.Background()))

	assert.Equal(t, StateRunning, lm.State())
	status := lm.GetCurrentStatus()
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, "2103045678", status.Serial)
	assert.Equal(t, 2, status.Selected)
	assert.True(t, status.Polling)
	assert.False(t, status.MQTT)
	assert.Nil(t, lm.Store())

	prog6, err := lm.Inverter().Registry().Lookup(catalog.ProgTime(6))
	require.NoError(t, err)
	_, known := prog6.Last()
	assert.True(t, known, "bound dependencies are read at start-up")

	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.False(t, lm.Inverter().Connected())
}

func TestLifecycleSerialMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.Inverter.ID = "9999"

	lm, err := NewLifecycleManager(cfg, zap.NewNop(), WithTransport(modbustest.NewMemory(modbustest.SunsynkRegisters())))
	require.NoError(t, err)

	err = lm.Start(context.Background())
	assert.ErrorIs(t, err, inverter.ErrSerialMismatch)
	assert.Equal(t, StateError, lm.State())
	assert.Equal(t, "ERROR", lm.GetCurrentStatus().State)
}

func TestLifecycleStopsWhenInverterIsLost(t *testing.T) {
	cfg := testConfig()
	cfg.Sensors.Selected = []string{"battery_soc"}
	cfg.Sensors.PollInterval = 10 * time.Millisecond
	bank := modbustest.NewMemory(modbustest.SunsynkRegisters())

	lm, err := NewLifecycleManager(cfg, zap.NewNop(), WithTransport(bank))
	require.NoError(t, err)
	require.NoError(t, lm.Start(context.Background()))

	bank.SetFail(true)

	select {
	case <-lm.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("system did not stop")
	}
	assert.Equal(t, StateError, lm.State())
	assert.ErrorIs(t, lm.Err(), inverter.ErrTooManyReadErrors)
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StateInitializing, StateRunning))
	assert.NoError(t, ValidateTransition(StateRunning, StateStopping))
	assert.Error(t, ValidateTransition(StateStopped, StateRunning))
	assert.Error(t, ValidateTransition(SystemState(42), StateRunning))
}
