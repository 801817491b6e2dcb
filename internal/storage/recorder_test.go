package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

type memoryStore struct {
	mu       sync.Mutex
	readings []Reading
}

func (m *memoryStore) SaveReadings(_ context.Context, readings []Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, readings...)
	return nil
}

func TestRecorderStoresChangedValues(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store, "2103045678", zaptest.NewLogger(t))

	soc := sensors.New([]uint16{588}, "Battery SOC", sensors.Percent, 1)
	mode := sensors.NewSelect(244, "Load Limit", sensors.Options{2: "Zero Export"}, 0)
	now := time.Now()

	rec.SensorsUpdated([]inverter.Update{
		{Sensor: soc, Value: 80.0, Changed: true, Time: now},
		{Sensor: mode, Value: "Zero Export", Changed: true, Time: now},
		{Sensor: soc, Value: 80.0, Changed: false, Time: now},
	})
	rec.Close()

	require.Len(t, store.readings, 2)
	assert.Equal(t, "battery_soc", store.readings[0].SensorID)
	require.NotNil(t, store.readings[0].Value)
	assert.Equal(t, 80.0, *store.readings[0].Value)
	assert.Equal(t, "Zero Export", store.readings[1].Text)
	assert.Nil(t, store.readings[1].Value)
	assert.Equal(t, store.readings[0].BatchID, store.readings[1].BatchID)
	assert.NotEqual(t, store.readings[0].ID, store.readings[1].ID)
}

func TestRecorderSkipsUnchangedBatch(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store, "x", zaptest.NewLogger(t))
	soc := sensors.New([]uint16{588}, "Battery SOC", sensors.Percent, 1)

	assert.Empty(t, rec.Readings([]inverter.Update{{Sensor: soc, Value: 1.0}}))
	rec.Close()
	rec.Close()
	assert.Empty(t, store.readings)
}
