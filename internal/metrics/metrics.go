// Package metrics exports sensor values and transport counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// StatsSource is satisfied by *inverter.Inverter.
type StatsSource interface {
	ID() string
	Stats() inverter.Stats
}

type Metrics struct {
	registry *prometheus.Registry

	values  *prometheus.GaugeVec
	updates *prometheus.CounterVec
	writes  *prometheus.CounterVec
}

func New(source StatsSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inverter_sensor_value",
			Help: "Last decoded value of a numeric sensor",
		}, []string{"inverter", "sensor", "unit"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inverter_sensor_changes_total",
			Help: "Number of observed value changes per sensor",
		}, []string{"inverter", "sensor"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inverter_sensor_writes_total",
			Help: "Sensor write requests by result",
		}, []string{"inverter", "sensor", "result"}),
	}

	m.registry.MustRegister(m.values, m.updates, m.writes)
	m.registry.MustRegister(newStatsCollector(source))
	m.registry.MustRegister(collectors.NewGoCollector())
	return m
}

// SensorsUpdated implements inverter.Listener.
func (m *Metrics) SensorsUpdated(updates []inverter.Update) {
	for _, u := range updates {
		id := u.Sensor.ID()
		if u.Changed {
			m.updates.WithLabelValues(u.Inverter, id).Inc()
		}
		v, ok := numeric(u.Value)
		if !ok {
			continue
		}
		m.values.WithLabelValues(u.Inverter, id, u.Sensor.Unit()).Set(v)
	}
}

// ObserveWrite counts a write attempt.
func (m *Metrics) ObserveWrite(inverterID, sensor string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.writes.WithLabelValues(inverterID, sensor, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case uint16:
		return float64(x), true
	case sensors.TimeOfDay:
		return float64(x), true
	default:
		return 0, false
	}
}
