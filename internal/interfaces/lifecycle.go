package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenInverterCore/internal/config"
	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/metrics"
	"github.com/KevinKickass/OpenInverterCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State       string         `json:"state"`
	InverterID  string         `json:"inverter_id"`
	Serial      string         `json:"serial,omitempty"`
	Model       string         `json:"model,omitempty"`
	RatedPower  float64        `json:"rated_power"`
	Connected   bool           `json:"connected"`
	Polling     bool           `json:"polling"`
	SensorCount int            `json:"sensor_count"`
	Selected    int            `json:"selected_sensors"`
	Stats       inverter.Stats `json:"stats"`
	MQTT        bool           `json:"mqtt"`
	Database    bool           `json:"database"`
	Error       string         `json:"error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Inverter() *inverter.Inverter
	// Store is nil when the database is disabled.
	Store() storage.Store
	Metrics() *metrics.Metrics
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
