package storage

import (
	"time"

	"github.com/google/uuid"
)

// Reading is one stored sensor value. Numeric values use Value, everything
// else (labels, times, serials) is kept in Text.
type Reading struct {
	ID         uuid.UUID `json:"id"`
	BatchID    uuid.UUID `json:"batch_id"`
	InverterID string    `json:"inverter_id"`
	SensorID   string    `json:"sensor_id"`
	Value      *float64  `json:"value,omitempty"`
	Text       string    `json:"text,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WriteAudit records a write attempt through the API or MQTT.
type WriteAudit struct {
	ID         uuid.UUID `json:"id"`
	InverterID string    `json:"inverter_id"`
	SensorID   string    `json:"sensor_id"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value"`
	Subject    string    `json:"subject"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
