package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Sent by the server
	MessageTypeSensorUpdate MessageType = "sensor_update"
	MessageTypeSystemStatus MessageType = "system_status"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeError        MessageType = "error"

	// Sent by the client
	MessageTypeSubscribe MessageType = "subscribe"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// SensorValue is one decoded sensor value.
type SensorValue struct {
	Inverter  string `json:"inverter"`
	Sensor    string `json:"sensor"`
	Value     any    `json:"value"`
	Formatted string `json:"formatted"`
	Unit      string `json:"unit,omitempty"`
	Changed   bool   `json:"changed"`
}

// SensorUpdateData carries the sensors of one read cycle.
type SensorUpdateData struct {
	Sensors []SensorValue `json:"sensors"`
}

// ClientMessage is what a client may send: {"type":"subscribe","sensors":[...]}.
// An empty sensor list subscribes to everything.
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Sensors []string    `json:"sensors"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewErrorMessage(reason string) Message {
	return NewMessage(MessageTypeError, map[string]string{"reason": reason})
}
