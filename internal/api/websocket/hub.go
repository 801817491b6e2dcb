package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// Hub maintains active WebSocket clients and broadcasts sensor updates
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu       sync.RWMutex
	logger   *zap.Logger
	upgrader websocket.Upgrader

	done chan struct{}
	once sync.Once
}

// NewHub creates a new Hub instance accepting connections from origins,
// or from anywhere when none are given.
func NewHub(logger *zap.Logger, origins ...string) *Hub {
	return &Hub{
		upgrader:   NewUpgrader(origins),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop until Stop is called
func (h *Hub) Run() {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) deliver(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		msg, ok := client.filter(message)
		if !ok {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
			return
		}

		select {
		case client.send <- data:
		default:
			// Client send channel full - unregister slow/dead client
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("Client send buffer full, unregistering",
				zap.String("remote_addr", client.remoteAddr()))
		}
	}
}

func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// SensorsUpdated implements inverter.Listener.
func (h *Hub) SensorsUpdated(updates []inverter.Update) {
	data := SensorUpdateData{Sensors: make([]SensorValue, 0, len(updates))}
	for _, u := range updates {
		data.Sensors = append(data.Sensors, SensorValue{
			Inverter:  u.Inverter,
			Sensor:    u.Sensor.ID(),
			Value:     u.Value,
			Formatted: sensors.Format(u.Value),
			Unit:      u.Sensor.Unit(),
			Changed:   u.Changed,
		})
	}
	h.Broadcast(NewMessage(MessageTypeSensorUpdate, data))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
