// Package mqtt publishes sensor states to Home Assistant over MQTT and turns
// command topic messages into queued sensor writes.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// StatusTopic is the root of every state topic.
const StatusTopic = "SUNSYNK/status"

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Broker is the subset of an MQTT client the publisher needs.
type Broker interface {
	Publish(topic string, retain bool, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// Source is satisfied by *inverter.Inverter.
type Source interface {
	ID() string
	Serial() string
	RatedPower() float64
	Registry() *sensors.Registry
	Stats() inverter.Stats
}

// Enqueuer accepts values to be written on the next poll; *inverter.Poller
// satisfies it.
type Enqueuer interface {
	Enqueue(id string, value any)
}

type Config struct {
	DiscoveryPrefix  string
	SensorPrefix     string
	NumberEntityMode string
}

type Publisher struct {
	cfg      Config
	broker   Broker
	inverter Source
	queue    Enqueuer
	logger   *zap.Logger

	mu        sync.Mutex
	entities  map[string]bool   // sensor ids with published discovery
	retained  map[string]string // last payload of retained states
	discovery map[string]string // last discovery payload per sensor
	timeouts  string
}

func NewPublisher(cfg Config, broker Broker, source Source, queue Enqueuer, logger *zap.Logger) *Publisher {
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	if cfg.NumberEntityMode == "" {
		cfg.NumberEntityMode = "auto"
	}
	return &Publisher{
		cfg:       cfg,
		broker:    broker,
		inverter:  source,
		queue:     queue,
		logger:    logger,
		entities:  make(map[string]bool),
		retained:  make(map[string]string),
		discovery: make(map[string]string),
	}
}

// AvailabilityTopic returns the topic carrying online/offline for inverterID.
func AvailabilityTopic(inverterID string) string {
	return fmt.Sprintf("%s/%s/availability", StatusTopic, inverterID)
}

func (p *Publisher) availabilityTopic() string {
	return AvailabilityTopic(p.inverter.ID())
}

func (p *Publisher) stateTopic(sensorID string) string {
	return fmt.Sprintf("%s/%s/%s", StatusTopic, p.inverter.ID(), sensorID)
}

// Start publishes discovery for selected, subscribes the command topics of
// writable sensors and marks the inverter online.
func (p *Publisher) Start(selected []sensors.Sensor) error {
	for _, s := range selected {
		if err := p.publishDiscovery(s); err != nil {
			return err
		}
		p.mu.Lock()
		p.entities[s.ID()] = true
		p.mu.Unlock()

		if !sensors.IsWritable(s) {
			continue
		}
		if err := p.broker.Subscribe(p.stateTopic(s.ID())+"_set", p.commandHandler(s)); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", s.ID(), err)
		}
	}

	if err := p.publishTimeoutsDiscovery(); err != nil {
		return err
	}

	p.logger.Info("Home Assistant discovery published",
		zap.String("inverter", p.inverter.ID()),
		zap.Int("entities", len(selected)))

	return p.broker.Publish(p.availabilityTopic(), true, []byte(payloadOnline))
}

// Stop marks the inverter offline.
func (p *Publisher) Stop() error {
	return p.broker.Publish(p.availabilityTopic(), true, []byte(payloadOffline))
}

func (p *Publisher) publishDiscovery(s sensors.Sensor) error {
	e := p.entity(s)
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery for %s: %w", s.ID(), err)
	}

	p.mu.Lock()
	same := p.discovery[s.ID()] == string(payload)
	p.discovery[s.ID()] = string(payload)
	p.mu.Unlock()
	if same {
		return nil
	}

	if err := p.broker.Publish(p.discoveryTopic(e), true, payload); err != nil {
		return fmt.Errorf("failed to publish discovery for %s: %w", s.ID(), err)
	}
	return nil
}

func (p *Publisher) publishTimeoutsDiscovery() error {
	e := Entity{
		Component:         componentSensor,
		ObjectID:          "timeouts",
		Name:              strings.TrimSpace(p.cfg.SensorPrefix + " RS485 timeouts"),
		UniqueID:          p.inverter.ID() + "_timeouts",
		StateTopic:        p.stateTopic("timeouts"),
		AvailabilityTopic: p.availabilityTopic(),
		EntityCategory:    "diagnostic",
		Device:            p.device(),
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.broker.Publish(p.discoveryTopic(e), true, payload)
}

func (p *Publisher) commandHandler(s sensors.Sensor) func(string, []byte) {
	return func(topic string, payload []byte) {
		raw := strings.TrimSpace(string(payload))
		var value any = raw
		if _, ok := s.(*sensors.Number); ok {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				p.logger.Warn("Ignoring non-numeric command",
					zap.String("topic", topic),
					zap.String("payload", raw))
				return
			}
			value = f
		}

		p.logger.Info("Command received",
			zap.String("sensor", s.ID()),
			zap.String("payload", raw))
		p.queue.Enqueue(s.ID(), value)
	}
}

// SensorsUpdated implements inverter.Listener. Writable sensors are
// retained and only published when the payload changes. A changed value
// republishes the discovery of every published sensor bounded by it.
func (p *Publisher) SensorsUpdated(updates []inverter.Update) {
	for _, u := range updates {
		id := u.Sensor.ID()

		p.mu.Lock()
		published := p.entities[id]
		p.mu.Unlock()

		if published {
			if err := p.publishState(u.Sensor, u.Value); err != nil {
				p.logger.Warn("Publish failed", zap.String("sensor", id), zap.Error(err))
			}
		}

		if u.Changed {
			p.refreshDependants(id)
		}
	}
	p.publishTimeouts()
}

func (p *Publisher) publishState(s sensors.Sensor, value any) error {
	payload := sensors.Format(value)
	retain := sensors.IsWritable(s)

	if retain {
		p.mu.Lock()
		last, ok := p.retained[s.ID()]
		if ok && last == payload {
			p.mu.Unlock()
			return nil
		}
		p.retained[s.ID()] = payload
		p.mu.Unlock()
	}
	return p.broker.Publish(p.stateTopic(s.ID()), retain, []byte(payload))
}

func (p *Publisher) refreshDependants(id string) {
	for _, w := range p.inverter.Registry().Dependants(id) {
		p.mu.Lock()
		published := p.entities[w.ID()]
		p.mu.Unlock()
		if !published {
			continue
		}
		p.logger.Debug("Bound changed, refreshing discovery",
			zap.String("sensor", id),
			zap.String("dependant", w.ID()))
		if err := p.publishDiscovery(w); err != nil {
			p.logger.Warn("Discovery refresh failed", zap.String("sensor", w.ID()), zap.Error(err))
		}
	}
}

func (p *Publisher) publishTimeouts() {
	payload := strconv.FormatUint(p.inverter.Stats().Timeouts, 10)
	p.mu.Lock()
	same := p.timeouts == payload
	p.timeouts = payload
	p.mu.Unlock()
	if same {
		return
	}
	if err := p.broker.Publish(p.stateTopic("timeouts"), true, []byte(payload)); err != nil {
		p.logger.Warn("Publish failed", zap.String("sensor", "timeouts"), zap.Error(err))
	}
}
