package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/config"
)

const qos = 0

// PahoBroker is a Broker backed by the Eclipse Paho client. Subscriptions
// are restored and the inverter marked online after every reconnect.
type PahoBroker struct {
	client  paho.Client
	timeout time.Duration
	logger  *zap.Logger

	mu            sync.Mutex
	subscriptions map[string]func(string, []byte)
	availability  string
}

// Dial connects to cfg.Broker. availabilityTopic receives "offline" as last
// will when the connection drops.
func Dial(cfg config.MQTTConfig, availabilityTopic string, logger *zap.Logger) (*PahoBroker, error) {
	b := &PahoBroker{
		timeout:       10 * time.Second,
		logger:        logger,
		subscriptions: make(map[string]func(string, []byte)),
		availability:  availabilityTopic,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("openinvertercore-"+uuid.NewString()).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(b.timeout).
		SetWill(availabilityTopic, payloadOffline, qos, true)

	opts.OnConnect = b.onConnect
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	b.client = paho.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(b.timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	return b, nil
}

func (b *PahoBroker) onConnect(c paho.Client) {
	b.mu.Lock()
	subs := make(map[string]func(string, []byte), len(b.subscriptions))
	for t, h := range b.subscriptions {
		subs[t] = h
	}
	b.mu.Unlock()

	for topic, handler := range subs {
		if err := b.subscribe(topic, handler); err != nil {
			b.logger.Warn("MQTT resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	if len(subs) > 0 {
		c.Publish(b.availability, qos, true, payloadOnline)
	}
}

func (b *PahoBroker) Publish(topic string, retain bool, payload []byte) error {
	token := b.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("publish %s timed out", topic)
	}
	return token.Error()
}

func (b *PahoBroker) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	b.mu.Lock()
	b.subscriptions[topic] = handler
	b.mu.Unlock()
	return b.subscribe(topic, handler)
}

func (b *PahoBroker) subscribe(topic string, handler func(string, []byte)) error {
	token := b.client.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("subscribe %s timed out", topic)
	}
	return token.Error()
}

// Close marks the inverter offline and disconnects.
func (b *PahoBroker) Close() {
	b.client.Publish(b.availability, qos, true, payloadOffline).WaitTimeout(b.timeout)
	b.client.Disconnect(250)
}
