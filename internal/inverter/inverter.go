// Package inverter drives one hybrid inverter: batched sensor reads,
// validated writes and change notification.
package inverter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/catalog"
	"github.com/KevinKickass/OpenInverterCore/internal/modbus"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// MaxReadErrors is the number of consecutive failed reads tolerated before
// the inverter is considered unreachable.
const MaxReadErrors = 3

var (
	ErrTooManyReadErrors = errors.New("multiple modbus read errors")
	ErrSerialMismatch    = errors.New("configured inverter id does not match the serial number")
	ErrTransport         = errors.New("transport failure")
)

type Config struct {
	// ID identifies the inverter on MQTT and must equal its serial number
	// unless it starts with "_".
	ID        string
	BatchSize int
	// DefaultRatedPower is used when the rated power register is unreadable.
	DefaultRatedPower float64
}

// Update describes the outcome of reading one sensor.
type Update struct {
	Inverter string
	Sensor   sensors.Sensor
	Value    any
	Previous any
	Changed  bool
	Time     time.Time
}

// Listener is notified after every successful read or write.
type Listener interface {
	SensorsUpdated(updates []Update)
}

type ListenerFunc func(updates []Update)

func (f ListenerFunc) SensorsUpdated(updates []Update) { f(updates) }

// Stats are transport counters.
type Stats struct {
	Reads       uint64 `json:"reads"`
	Writes      uint64 `json:"writes"`
	ReadErrors  uint64 `json:"read_errors"`
	Timeouts    uint64 `json:"timeouts"`
	Consecutive int    `json:"consecutive_read_errors"`
}

type Inverter struct {
	cfg       Config
	registry  *sensors.Registry
	transport modbus.Transport
	logger    *zap.Logger

	writeMu sync.Mutex

	mu         sync.RWMutex
	listeners  []Listener
	stats      Stats
	serial     string
	ratedPower float64
	connected  bool
}

func New(cfg Config, registry *sensors.Registry, transport modbus.Transport, logger *zap.Logger) *Inverter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 60
	}
	if cfg.DefaultRatedPower <= 0 {
		cfg.DefaultRatedPower = 5000
	}
	skipCheck := strings.HasPrefix(strings.TrimSpace(cfg.ID), "_")
	cfg.ID = sensors.Slug(cfg.ID)
	if skipCheck || cfg.ID == "" {
		cfg.ID = "_" + cfg.ID
	}

	return &Inverter{
		cfg:        cfg,
		registry:   registry,
		transport:  transport,
		logger:     logger,
		ratedPower: cfg.DefaultRatedPower,
	}
}

func (i *Inverter) ID() string                  { return i.cfg.ID }
func (i *Inverter) Registry() *sensors.Registry { return i.registry }

func (i *Inverter) Connect(ctx context.Context) error {
	if err := i.transport.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	i.mu.Lock()
	i.connected = true
	i.mu.Unlock()

	return nil
}

func (i *Inverter) Disconnect() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.connected {
		return nil
	}
	if err := i.transport.Close(); err != nil {
		return err
	}
	i.connected = false
	return nil
}

func (i *Inverter) Connected() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.connected
}

func (i *Inverter) AddListener(l Listener) {
	i.mu.Lock()
	i.listeners = append(i.listeners, l)
	i.mu.Unlock()
}

func (i *Inverter) Serial() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.serial
}

func (i *Inverter) RatedPower() float64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ratedPower
}

func (i *Inverter) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.stats
}

// Startup reads the serial number, the rated power and every sensor the
// bounds of selected depend on, then checks the serial against the
// configured id.
func (i *Inverter) Startup(ctx context.Context, selected []sensors.Sensor) error {
	startup := []sensors.Sensor{}
	for _, id := range []string{catalog.Serial, catalog.RatedPower} {
		if s, err := i.registry.Lookup(id); err == nil {
			startup = append(startup, s)
		}
	}
	for _, dep := range i.registry.Dependencies(selected) {
		if !slices.ContainsFunc(startup, func(s sensors.Sensor) bool { return s.ID() == dep.ID() }) {
			startup = append(startup, dep)
		}
	}

	ids := make([]string, 0, len(startup))
	for _, s := range startup {
		ids = append(ids, s.ID())
	}
	i.logger.Info("Reading startup sensors", zap.Strings("sensors", ids))

	updates, err := i.readRetrySingle(ctx, startup)
	i.notify(updates)
	if len(updates) == 0 && err != nil {
		return fmt.Errorf("no response from the inverter: %w", err)
	}
	if errors.Is(err, ErrTooManyReadErrors) {
		return err
	}

	serial := i.Serial()
	i.logger.Info("Inverter serial number", zap.String("serial", serial))

	if !strings.HasPrefix(i.cfg.ID, "_") && i.cfg.ID != sensors.Slug(serial) {
		return fmt.Errorf("%w: id %q, serial %q", ErrSerialMismatch, i.cfg.ID, serial)
	}
	return nil
}

// ReadSensors reads the registers of ss in contiguous batches and decodes
// every sensor independently. Decode failures of single sensors are
// returned joined; a transport failure fails the whole read.
func (i *Inverter) ReadSensors(ctx context.Context, ss []sensors.Sensor) ([]Update, error) {
	updates, err := i.read(ctx, ss)
	i.notify(updates)
	return updates, err
}

// readRetrySingle reads ss and, when the batch read fails, reads every
// sensor on its own so one unanswered register does not hide the rest.
func (i *Inverter) readRetrySingle(ctx context.Context, ss []sensors.Sensor) ([]Update, error) {
	updates, err := i.read(ctx, ss)
	if err == nil || len(ss) < 2 || !errors.Is(err, ErrTransport) {
		return updates, err
	}

	ids := make([]string, 0, len(ss))
	for _, s := range ss {
		ids = append(ids, s.ID())
	}
	i.logger.Info("Retrying individual sensors", zap.Strings("sensors", ids))

	var errs []error
	for _, s := range ss {
		u, err := i.read(ctx, []sensors.Sensor{s})
		updates = append(updates, u...)
		if errors.Is(err, ErrTooManyReadErrors) {
			return updates, err
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.ID(), err))
		}
	}
	return updates, errors.Join(errs...)
}

// read is ReadSensors without listener notification.
func (i *Inverter) read(ctx context.Context, ss []sensors.Sensor) ([]Update, error) {
	var addrs []uint16
	for _, s := range ss {
		addrs = append(addrs, s.Addresses()...)
	}
	if len(addrs) == 0 {
		return nil, nil
	}

	words, err := modbus.ReadAddresses(ctx, i.transport, addrs, i.cfg.BatchSize)
	if err != nil {
		return nil, i.readFailed(err)
	}
	i.readSucceeded()

	now := time.Now()
	updates := make([]Update, 0, len(ss))
	var errs []error
	for _, s := range ss {
		raw := make([]uint16, 0, len(s.Addresses()))
		for _, a := range s.Addresses() {
			raw = append(raw, words[a])
		}

		prev, known := s.Last()
		v, err := s.Read(raw)
		if err != nil {
			i.logger.Warn("Decode failed", zap.String("sensor", s.ID()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		updates = append(updates, Update{
			Inverter: i.cfg.ID,
			Sensor:   s,
			Value:    v,
			Previous: prev,
			Changed:  !known || !reflect.DeepEqual(prev, v),
			Time:     now,
		})
		i.track(s.ID(), v)
	}

	return updates, errors.Join(errs...)
}

// ReadSensor reads a single sensor by id.
func (i *Inverter) ReadSensor(ctx context.Context, id string) (any, error) {
	s, err := i.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	updates, err := i.ReadSensors(ctx, []sensors.Sensor{s})
	if err != nil {
		return nil, err
	}
	return updates[0].Value, nil
}

// WriteSensor validates value against the sensor's current bounds, writes
// the encoded registers and reads the sensor back.
func (i *Inverter) WriteSensor(ctx context.Context, id string, value any) (any, error) {
	w, err := i.registry.LookupWritable(id)
	if err != nil {
		return nil, err
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	addrs := w.Addresses()
	var current []uint16
	if w.NeedsCurrent() {
		words, err := modbus.ReadAddresses(ctx, i.transport, addrs, i.cfg.BatchSize)
		if err != nil {
			return nil, i.readFailed(err)
		}
		for _, a := range addrs {
			current = append(current, words[a])
		}
	}

	// bounds are checked against the live values of the referenced sensors
	if deps := w.Dependencies(); len(deps) > 0 {
		if _, err := i.ReadSensors(ctx, deps); errors.Is(err, ErrTransport) || errors.Is(err, ErrTooManyReadErrors) {
			return nil, err
		}
	}

	old, _ := w.Last()
	if err := w.Validate(value); err != nil {
		return nil, err
	}
	words, err := w.Encode(value, current)
	if err != nil {
		return nil, err
	}

	if err := i.writeWords(ctx, addrs, words); err != nil {
		i.logger.Error("Write failed",
			zap.String("sensor", id),
			zap.Any("value", value),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	// the value was validated above; cache what is now in the registers
	if _, err := w.Read(words); err != nil {
		i.logger.Warn("Cache update after write failed", zap.String("sensor", id), zap.Error(err))
	}

	i.mu.Lock()
	i.stats.Writes++
	i.mu.Unlock()

	i.logger.Info("Sensor written",
		zap.String("sensor", id),
		zap.String("old", sensors.Format(old)),
		zap.String("new", sensors.Format(value)),
		zap.Uint16s("registers", words))

	updates, err := i.ReadSensors(ctx, []sensors.Sensor{w})
	if err != nil {
		return nil, err
	}
	return updates[0].Value, nil
}

// writeWords writes contiguous addresses with one request and the rest
// one register at a time.
func (i *Inverter) writeWords(ctx context.Context, addrs, words []uint16) error {
	contiguous := true
	for n := 1; n < len(addrs); n++ {
		if addrs[n] != addrs[n-1]+1 {
			contiguous = false
			break
		}
	}
	if contiguous {
		return i.transport.WriteRegisters(ctx, addrs[0], words)
	}
	for n, a := range addrs {
		if err := i.transport.WriteRegisters(ctx, a, words[n:n+1]); err != nil {
			return err
		}
	}
	return nil
}

func (i *Inverter) readFailed(err error) error {
	i.mu.Lock()
	i.stats.ReadErrors++
	i.stats.Consecutive++
	if modbus.IsTimeout(err) {
		i.stats.Timeouts++
	}
	consecutive := i.stats.Consecutive
	i.mu.Unlock()

	i.logger.Error("Read error", zap.Int("consecutive", consecutive), zap.Error(err))
	if consecutive > MaxReadErrors {
		return fmt.Errorf("%w: %w", ErrTooManyReadErrors, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func (i *Inverter) readSucceeded() {
	i.mu.Lock()
	i.stats.Reads++
	i.stats.Consecutive = 0
	i.mu.Unlock()
}

func (i *Inverter) track(id string, v any) {
	switch id {
	case catalog.Serial:
		if s, ok := v.(string); ok {
			i.mu.Lock()
			i.serial = s
			i.mu.Unlock()
		}
	case catalog.RatedPower:
		if f, ok := v.(float64); ok && f > 0 {
			i.mu.Lock()
			i.ratedPower = f
			i.mu.Unlock()
		}
	}
}

func (i *Inverter) notify(updates []Update) {
	if len(updates) == 0 {
		return
	}
	i.mu.RLock()
	listeners := slices.Clone(i.listeners)
	i.mu.RUnlock()

	for _, l := range listeners {
		l.SensorsUpdated(updates)
	}
}
