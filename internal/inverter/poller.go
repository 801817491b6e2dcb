package inverter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/catalog"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

// DefaultFilterWindow is the period aggregated by windowed filters.
const DefaultFilterWindow = time.Minute

// Poller periodically flushes queued writes and reads the selected sensors
// together with the sensors their bounds refer to.
type Poller struct {
	inverter *Inverter
	sensors  []sensors.Sensor
	interval time.Duration
	logger   *zap.Logger
	onFatal  func(error)

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	queueMu sync.Mutex
	queue   map[string]any
	order   []string

	pollMu    sync.Mutex
	primed    bool
	robin     *roundRobin
	filters   map[string]Filter
	published map[string]any
}

// NewPoller polls selected every interval. onFatal is called once when the
// inverter stops answering; the poller stops itself afterwards. Rated power
// is read at start-up only.
func NewPoller(inv *Inverter, selected []sensors.Sensor, interval time.Duration, onFatal func(error), logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	polled := slices.Clone(selected)
	for _, dep := range inv.Registry().Dependencies(selected) {
		if dep.ID() != catalog.RatedPower {
			polled = append(polled, dep)
		}
	}

	p := &Poller{
		inverter:  inv,
		sensors:   polled,
		interval:  interval,
		logger:    logger,
		onFatal:   onFatal,
		queue:     make(map[string]any),
		published: make(map[string]any),
	}
	if err := p.SetFilters(nil, DefaultFilterWindow); err != nil {
		logger.Error("Default filters rejected", zap.Error(err))
	}
	return p
}

// Sensors returns the polled sensors: the selection followed by its bound
// dependencies.
func (p *Poller) Sensors() []sensors.Sensor {
	return slices.Clone(p.sensors)
}

// SetFilters assigns a filter definition per sensor id. Sensors without one
// get SuggestedFilter. window is converted into a number of poll cycles.
func (p *Poller) SetFilters(specs map[string]string, window time.Duration) error {
	cycles := int(window / p.interval)
	robin := &roundRobin{}
	filters := make(map[string]Filter, len(p.sensors))
	used := make(map[string][]string)

	for _, s := range p.sensors {
		spec, ok := specs[s.ID()]
		if !ok || spec == "" {
			spec = SuggestedFilter(s)
		}
		f, err := newFilter(spec, cycles, robin)
		if err != nil {
			return fmt.Errorf("sensor %s: %w", s.ID(), err)
		}
		filters[s.ID()] = f
		used[spec] = append(used[spec], s.ID())
	}

	p.pollMu.Lock()
	p.robin, p.filters = robin, filters
	p.pollMu.Unlock()

	for spec, ids := range used {
		p.logger.Debug("Filter assigned", zap.String("filter", spec), zap.Strings("sensors", ids))
	}
	return nil
}

func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.stopChan = make(chan struct{})
	p.wg.Add(1)

	go p.pollLoop(p.stopChan)

	p.logger.Info("Poller started",
		zap.String("inverter", p.inverter.ID()),
		zap.Int("sensors", len(p.sensors)),
		zap.Duration("interval", p.interval))

	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()

	p.logger.Info("Poller stopped", zap.String("inverter", p.inverter.ID()))
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Enqueue schedules a write for the next cycle. A later value for the same
// sensor replaces an earlier one.
func (p *Poller) Enqueue(id string, value any) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	if _, queued := p.queue[id]; !queued {
		p.order = append(p.order, id)
	}
	p.queue[id] = value
}

func (p *Poller) pollLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := p.Poll(context.Background()); err != nil {
				p.fatal(err)
				return
			}
		}
	}
}

// Poll runs one cycle: pending writes first, then a read of every sensor
// whose filter is due. The first cycle reads everything, retrying sensors
// one by one when the batch fails, and publishes every value. Only
// ErrTooManyReadErrors is returned; other failures are logged.
func (p *Poller) Poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	p.flushWrites(ctx)

	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	var (
		updates []Update
		err     error
	)
	if !p.primed {
		updates, err = p.inverter.readRetrySingle(ctx, p.sensors)
		p.primed = len(updates) > 0
		p.publish(updates, true)
	} else {
		p.robin.tick()
		due := make([]sensors.Sensor, 0, len(p.sensors))
		for _, s := range p.sensors {
			if p.filters[s.ID()].ShouldUpdate() {
				due = append(due, s)
			}
		}
		updates, err = p.inverter.read(ctx, due)
		p.publish(updates, false)
	}

	if err != nil {
		if errors.Is(err, ErrTooManyReadErrors) {
			return err
		}
		p.logger.Error("Poll failed", zap.String("inverter", p.inverter.ID()), zap.Error(err))
	}
	return nil
}

// publish passes the readings accepted by their filters on to the
// inverter's listeners. Changed compares against the last published value.
func (p *Poller) publish(updates []Update, force bool) {
	out := make([]Update, 0, len(updates))
	for _, u := range updates {
		id := u.Sensor.ID()
		value := u.Value
		if !force {
			v, ok := p.filters[id].Update(u.Value)
			if !ok {
				continue
			}
			value = v
		}

		prev, known := p.published[id]
		u.Value, u.Previous = value, prev
		u.Changed = !known || !reflect.DeepEqual(prev, value)
		p.published[id] = value
		out = append(out, u)
	}
	p.inverter.notify(out)
}

func (p *Poller) flushWrites(ctx context.Context) {
	p.queueMu.Lock()
	queue, order := p.queue, p.order
	p.queue, p.order = make(map[string]any), nil
	p.queueMu.Unlock()

	for _, id := range order {
		if _, err := p.inverter.WriteSensor(ctx, id, queue[id]); err != nil {
			p.logger.Error("Queued write failed",
				zap.String("sensor", id),
				zap.Any("value", queue[id]),
				zap.Error(err))
		}
	}
}

func (p *Poller) fatal(err error) {
	p.logger.Error("Inverter not responding, stopping poller", zap.Error(err))

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	if p.onFatal != nil {
		p.onFatal(err)
	}
}
