package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
)

type ReadingStore interface {
	SaveReadings(ctx context.Context, readings []Reading) error
}

type AuditStore interface {
	SaveWriteAudit(ctx context.Context, a WriteAudit) error
}

// Store is the database surface used by the API.
type Store interface {
	ReadingStore
	AuditStore
	ReadingHistory(ctx context.Context, inverterID, sensorID string, since time.Time, limit int) ([]Reading, error)
	ListWriteAudits(ctx context.Context, inverterID string, limit int) ([]WriteAudit, error)
}

var _ Store = (*PostgresClient)(nil)

// Recorder persists changed sensor values. It is an inverter.Listener;
// inserts run on a background goroutine so polling never waits for the
// database.
type Recorder struct {
	store      ReadingStore
	inverterID string
	logger     *zap.Logger

	queue chan []Reading
	wg    sync.WaitGroup
	once  sync.Once
}

var _ inverter.Listener = (*Recorder)(nil)

func NewRecorder(store ReadingStore, inverterID string, logger *zap.Logger) *Recorder {
	r := &Recorder{
		store:      store,
		inverterID: inverterID,
		logger:     logger,
		queue:      make(chan []Reading, 64),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) SensorsUpdated(updates []inverter.Update) {
	readings := r.Readings(updates)
	if len(readings) == 0 {
		return
	}
	select {
	case r.queue <- readings:
	default:
		r.logger.Warn("Reading queue full, dropping batch", zap.Int("readings", len(readings)))
	}
}

// Readings converts the changed updates into rows sharing one batch id.
func (r *Recorder) Readings(updates []inverter.Update) []Reading {
	batchID := uuid.New()
	var out []Reading
	for _, u := range updates {
		if !u.Changed {
			continue
		}
		reading := Reading{
			ID:         uuid.New(),
			BatchID:    batchID,
			InverterID: r.inverterID,
			SensorID:   u.Sensor.ID(),
			RecordedAt: u.Time,
		}
		if f, ok := u.Value.(float64); ok {
			reading.Value = &f
		} else {
			reading.Text = sensors.Format(u.Value)
		}
		out = append(out, reading)
	}
	return out
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for readings := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.store.SaveReadings(ctx, readings); err != nil {
			r.logger.Error("Failed to save readings", zap.Int("readings", len(readings)), zap.Error(err))
		}
		cancel()
	}
}

// Close drains pending batches and stops the writer.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.queue)
		r.wg.Wait()
	})
}
