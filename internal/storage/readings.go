package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SaveReadings inserts readings in one batch round trip.
func (p *PostgresClient) SaveReadings(ctx context.Context, readings []Reading) error {
	if len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(`
			INSERT INTO sensor_readings (id, batch_id, inverter_id, sensor_id, value, text_value, recorded_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		`, r.ID, r.BatchID, r.InverterID, r.SensorID, r.Value, r.Text, r.RecordedAt)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range readings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
	}
	return nil
}

// ReadingHistory returns the readings of one sensor since the given time,
// newest first.
func (p *PostgresClient) ReadingHistory(ctx context.Context, inverterID, sensorID string, since time.Time, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, batch_id, inverter_id, sensor_id, value, COALESCE(text_value, ''), recorded_at
		FROM sensor_readings
		WHERE inverter_id = $1 AND sensor_id = $2 AND recorded_at >= $3
		ORDER BY recorded_at DESC
		LIMIT $4
	`, inverterID, sensorID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	readings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Reading, error) {
		var r Reading
		err := row.Scan(&r.ID, &r.BatchID, &r.InverterID, &r.SensorID, &r.Value, &r.Text, &r.RecordedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan readings: %w", err)
	}
	return readings, nil
}
