package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (p *PostgresClient) SaveWriteAudit(ctx context.Context, a WriteAudit) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sensor_write_audit (id, inverter_id, sensor_id, old_value, new_value, subject, success, error, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9)
	`, a.ID, a.InverterID, a.SensorID, a.OldValue, a.NewValue, a.Subject, a.Success, a.Error, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save write audit: %w", err)
	}
	return nil
}

// ListWriteAudits returns the most recent write attempts, newest first.
func (p *PostgresClient) ListWriteAudits(ctx context.Context, inverterID string, limit int) ([]WriteAudit, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, inverter_id, sensor_id, COALESCE(old_value, ''), new_value, subject, success,
		       COALESCE(error, ''), created_at
		FROM sensor_write_audit
		WHERE inverter_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, inverterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query write audits: %w", err)
	}

	audits, err := pgx.CollectRows(rows, pgx.RowToStructByPos[WriteAudit])
	if err != nil {
		return nil, fmt.Errorf("failed to scan write audits: %w", err)
	}
	return audits, nil
}
