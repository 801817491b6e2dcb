package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KevinKickass/OpenInverterCore/internal/config"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}

const schema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id          UUID PRIMARY KEY,
	batch_id    UUID NOT NULL,
	inverter_id TEXT NOT NULL,
	sensor_id   TEXT NOT NULL,
	value       DOUBLE PRECISION,
	text_value  TEXT,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sensor_readings_sensor_time
	ON sensor_readings (inverter_id, sensor_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS sensor_write_audit (
	id          UUID PRIMARY KEY,
	inverter_id TEXT NOT NULL,
	sensor_id   TEXT NOT NULL,
	old_value   TEXT,
	new_value   TEXT NOT NULL,
	subject     TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sensor_write_audit_time
	ON sensor_write_audit (inverter_id, created_at DESC);
`

// Migrate creates the tables when they do not exist.
func (p *PostgresClient) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
