// Package db stores the webhook delivery audit log in Postgres.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.ConnConfig.Tracer = newQueryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS paypal_webhook_deliveries (
	id              UUID PRIMARY KEY,
	receiver        TEXT NOT NULL,
	transmission_id TEXT NOT NULL,
	event_id        TEXT,
	event_type      TEXT,
	verdict         TEXT NOT NULL,
	error           TEXT,
	received_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS paypal_webhook_deliveries_transmission_idx
	ON paypal_webhook_deliveries (receiver, transmission_id, received_at DESC);
`

// Migrate creates the audit log table if it does not exist.
func Migrate(ctx context.Context, exec Executor) error {
	if _, err := exec.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
