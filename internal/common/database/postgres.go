// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"batch-mailer/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres creates a new PostgreSQL client
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// schemaStatements create the run audit tables. Each statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dispatch_runs (
		run_id        TEXT PRIMARY KEY,
		campaign_id   TEXT,
		status        TEXT NOT NULL,
		total         INTEGER NOT NULL,
		sent          INTEGER NOT NULL,
		skipped       INTEGER NOT NULL,
		failed        INTEGER NOT NULL,
		not_attempted INTEGER NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dispatch_outcomes (
		run_id      TEXT NOT NULL REFERENCES dispatch_runs(run_id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		recipient   TEXT NOT NULL,
		status      TEXT NOT NULL,
		reason      TEXT,
		error       TEXT,
		attempts    INTEGER NOT NULL DEFAULT 0,
		reconnected BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dispatch_outcomes_status ON dispatch_outcomes (run_id, status)`,
}

// EnsureSchema creates the dispatch tables when they do not exist.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
