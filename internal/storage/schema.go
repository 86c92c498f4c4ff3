package storage

import (
	"context"
	"fmt"
)

// Schema is created on startup rather than through a migration tool; the
// tables are append-mostly and the DDL is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS metal_rates (
        date       DATE PRIMARY KEY,
        gold       NUMERIC(12,2),
        silver     NUMERIC(12,2),
        platinum   NUMERIC(12,2),
        palladium  NUMERIC(12,2),
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
        chat_id     BIGINT PRIMARY KEY,
        is_active   BOOLEAN NOT NULL DEFAULT TRUE,
        is_pending  BOOLEAN NOT NULL DEFAULT FALSE,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        modified_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,

	`CREATE INDEX IF NOT EXISTS subscriptions_active_pending_idx
        ON subscriptions (is_active, is_pending);`,

	`CREATE TABLE IF NOT EXISTS settings (
        id                 SMALLINT PRIMARY KEY CHECK (id = 1),
        last_notified_date DATE
    );`,

	`INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING;`,
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("apply schema: %w", execErr)
		}
	}
	return nil
}
