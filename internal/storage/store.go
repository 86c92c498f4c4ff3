package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"metal-rates-alerts/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// Store aggregates access to metal rates, subscriptions, and settings.
type Store struct {
	pool               *pgxpool.Pool
	gate               *writeGate
	epoch              time.Time
	pendingOnSubscribe bool
}

// Options tune store construction.
type Options struct {
	// Epoch is returned by LatestDate/EarliestDate when the rates table is
	// empty, so ingestion always has a date to resume from.
	Epoch time.Time
	// WriteQueueDepth bounds the number of mutations queued behind the
	// single in-flight writer.
	WriteQueueDepth int
	// WriteTimeout bounds how long a mutation waits for admission before
	// surfacing ErrBusy.
	WriteTimeout time.Duration
	// NotifyOnSubscribe makes a fresh (re)subscription immediately owed the
	// current latest record instead of only future ones.
	NotifyOnSubscribe bool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool, opts Options) *Store {
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		pool:               pool,
		gate:               newWriteGate(opts.WriteQueueDepth, timeout),
		epoch:              NormalizeDate(opts.Epoch),
		pendingOnSubscribe: opts.NotifyOnSubscribe,
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}
