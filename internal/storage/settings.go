package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	getNotifiedDateSQL = `SELECT last_notified_date FROM settings WHERE id = 1;`

	setNotifiedDateSQL = `UPDATE settings SET last_notified_date = $1 WHERE id = 1;`
)

// SettingsStore holds the single-row process settings, currently just the
// notification cursor owned by the change detector.
type SettingsStore interface {
	NotifiedDate(ctx context.Context) (*time.Time, error)
	SetNotifiedDate(ctx context.Context, date time.Time) error
}

// NotifiedDate returns the last date already fanned out, or nil before the
// first fan-out.
func (s *Store) NotifiedDate(ctx context.Context) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var date sql.NullTime
	if scanErr := pool.QueryRow(ctx, getNotifiedDateSQL).Scan(&date); scanErr != nil {
		return nil, fmt.Errorf("get notified date: %w", scanErr)
	}
	if !date.Valid {
		return nil, nil
	}
	normalized := NormalizeDate(date.Time)
	return &normalized, nil
}

// SetNotifiedDate advances the notification cursor.
func (s *Store) SetNotifiedDate(ctx context.Context, date time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	release, err := s.gate.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, execErr := pool.Exec(ctx, setNotifiedDateSQL, NormalizeDate(date)); execErr != nil {
		return fmt.Errorf("set notified date: %w", execErr)
	}
	return nil
}

var _ SettingsStore = (*Store)(nil)
