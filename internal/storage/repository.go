package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	insertRateSQL = `INSERT INTO metal_rates (
        date,
        gold,
        silver,
        platinum,
        palladium
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (date) DO NOTHING;`

	getRateSQL = `SELECT
        date, gold, silver, platinum, palladium, created_at
    FROM metal_rates
    WHERE date = $1;`

	latestDateSQL   = `SELECT date FROM metal_rates ORDER BY date DESC LIMIT 1;`
	earliestDateSQL = `SELECT date FROM metal_rates ORDER BY date ASC LIMIT 1;`

	prevDateSQL = `SELECT date FROM metal_rates WHERE date < $1 ORDER BY date DESC LIMIT 1;`
	nextDateSQL = `SELECT date FROM metal_rates WHERE date > $1 ORDER BY date ASC LIMIT 1;`

	lastDatesSQL = `SELECT date FROM metal_rates ORDER BY date DESC LIMIT $1;`

	datesInYearSQL = `SELECT date FROM metal_rates
    WHERE date >= make_date($1, 1, 1)
      AND date < make_date($1 + 1, 1, 1)
    ORDER BY date;`

	lastRatesSQL = `SELECT
        date, gold, silver, platinum, palladium, created_at
    FROM metal_rates
    WHERE date IN (SELECT date FROM metal_rates ORDER BY date DESC LIMIT $1)
    ORDER BY date;`

	lastCompleteRatesSQL = `SELECT
        date, gold, silver, platinum, palladium, created_at
    FROM metal_rates
    WHERE date IN (SELECT date FROM metal_rates ORDER BY date DESC LIMIT $1)
      AND gold IS NOT NULL
      AND silver IS NOT NULL
      AND platinum IS NOT NULL
      AND palladium IS NOT NULL
    ORDER BY date;`

	listRatesBetweenSQL = `SELECT
        date, gold, silver, platinum, palladium, created_at
    FROM metal_rates
    WHERE date >= $1
      AND date <= $2
    ORDER BY date;`

	countRatesSQL = `SELECT COUNT(*) FROM metal_rates;`
)

// RateStore defines the deduplicated time-series persistence surface.
type RateStore interface {
	InsertRate(ctx context.Context, rate MetalRate) error
	GetRate(ctx context.Context, date time.Time) (*MetalRate, error)
	LatestDate(ctx context.Context) (time.Time, error)
	EarliestDate(ctx context.Context) (time.Time, error)
	RangeDates(ctx context.Context) (time.Time, time.Time, error)
	PrevNextDates(ctx context.Context, date time.Time) (*time.Time, *time.Time, error)
	LastDates(ctx context.Context, n int) ([]time.Time, error)
	DatesInYear(ctx context.Context, year int) ([]time.Time, error)
	LastRates(ctx context.Context, n int, requireComplete bool) ([]MetalRate, error)
	ListRatesBetween(ctx context.Context, from, to time.Time) ([]MetalRate, error)
	CountRates(ctx context.Context) (int64, error)
}

// InsertRate persists a daily rate. A pre-existing record for the date is
// left untouched: the first write wins.
func (s *Store) InsertRate(ctx context.Context, rate MetalRate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	release, err := s.gate.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, execErr := pool.Exec(ctx, insertRateSQL,
		NormalizeDate(rate.Date),
		decimalArg(rate.Gold),
		decimalArg(rate.Silver),
		decimalArg(rate.Platinum),
		decimalArg(rate.Palladium),
	)
	if execErr != nil {
		return fmt.Errorf("insert metal rate: %w", execErr)
	}
	return nil
}

// GetRate returns the record for a date, or nil when absent.
func (s *Store) GetRate(ctx context.Context, date time.Time) (*MetalRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getRateSQL, NormalizeDate(date))
	if queryErr != nil {
		return nil, fmt.Errorf("get metal rate: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rate, scanErr := scanMetalRate(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &rate, rows.Err()
}

// LatestDate returns the newest stored date, falling back to the configured
// epoch when the table is empty.
func (s *Store) LatestDate(ctx context.Context) (time.Time, error) {
	return s.boundaryDate(ctx, latestDateSQL)
}

// EarliestDate returns the oldest stored date, falling back to the epoch.
func (s *Store) EarliestDate(ctx context.Context) (time.Time, error) {
	return s.boundaryDate(ctx, earliestDateSQL)
}

// RangeDates returns the stored [earliest, latest] date range.
func (s *Store) RangeDates(ctx context.Context) (time.Time, time.Time, error) {
	earliest, err := s.EarliestDate(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	latest, err := s.LatestDate(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return earliest, latest, nil
}

func (s *Store) boundaryDate(ctx context.Context, query string) (time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, err
	}

	var date time.Time
	scanErr := pool.QueryRow(ctx, query).Scan(&date)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return s.epoch, nil
	}
	if scanErr != nil {
		return time.Time{}, fmt.Errorf("boundary date: %w", scanErr)
	}
	return NormalizeDate(date), nil
}

// PrevNextDates returns the nearest stored dates below and above the given
// one; either side is nil at the edge of the series.
func (s *Store) PrevNextDates(ctx context.Context, date time.Time) (*time.Time, *time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, nil, err
	}

	day := NormalizeDate(date)

	prev, err := neighborDate(ctx, pool, prevDateSQL, day)
	if err != nil {
		return nil, nil, err
	}
	next, err := neighborDate(ctx, pool, nextDateSQL, day)
	if err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

func neighborDate(ctx context.Context, q querier, query string, day time.Time) (*time.Time, error) {
	var date time.Time
	err := q.QueryRow(ctx, query, day).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("neighbor date: %w", err)
	}
	normalized := NormalizeDate(date)
	return &normalized, nil
}

// LastDates returns up to n stored dates, newest first. An empty table
// yields the epoch as the sole entry.
func (s *Store) LastDates(ctx context.Context, n int) ([]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, lastDatesSQL, n)
	if queryErr != nil {
		return nil, fmt.Errorf("last dates: %w", queryErr)
	}
	defer rows.Close()

	dates, err := collectDates(rows)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		dates = append(dates, s.epoch)
	}
	return dates, nil
}

// DatesInYear returns all stored dates within a calendar year, ascending.
func (s *Store) DatesInYear(ctx context.Context, year int) ([]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, datesInYearSQL, year)
	if queryErr != nil {
		return nil, fmt.Errorf("dates in year: %w", queryErr)
	}
	defer rows.Close()

	return collectDates(rows)
}

// LastRates returns the records for the last n stored dates in ascending
// order. With requireComplete, days missing any metal series are dropped.
func (s *Store) LastRates(ctx context.Context, n int, requireComplete bool) ([]MetalRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := lastRatesSQL
	if requireComplete {
		query = lastCompleteRatesSQL
	}

	rows, queryErr := pool.Query(ctx, query, n)
	if queryErr != nil {
		return nil, fmt.Errorf("last rates: %w", queryErr)
	}
	defer rows.Close()

	return collectRates(rows, n)
}

// ListRatesBetween lists records within an inclusive date range, ascending.
func (s *Store) ListRatesBetween(ctx context.Context, from, to time.Time) ([]MetalRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRatesBetweenSQL, NormalizeDate(from), NormalizeDate(to))
	if queryErr != nil {
		return nil, fmt.Errorf("list rates between: %w", queryErr)
	}
	defer rows.Close()

	return collectRates(rows, 0)
}

// CountRates counts stored records.
func (s *Store) CountRates(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRatesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count rates: %w", scanErr)
	}
	return count, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func collectDates(rows pgx.Rows) ([]time.Time, error) {
	dates := make([]time.Time, 0)
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		dates = append(dates, NormalizeDate(date))
	}
	return dates, rows.Err()
}

func collectRates(rows pgx.Rows, sizeHint int) ([]MetalRate, error) {
	rates := make([]MetalRate, 0, sizeHint)
	for rows.Next() {
		rate, scanErr := scanMetalRate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func scanMetalRate(rows pgx.Rows) (MetalRate, error) {
	var (
		date      time.Time
		gold      sql.NullString
		silver    sql.NullString
		platinum  sql.NullString
		palladium sql.NullString
		createdAt time.Time
	)

	if err := rows.Scan(&date, &gold, &silver, &platinum, &palladium, &createdAt); err != nil {
		return MetalRate{}, err
	}

	rate := MetalRate{
		Date:      NormalizeDate(date),
		CreatedAt: createdAt,
	}

	var err error
	if rate.Gold, err = nullDecimal(gold); err != nil {
		return MetalRate{}, fmt.Errorf("parse gold: %w", err)
	}
	if rate.Silver, err = nullDecimal(silver); err != nil {
		return MetalRate{}, fmt.Errorf("parse silver: %w", err)
	}
	if rate.Platinum, err = nullDecimal(platinum); err != nil {
		return MetalRate{}, fmt.Errorf("parse platinum: %w", err)
	}
	if rate.Palladium, err = nullDecimal(palladium); err != nil {
		return MetalRate{}, fmt.Errorf("parse palladium: %w", err)
	}

	return rate, nil
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

var _ RateStore = (*Store)(nil)
