package app

import (
	"context"
	"errors"

	"metal-rates-alerts/internal/fetcher"
	"metal-rates-alerts/internal/storage"
)

// Backfill fetches historical rates window by window and stores them.
// Unlike the service loop it runs once and reports, making it suitable
// for seeding a fresh database.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		var closeStore func()
		var err error
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		defer closeStore()
	}

	source := a.newFetcher()
	windows := fetcher.MonthWindows(from, to)

	stored := 0
	failed := 0
	for _, window := range windows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		days, err := source.FetchRates(ctx, window)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).
				Time("window_start", window.Start).
				Msg("backfill window failed")
			continue
		}

		for _, day := range days {
			if opts.DryRun {
				stored++
				continue
			}
			rate := storage.MetalRate{
				Date:      day.Date,
				Gold:      day.Gold,
				Silver:    day.Silver,
				Platinum:  day.Platinum,
				Palladium: day.Palladium,
			}
			if err := store.InsertRate(ctx, rate); err != nil {
				failed++
				a.Logger.Error().Err(err).
					Time("date", day.Date).
					Msg("backfill insert failed")
				continue
			}
			stored++
		}
	}

	a.Logger.Info().
		Int("windows", len(windows)).
		Int("stored", stored).
		Int("failed", failed).
		Msg("backfill finished")
	if failed > 0 {
		return errors.New("some windows failed to backfill; check the logs")
	}
	return nil
}
