package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"metal-rates-alerts/internal/config"
	"metal-rates-alerts/internal/fetcher"
	"metal-rates-alerts/internal/storage"
)

// Ingestor drives windowed ingestion from the last stored date up to today.
// It is the single writer of the metal_rates table.
type Ingestor struct {
	fetcher fetcher.RateFetcher
	store   storage.RateStore
	cfg     config.IngestConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// NewIngestor constructs the ingestion loop.
func NewIngestor(f fetcher.RateFetcher, store storage.RateStore, cfg config.IngestConfig, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		fetcher: f,
		store:   store,
		cfg:     cfg,
		logger:  logger.With().Str("component", "ingestor").Logger(),
		now:     time.Now,
	}
}

// Run loops forever: one full pass over the gap, then a long idle sleep.
// A failed pass restarts after a medium backoff instead of terminating.
func (g *Ingestor) Run(ctx context.Context) error {
	g.logger.Info().Msg("ingestion loop started")
	for {
		if err := g.runPass(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Error().Err(err).Msg("ingestion pass failed")
			if !sleepCtx(ctx, g.cfg.ErrorBackoff) {
				return ctx.Err()
			}
			continue
		}

		if !sleepCtx(ctx, g.cfg.IdleInterval) {
			return ctx.Err()
		}
	}
}

// runPass covers the gap between the last stored date and today.
func (g *Ingestor) runPass(ctx context.Context) error {
	start, err := g.store.LatestDate(ctx)
	if err != nil {
		return err
	}

	countBefore, err := g.store.CountRates(ctx)
	if err != nil {
		return err
	}

	today := storage.NormalizeDate(g.now())
	windows := fetcher.MonthWindows(start, today)
	g.logger.Info().
		Time("from", start).
		Time("to", today).
		Int("windows", len(windows)).
		Msg("starting ingestion pass")

	for idx, window := range windows {
		if idx > 0 {
			// Rate courtesy to the source between windows.
			if !sleepCtx(ctx, g.cfg.WindowPause) {
				return ctx.Err()
			}
		}
		final := idx == len(windows)-1
		if err := g.processWindow(ctx, window, final); err != nil {
			return err
		}
	}

	countAfter, err := g.store.CountRates(ctx)
	if err != nil {
		return err
	}
	if added := countAfter - countBefore; added > 0 {
		g.logger.Info().Int64("added", added).Msg("ingestion pass complete")
	} else {
		g.logger.Info().Msg("ingestion pass complete, no new records")
	}
	return nil
}

// processWindow fetches one window and stores its records. Transient
// failures retry the same window indefinitely; the loop never advances past
// a window it could not fetch.
func (g *Ingestor) processWindow(ctx context.Context, window fetcher.Window, final bool) error {
	emptyRetries := 0

	for {
		days, err := g.fetcher.FetchRates(ctx, window)
		switch {
		case err == nil:
		case fetcher.IsParseError(err):
			g.logger.Warn().Err(err).
				Time("window_start", window.Start).
				Msg("malformed payload, treating window as empty")
			return nil
		case fetcher.IsTransient(err):
			g.logger.Warn().Err(err).
				Time("window_start", window.Start).
				Dur("backoff", g.cfg.TransientBackoff).
				Msg("transient fetch failure, will retry the same window")
			if !sleepCtx(ctx, g.cfg.TransientBackoff) {
				return ctx.Err()
			}
			continue
		default:
			return err
		}

		// An empty past month is suspicious: the source has published data
		// for every working day for decades. Only the current, still
		// filling month may legitimately be empty.
		if len(days) == 0 && !final {
			if emptyRetries < g.cfg.EmptyRetries {
				emptyRetries++
				g.logger.Warn().
					Time("window_start", window.Start).
					Int("attempt", emptyRetries).
					Msg("no data for a past window, retrying")
				if !sleepCtx(ctx, g.cfg.EmptyBackoff) {
					return ctx.Err()
				}
				continue
			}
			g.logger.Warn().
				Time("window_start", window.Start).
				Msg("window still empty after retries, advancing")
			return nil
		}

		if err := g.storeDays(ctx, days); err != nil {
			if errors.Is(err, storage.ErrBusy) {
				g.logger.Warn().
					Time("window_start", window.Start).
					Msg("store busy, will retry the same window")
				if !sleepCtx(ctx, g.cfg.TransientBackoff) {
					return ctx.Err()
				}
				continue
			}
			return err
		}

		return nil
	}
}

// storeDays upserts each record; re-running it after a partial failure is
// safe because the insert is first-write-wins.
func (g *Ingestor) storeDays(ctx context.Context, days []fetcher.DayRates) error {
	for _, day := range days {
		rate := storage.MetalRate{
			Date:      day.Date,
			Gold:      day.Gold,
			Silver:    day.Silver,
			Platinum:  day.Platinum,
			Palladium: day.Palladium,
		}
		if err := g.store.InsertRate(ctx, rate); err != nil {
			return err
		}
	}
	return nil
}
