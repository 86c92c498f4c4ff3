package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"metal-rates-alerts/internal/storage"
)

// Detector watches the store's latest date and, on a strict advance,
// flags every active subscriber as owed a notification. It is the only
// writer of the notification cursor.
type Detector struct {
	rates    storage.RateStore
	subs     storage.SubscriptionStore
	settings storage.SettingsStore
	interval time.Duration
	logger   zerolog.Logger
}

// NewDetector constructs the change detector loop.
func NewDetector(
	rates storage.RateStore,
	subs storage.SubscriptionStore,
	settings storage.SettingsStore,
	interval time.Duration,
	logger zerolog.Logger,
) *Detector {
	return &Detector{
		rates:    rates,
		subs:     subs,
		settings: settings,
		interval: interval,
		logger:   logger.With().Str("component", "detector").Logger(),
	}
}

// Run polls until the context is cancelled. It always sleeps before
// re-polling, whichever branch the check took.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info().Msg("change detector started")
	for {
		if err := d.checkOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("change detection failed")
		}
		if !sleepCtx(ctx, d.interval) {
			return ctx.Err()
		}
	}
}

// checkOnce fires the fan-out reset when the latest stored date strictly
// exceeds the last observed one. Equality or regression never fires, so a
// date advance resets the pending flags exactly once.
func (d *Detector) checkOnce(ctx context.Context) error {
	latest, err := d.rates.LatestDate(ctx)
	if err != nil {
		return err
	}

	observed, err := d.settings.NotifiedDate(ctx)
	if err != nil {
		return err
	}
	if observed != nil && !latest.After(*observed) {
		return nil
	}

	flipped, err := d.subs.ResetAllPending(ctx)
	if err != nil {
		return err
	}
	if err := d.settings.SetNotifiedDate(ctx, latest); err != nil {
		return err
	}

	d.logger.Info().
		Time("latest", latest).
		Int64("subscribers", flipped).
		Msg("new date observed, subscribers owe a notification")
	return nil
}
