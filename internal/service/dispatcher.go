package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"metal-rates-alerts/internal/alerting"
	"metal-rates-alerts/internal/storage"
)

// Dispatcher fans the latest record out to every active subscriber owed a
// notification. Each subscriber gets at most one delivery attempt per
// sweep; unreachable recipients are deactivated.
type Dispatcher struct {
	rates     storage.RateStore
	subs      storage.SubscriptionStore
	deliverer alerting.Deliverer
	interval  time.Duration
	sendDelay time.Duration
	logger    zerolog.Logger
}

// NewDispatcher constructs the notification dispatcher loop.
func NewDispatcher(
	rates storage.RateStore,
	subs storage.SubscriptionStore,
	deliverer alerting.Deliverer,
	interval time.Duration,
	sendDelay time.Duration,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		rates:     rates,
		subs:      subs,
		deliverer: deliverer,
		interval:  interval,
		sendDelay: sendDelay,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run polls until the context is cancelled, sleeping between sweeps.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Msg("dispatcher started")
	for {
		if err := d.sweep(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("dispatch sweep failed")
		}
		if !sleepCtx(ctx, d.interval) {
			return ctx.Err()
		}
	}
}

// sweep delivers the latest record to every pending subscriber.
func (d *Dispatcher) sweep(ctx context.Context) error {
	pending, err := d.subs.ActivePending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	latest, err := d.rates.LatestDate(ctx)
	if err != nil {
		return err
	}

	record, err := d.rates.GetRate(ctx, latest)
	if err != nil {
		return err
	}
	if record == nil {
		// Pending subscribers but nothing stored yet; the next sweep
		// will pick them up once ingestion catches up.
		d.logger.Debug().Time("latest", latest).Msg("no record for the latest date, skipping sweep")
		return nil
	}

	previous, err := d.previousRecord(ctx, latest)
	if err != nil {
		return err
	}

	text := alerting.RenderRate(*record, previous)

	d.logger.Info().
		Int("subscribers", len(pending)).
		Time("date", record.Date).
		Msg("dispatching notifications")

	for i, sub := range pending {
		if i > 0 {
			// Outbound rate limit towards the delivery channel.
			if !sleepCtx(ctx, d.sendDelay) {
				return ctx.Err()
			}
		}
		d.deliverOne(ctx, sub, text)
	}
	return nil
}

// deliverOne attempts a single delivery and applies the failure taxonomy.
func (d *Dispatcher) deliverOne(ctx context.Context, sub storage.Subscription, text string) {
	err := d.deliverer.Deliver(ctx, sub.ChatID, text)
	switch {
	case err == nil:
		if markErr := d.subs.MarkSent(ctx, sub.ChatID); markErr != nil {
			// Pending stays set; the subscriber may get a duplicate on the
			// next sweep, which beats losing the notification.
			d.logger.Error().Err(markErr).Int64("chat_id", sub.ChatID).Msg("failed to mark subscriber as sent")
		}
	case alerting.IsPermanent(err):
		d.logger.Warn().Err(err).Int64("chat_id", sub.ChatID).Msg("recipient unreachable, deactivating subscription")
		if deactErr := d.subs.Deactivate(ctx, sub.ChatID); deactErr != nil {
			d.logger.Error().Err(deactErr).Int64("chat_id", sub.ChatID).Msg("failed to deactivate subscriber")
		}
	default:
		d.logger.Warn().Err(err).Int64("chat_id", sub.ChatID).Msg("delivery failed, will retry on a later sweep")
	}
}

func (d *Dispatcher) previousRecord(ctx context.Context, latest time.Time) (*storage.MetalRate, error) {
	prevDate, _, err := d.rates.PrevNextDates(ctx, latest)
	if err != nil {
		return nil, err
	}
	if prevDate == nil {
		return nil, nil
	}
	return d.rates.GetRate(ctx, *prevDate)
}
