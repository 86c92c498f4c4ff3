package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"metal-rates-alerts/internal/alerting"
	"metal-rates-alerts/internal/storage"
)

// SendTest renders the latest stored rate and delivers it to one chat,
// bypassing the registry. Lets an operator verify the bot token and
// message formatting without waiting for a new publication.
func (a *App) SendTest(ctx context.Context, chatID int64) error {
	deliverer := a.newDeliverer()
	if deliverer == nil {
		return errors.New("telegram.bot_token not configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; no rate to send")
	}
	defer closeStore()

	latest, err := store.LatestDate(ctx)
	if err != nil {
		return err
	}

	current, err := store.GetRate(ctx, latest)
	if err != nil {
		return err
	}
	if current == nil {
		return errors.New("store is empty; backfill or run the service first")
	}

	var previous *storage.MetalRate
	prevDate, _, err := store.PrevNextDates(ctx, latest)
	if err != nil {
		return err
	}
	if prevDate != nil {
		previous, err = store.GetRate(ctx, *prevDate)
		if err != nil {
			return err
		}
	}

	text := alerting.RenderRate(*current, previous)
	if err := deliverer.Deliver(ctx, chatID, text); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "delivered rates for %s to chat %d\n", latest.Format(time.DateOnly), chatID)
	return nil
}
