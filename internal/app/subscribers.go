package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Subscribers prints every registry row, active or not.
func (a *App) Subscribers(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list subscribers")
	}
	defer closeStore()

	subs, err := store.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Fprintln(os.Stdout, "no subscribers found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Chat ID\tActive\tPending\tSince\tModified")

	for _, sub := range subs {
		fmt.Fprintf(
			writer,
			"%d\t%t\t%t\t%s\t%s\n",
			sub.ChatID,
			sub.Active,
			sub.Pending,
			sub.CreatedAt.UTC().Format(time.RFC3339),
			sub.ModifiedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}

// Subscribe registers a chat from the command line. Useful for wiring
// up a channel the bot cannot see a /subscribe message from.
func (a *App) Subscribe(ctx context.Context, chatID int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot subscribe")
	}
	defer closeStore()

	result, err := store.Subscribe(ctx, chatID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "chat %d: %s\n", chatID, result)
	return nil
}

// Unsubscribe deactivates a chat from the command line.
func (a *App) Unsubscribe(ctx context.Context, chatID int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot unsubscribe")
	}
	defer closeStore()

	result, err := store.Unsubscribe(ctx, chatID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "chat %d: %s\n", chatID, result)
	return nil
}
