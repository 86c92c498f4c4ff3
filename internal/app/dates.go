package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// DatesOptions configure the dates command.
type DatesOptions struct {
	Year  int
	Limit int
}

// Dates prints stored dates: a whole calendar year when Year is set,
// otherwise the most recent Limit entries.
func (a *App) Dates(ctx context.Context, opts DatesOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list dates")
	}
	defer closeStore()

	var dates []time.Time
	if opts.Year > 0 {
		dates, err = store.DatesInYear(ctx, opts.Year)
	} else {
		dates, err = store.LastDates(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Fprintln(os.Stdout, "no dates found")
		return nil
	}

	for _, d := range dates {
		fmt.Fprintln(os.Stdout, d.Format(time.DateOnly))
	}
	return nil
}
