package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints the most recent stored rates.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show rates")
	}
	defer closeStore()

	rates, err := store.LastRates(ctx, opts.Limit, opts.CompleteOnly)
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		fmt.Fprintln(os.Stdout, "no rates found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tGold\tSilver\tPlatinum\tPalladium")

	for _, rate := range rates {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			rate.Date.Format(time.DateOnly),
			formatDecimal(rate.Gold),
			formatDecimal(rate.Silver),
			formatDecimal(rate.Platinum),
			formatDecimal(rate.Palladium),
		)
	}

	writer.Flush()
	return nil
}

func formatDecimal(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}
