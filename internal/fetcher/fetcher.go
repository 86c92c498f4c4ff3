package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DayRates is one parsed calendar day from the source. A nil metal means
// the source had not published that series for the date.
type DayRates struct {
	Date      time.Time
	Gold      *decimal.Decimal
	Silver    *decimal.Decimal
	Platinum  *decimal.Decimal
	Palladium *decimal.Decimal
}

// RateFetcher retrieves the published rates for one request window. An
// empty result is a valid outcome for a window with no published data.
type RateFetcher interface {
	FetchRates(ctx context.Context, window Window) ([]DayRates, error)
}
