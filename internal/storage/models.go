package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetalRate represents the published rates for one calendar day. A nil metal
// value means the source had not published that series for the date, which
// is distinct from a zero rate.
type MetalRate struct {
	Date      time.Time
	Gold      *decimal.Decimal
	Silver    *decimal.Decimal
	Platinum  *decimal.Decimal
	Palladium *decimal.Decimal
	CreatedAt time.Time
}

// Complete reports whether every metal series is present for the day.
func (r MetalRate) Complete() bool {
	return r.Gold != nil && r.Silver != nil && r.Platinum != nil && r.Palladium != nil
}

// Subscription is one notification recipient. Rows are never deleted;
// unreachable or unsubscribed recipients are kept with is_active=false.
type Subscription struct {
	ChatID     int64
	Active     bool
	Pending    bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// SubscribeResult reports the outcome of a subscribe/unsubscribe transition.
type SubscribeResult int

const (
	// ResultOK means the transition was applied.
	ResultOK SubscribeResult = iota
	// ResultAlready means the subscription was already in the requested state.
	ResultAlready
)

func (r SubscribeResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultAlready:
		return "already"
	default:
		return "unknown"
	}
}

// NormalizeDate truncates a timestamp to its UTC calendar day.
func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
