package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"metal-rates-alerts/internal/storage"
)

// RenderRate composes the notification body for one daily record, with a
// per-metal delta against the previous record when available.
func RenderRate(current storage.MetalRate, previous *storage.MetalRate) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("<b>Metal rates for %s</b>\n", current.Date.Format(time.DateOnly)))

	type series struct {
		name string
		cur  *decimal.Decimal
		prev *decimal.Decimal
	}

	metals := []series{
		{"Gold", current.Gold, prevValue(previous, func(r *storage.MetalRate) *decimal.Decimal { return r.Gold })},
		{"Silver", current.Silver, prevValue(previous, func(r *storage.MetalRate) *decimal.Decimal { return r.Silver })},
		{"Platinum", current.Platinum, prevValue(previous, func(r *storage.MetalRate) *decimal.Decimal { return r.Platinum })},
		{"Palladium", current.Palladium, prevValue(previous, func(r *storage.MetalRate) *decimal.Decimal { return r.Palladium })},
	}

	for _, m := range metals {
		builder.WriteString(fmt.Sprintf("%s: %s", m.name, formatValue(m.cur)))
		if delta := formatDelta(m.cur, m.prev); delta != "" {
			builder.WriteString(" (" + delta + ")")
		}
		builder.WriteString("\n")
	}

	return strings.TrimRight(builder.String(), "\n")
}

func prevValue(prev *storage.MetalRate, pick func(*storage.MetalRate) *decimal.Decimal) *decimal.Decimal {
	if prev == nil {
		return nil
	}
	return pick(prev)
}

func formatValue(v *decimal.Decimal) string {
	if v == nil {
		return "n/a"
	}
	return v.StringFixed(2)
}

func formatDelta(cur, prev *decimal.Decimal) string {
	if cur == nil || prev == nil {
		return ""
	}
	diff := cur.Sub(*prev)
	if diff.Sign() >= 0 {
		return "+" + diff.StringFixed(2)
	}
	return diff.StringFixed(2)
}
