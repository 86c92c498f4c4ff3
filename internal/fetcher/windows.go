package fetcher

import "time"

// Window is a half-open [Start, End) one-month interval used as the unit of
// source requests. Start is always the first day of a calendar month.
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthWindows produces the ordered month-aligned windows covering
// [start, end] with no gaps and no overlaps. The final window is the first
// whose End exceeds end. Deterministic and restartable: callers may re-run
// it with an advanced start date.
func MonthWindows(start, end time.Time) []Window {
	cursor := monthStart(start)
	end = dayStart(end)

	var windows []Window
	for {
		next := cursor.AddDate(0, 1, 0)
		windows = append(windows, Window{Start: cursor, End: next})
		if next.After(end) {
			return windows
		}
		cursor = next
	}
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
