package energy

import "time"

// Window is one bounded slice of an ingestion date range, half-open
// [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Span returns the window's duration.
func (w Window) Span() time.Duration {
	return w.End.Sub(w.Start)
}

// PlanWindows splits [start, end) into ordered, contiguous, non-overlapping
// windows of at most max each. The first window starts at start, the last one
// ends exactly at end. A degenerate range (start >= end) yields no windows.
func PlanWindows(start, end time.Time, max time.Duration) []Window {
	if max <= 0 || !start.Before(end) {
		return nil
	}

	var windows []Window
	for cur := start; cur.Before(end); {
		next := cur.Add(max)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cur, End: next})
		cur = next
	}
	return windows
}

// MaxWindowFor derives a window width from the upstream page cap and the
// expected number of records per day (samples per day times requested
// categories). The width is halved as a safety margin against dense days and
// floored to whole days, never less than one day. Keeping windows under the
// cap matters because the upstream silently truncates past it.
func MaxWindowFor(pageCap, recordsPerDay int) time.Duration {
	if pageCap <= 0 || recordsPerDay <= 0 {
		return 24 * time.Hour
	}
	days := pageCap / recordsPerDay / 2
	if days < 1 {
		days = 1
	}
	return time.Duration(days) * 24 * time.Hour
}
