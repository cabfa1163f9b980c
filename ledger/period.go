package ledger

import "time"

// =============================================================================
// PERIOD - Time boundary for reconciliation and summaries
// =============================================================================

// Period is an inclusive [Start, End] window. Reconciliation and summaries
// are always computed for a period; when callers omit one, the engine falls
// back to the trailing default window (see Config.DefaultWindowDays).
type Period struct {
	Start time.Time
	End   time.Time
}

func NewPeriod(start, end time.Time) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// TrailingDays returns the window covering the n days up to asOf.
func TrailingDays(asOf time.Time, n int) Period {
	return Period{Start: asOf.AddDate(0, 0, -n), End: asOf}
}

// DayOf returns the period covering the single UTC calendar day of t.
func DayOf(t time.Time) Period {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.Add(24*time.Hour - time.Nanosecond)}
}

// Contains returns true if the instant falls within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + "]"
}
