/*
summary.go - Per-type ledger aggregates for reporting

PURPOSE:
  Serves read-only dashboard aggregates: how much moved through an organizer
  account in a day or an arbitrary window, broken down by entry type.
  Summaries are derived fresh on every call and never persisted.

SEE ALSO:
  - reconcile.go: Uses the same entry history for drift detection
*/
package ledger

import (
	"context"
	"time"
)

// TypeSummary is the count and total for one entry type in a window.
type TypeSummary struct {
	Type  EntryType
	Count int
	Total Money
}

// Summary aggregates an organizer's ledger activity over a period.
type Summary struct {
	OrganizerID OrganizerID
	Period      Period

	// ByType holds one row per entry type, in canonical order, including
	// zero rows so dashboards render a stable table.
	ByType []TypeSummary

	// GrossCredits is everything that increased pending+available;
	// GrossDebits everything that decreased it. NetMovement is the signed sum.
	GrossCredits Money
	GrossDebits  Money
	NetMovement  Money

	EntryCount int
}

// Summarizer computes read-only aggregates from the ledger.
type Summarizer struct {
	Entries Store
	Config  Config
}

func NewSummarizer(entries Store, cfg Config) *Summarizer {
	return &Summarizer{Entries: entries, Config: cfg}
}

// PeriodSummary aggregates entries over an arbitrary window.
func (s *Summarizer) PeriodSummary(ctx context.Context, id OrganizerID, p Period) (*Summary, error) {
	if p.End.Before(p.Start) {
		return nil, ErrInvalidPeriod
	}

	entries, err := s.Entries.Entries(ctx, id, EntryFilter{Period: &p})
	if err != nil {
		return nil, err
	}

	zero := NewMoney(0, s.Config.Currency)
	counts := make(map[EntryType]int)
	totals := make(map[EntryType]Money)
	for _, t := range EntryTypes() {
		totals[t] = zero
	}

	summary := &Summary{
		OrganizerID:  id,
		Period:       p,
		GrossCredits: zero,
		GrossDebits:  zero,
		NetMovement:  zero,
		EntryCount:   len(entries),
	}

	for _, e := range entries {
		counts[e.Type]++
		totals[e.Type] = totals[e.Type].Add(e.Amount)

		signed := e.SignedAmount()
		summary.NetMovement = summary.NetMovement.Add(signed)
		if signed.IsNegative() {
			summary.GrossDebits = summary.GrossDebits.Add(signed.Neg())
		} else {
			summary.GrossCredits = summary.GrossCredits.Add(signed)
		}
	}

	for _, t := range EntryTypes() {
		summary.ByType = append(summary.ByType, TypeSummary{
			Type:  t,
			Count: counts[t],
			Total: totals[t],
		})
	}

	return summary, nil
}

// DailySummary aggregates one UTC calendar day.
func (s *Summarizer) DailySummary(ctx context.Context, id OrganizerID, day time.Time) (*Summary, error) {
	return s.PeriodSummary(ctx, id, DayOf(day))
}
