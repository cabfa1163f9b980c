/*
maintenance.go - One-time settlement-reference backfill and deduplication

PURPOSE:
  Before the settlement-reference idempotency guard existed, webhook retries
  could create duplicate ticket-sale entries, and older entries were written
  without a reference at all. This admin-invoked operation repairs that
  history:

    1. BACKFILL: ticket-sale entries missing a reference get it copied from
       the originating ticket's payment. Entries whose source payment has no
       reference (legacy provider) are left untouched; a reference is never
       guessed or fabricated. When the payment's reference is already held
       by another entry (a retry left both a ref-bearing entry and an
       orphan for the same ticket), the conflict is resolved keep-newest
       right here, so the run still converges.
    2. DEDUP: for every reference with more than one entry, the newest entry
       (entry date descending, creation time as tiebreak) is kept and the
       rest are deleted.
    3. VERIFY: assert no reference maps to more than one entry; report
       counts by type and the before/after orphan counts.

IDEMPOTENCE:
  Running the operation twice in a row must produce the same end state as
  running it once. Each step is individually idempotent, so re-runs on a
  clean store change nothing.

SEE ALSO:
  - store.go: MaintenanceStore, the narrow surface this operates on
  - ledger.go: The idempotency guard that makes this a one-time repair
*/
package ledger

import (
	"context"
	"errors"
	"sort"
)

// MaintenanceResult is the admin-facing report of one maintenance run.
type MaintenanceResult struct {
	Backfilled   int // entries that received a reference
	SkippedNoRef int // entries left orphaned: source payment has no reference

	DuplicateRefs  int // references that had more than one entry
	DeletedEntries int

	OrphansBefore int // entries missing a reference before the run
	OrphansAfter  int

	CountsByType map[EntryType]int
	Verified     bool // no reference maps to >1 entry after the run
}

// Maintenance performs the backfill/dedup/verify operation.
type Maintenance struct {
	Entries MaintenanceStore
	Sources SourceStore
}

func NewMaintenance(entries MaintenanceStore, sources SourceStore) *Maintenance {
	return &Maintenance{Entries: entries, Sources: sources}
}

// Run executes backfill, dedup, and verify in order and returns the
// combined report. Safe to re-run: a second invocation on the resulting
// state is a no-op.
func (m *Maintenance) Run(ctx context.Context) (*MaintenanceResult, error) {
	result := &MaintenanceResult{}

	orphans, err := m.Entries.EntriesMissingSettlementRef(ctx, EntryTicketSale)
	if err != nil {
		return nil, err
	}
	result.OrphansBefore = len(orphans)

	var backfillDeleted int
	result.Backfilled, result.SkippedNoRef, backfillDeleted, err = m.BackfillSettlementRefs(ctx)
	if err != nil {
		return nil, err
	}

	result.DuplicateRefs, result.DeletedEntries, err = m.DeduplicateEntries(ctx)
	if err != nil {
		return nil, err
	}
	result.DeletedEntries += backfillDeleted

	result.OrphansAfter, result.CountsByType, result.Verified, err = m.Verify(ctx)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// BackfillSettlementRefs populates missing references from the originating
// ticket's payment. Returns (backfilled, skipped, deleted).
//
// When the payment's reference is already taken, a ref-bearing entry and
// this orphan describe the same sale. The store rejects the write, and
// the conflict is resolved keep-newest: the newest of the contenders
// survives, the rest are deleted, and if the survivor is the orphan it
// receives the reference.
func (m *Maintenance) BackfillSettlementRefs(ctx context.Context) (int, int, int, error) {
	orphans, err := m.Entries.EntriesMissingSettlementRef(ctx, EntryTicketSale)
	if err != nil {
		return 0, 0, 0, err
	}

	var backfilled, skipped, deleted int
	for _, e := range orphans {
		if e.TicketID == "" {
			skipped++
			continue
		}
		ticket, err := m.Sources.GetTicketSale(ctx, e.TicketID)
		if err != nil {
			return backfilled, skipped, deleted, err
		}
		if ticket == nil || ticket.SettlementRef == "" {
			// Legacy provider: nothing valid to copy, never fabricate.
			skipped++
			continue
		}
		err = m.Entries.SetSettlementRef(ctx, e.ID, ticket.SettlementRef)
		if errors.Is(err, ErrDuplicateSettlement) {
			kept, removed, rerr := m.resolveRefConflict(ctx, e, ticket.SettlementRef)
			if rerr != nil {
				return backfilled, skipped, deleted, rerr
			}
			deleted += removed
			if kept {
				backfilled++
			}
			continue
		}
		if err != nil {
			return backfilled, skipped, deleted, err
		}
		backfilled++
	}
	return backfilled, skipped, deleted, nil
}

// resolveRefConflict settles a reference contested between an orphan and
// the entries already holding it. The newest contender wins (entry date
// descending, creation time as tiebreak). Returns whether the orphan won
// the reference and how many entries were deleted.
func (m *Maintenance) resolveRefConflict(ctx context.Context, orphan LedgerEntry, ref string) (bool, int, error) {
	groups, err := m.Entries.EntriesBySettlementRef(ctx, EntryTicketSale)
	if err != nil {
		return false, 0, err
	}

	contenders := append(groups[ref], orphan)
	sort.Slice(contenders, func(i, j int) bool {
		if !contenders[i].EntryDate.Equal(contenders[j].EntryDate) {
			return contenders[i].EntryDate.After(contenders[j].EntryDate)
		}
		return contenders[i].CreatedAt.After(contenders[j].CreatedAt)
	})

	doomed := make([]EntryID, 0, len(contenders)-1)
	for _, c := range contenders[1:] {
		doomed = append(doomed, c.ID)
	}
	if err := m.Entries.DeleteEntries(ctx, doomed); err != nil {
		return false, 0, err
	}

	if contenders[0].ID != orphan.ID {
		return false, len(doomed), nil
	}
	// The orphan outlived the ref holder; the reference is free now.
	if err := m.Entries.SetSettlementRef(ctx, orphan.ID, ref); err != nil {
		return false, len(doomed), err
	}
	return true, len(doomed), nil
}

// DeduplicateEntries keeps the single newest entry per settlement reference
// and deletes the rest. Returns (references deduplicated, entries deleted).
func (m *Maintenance) DeduplicateEntries(ctx context.Context) (int, int, error) {
	groups, err := m.Entries.EntriesBySettlementRef(ctx, EntryTicketSale)
	if err != nil {
		return 0, 0, err
	}

	var dupRefs, deleted int
	for _, entries := range groups {
		if len(entries) < 2 {
			continue
		}
		dupRefs++

		// Newest first: entry date descending, creation time as tiebreak.
		sort.Slice(entries, func(i, j int) bool {
			if !entries[i].EntryDate.Equal(entries[j].EntryDate) {
				return entries[i].EntryDate.After(entries[j].EntryDate)
			}
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		})

		doomed := make([]EntryID, 0, len(entries)-1)
		for _, e := range entries[1:] {
			doomed = append(doomed, e.ID)
		}
		if err := m.Entries.DeleteEntries(ctx, doomed); err != nil {
			return dupRefs, deleted, err
		}
		deleted += len(doomed)
	}
	return dupRefs, deleted, nil
}

// Verify asserts that no settlement reference maps to more than one entry
// and reports remaining orphan and per-type counts.
func (m *Maintenance) Verify(ctx context.Context) (int, map[EntryType]int, bool, error) {
	counts := make(map[EntryType]int)
	verified := true

	for _, t := range EntryTypes() {
		groups, err := m.Entries.EntriesBySettlementRef(ctx, t)
		if err != nil {
			return 0, nil, false, err
		}
		for _, entries := range groups {
			counts[t] += len(entries)
			if len(entries) > 1 {
				verified = false
			}
		}
		orphans, err := m.Entries.EntriesMissingSettlementRef(ctx, t)
		if err != nil {
			return 0, nil, false, err
		}
		counts[t] += len(orphans)
	}

	saleOrphans, err := m.Entries.EntriesMissingSettlementRef(ctx, EntryTicketSale)
	if err != nil {
		return 0, nil, false, err
	}
	return len(saleOrphans), counts, verified, nil
}
