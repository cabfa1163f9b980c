/*
ledger.go - Append-only ledger entry store

PURPOSE:
  The EntryLedger is the immutable record of every financial event on an
  organizer account: ticket sales, refunds, withdrawals, chargebacks, and
  manual adjustments. Each entry carries the balance snapshot taken right
  after it applied, so any stored balance can be audited against history.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No update API. The single exception is the one-time
     settlement-reference backfill in maintenance.go.
  2. ONE ENTRY PER SETTLEMENT: The payment provider's settlement reference
     is unique across entries. A webhook retry that replays a settlement
     gets ErrDuplicateSettlement and changes nothing.
  3. EXACTLY ONE ENTRY PER EVENT: Created atomically with the balance
     mutation it records (see settlement.Processor).

WHY APPEND-ONLY?
  - Audit: the sum of entries must always explain the stored balance
  - Reconciliation: drift detection depends on history being trustworthy
  - Corrections happen through adjustment entries, not edits

SEE ALSO:
  - store.go: Persistence interface
  - maintenance.go: The documented backfill/dedup exception
*/
package ledger

import (
	"context"
	"fmt"
)

// EntryLedger enforces the idempotency guard in front of a Store.
type EntryLedger struct {
	Store Store
}

func NewEntryLedger(store Store) *EntryLedger {
	return &EntryLedger{Store: store}
}

// Append records a new entry. It rejects unknown entry types and any entry
// whose settlement reference is already recorded, so retried webhooks and
// backfills cannot double-count.
func (l *EntryLedger) Append(ctx context.Context, e LedgerEntry) error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntryType, e.Type)
	}
	if e.SettlementRef != "" {
		exists, existingID, err := l.Store.SettlementRefExists(ctx, e.SettlementRef)
		if err != nil {
			return err
		}
		if exists {
			return &DuplicateSettlementError{SettlementRef: e.SettlementRef, ExistingEntryID: existingID}
		}
	}
	return l.Store.AppendEntry(ctx, e)
}

// Query returns an organizer's entries matching the filter, entry date
// ascending. Read-only.
func (l *EntryLedger) Query(ctx context.Context, id OrganizerID, f EntryFilter) ([]LedgerEntry, error) {
	if f.Type != nil && !f.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntryType, *f.Type)
	}
	return l.Store.Entries(ctx, id, f)
}
