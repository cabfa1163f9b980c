/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the boundary between the bookkeeping logic and the database so the
  engine can be tested against an in-memory fake and run against SQLite (or
  any relational store) in production. The reconciliation engine and balance
  accessor only ever see these interfaces, never a concrete client.

KEY INTERFACES:
  Store:            Ledger entry persistence (append, query, grouped sums)
  BalanceStore:     Atomic three-bucket balance mutation
  SourceStore:      Source transactions (tickets, refunds, withdrawals)
  OrganizerStore:   Organizer account records
  MaintenanceStore: The backfill/dedup surface (the ONLY place deletes exist)
  TxStore:          Transactional composition of the above

APPEND-ONLY CONTRACT:
  Store has no update or delete methods. The two sanctioned exceptions live
  on MaintenanceStore and are restricted to the documented one-time
  maintenance operation: a settlement-reference backfill and a
  duplicate-entry cleanup.

ATOMIC PAIRING:
  A balance mutation and the ledger entry recording it must commit together.
  WithTx gives callers a single transactional view over entries, balances,
  and source rows; a failure anywhere rolls back everything.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - ledger/store: In-memory, for tests and demos

SEE ALSO:
  - ledger.go: EntryLedger, the idempotency guard over Store
  - settlement: The collaborator boundary that uses WithTx
*/
package ledger

import "context"

// =============================================================================
// ENTRY STORE
// =============================================================================

// EntryFilter narrows an entry query. Nil fields mean "no constraint".
type EntryFilter struct {
	Type   *EntryType
	Period *Period
}

// Store handles ledger entry persistence. Append-only.
type Store interface {
	// AppendEntry persists an entry. Fails with ErrDuplicateSettlement if the
	// settlement reference is already recorded.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// Entries returns an organizer's entries matching the filter, ordered by
	// entry date ascending (then creation time).
	Entries(ctx context.Context, id OrganizerID, f EntryFilter) ([]LedgerEntry, error)

	// SettlementRefExists reports whether an entry exists for the reference,
	// and which one.
	SettlementRefExists(ctx context.Context, ref string) (bool, EntryID, error)

	// SumByType returns the per-type sum of entry amounts (positive
	// magnitudes; adjustments keep their sign) for an organizer, optionally
	// restricted to a period. This grouped-sum path is what the platform
	// sweep reconciles with.
	SumByType(ctx context.Context, id OrganizerID, p *Period) (map[EntryType]Money, error)
}

// =============================================================================
// BALANCE STORE
// =============================================================================

// BalanceStore maintains the three-bucket balance per organizer.
//
// Credit and Debit are the only mutations: no caller may ever set a balance
// directly, so the bucket values always remain reconstructible from entries.
// Implementations must serialize mutations per organizer and must reject a
// debit that would drive the bucket negative, leaving it unchanged.
type BalanceStore interface {
	GetBalances(ctx context.Context, id OrganizerID) (Balances, error)

	// Credit adds amount to the bucket and returns the resulting snapshot.
	Credit(ctx context.Context, id OrganizerID, bucket Bucket, amount Money) (Balances, error)

	// Debit subtracts amount from the bucket and returns the resulting
	// snapshot. Fails with InsufficientBalanceError if the result would be
	// negative.
	Debit(ctx context.Context, id OrganizerID, bucket Bucket, amount Money) (Balances, error)
}

// =============================================================================
// SOURCE TRANSACTIONS
// =============================================================================

// SourceStore persists the transactions that ledger entries are derived
// from. Reconciliation reads the settled subset as its independent source
// of truth.
type SourceStore interface {
	SaveTicketSale(ctx context.Context, t TicketSale) error
	SaveRefund(ctx context.Context, r Refund) error
	SaveWithdrawal(ctx context.Context, w Withdrawal) error

	GetTicketSale(ctx context.Context, id string) (*TicketSale, error)

	SettledTicketSales(ctx context.Context, id OrganizerID, p Period) ([]TicketSale, error)
	ProcessedRefunds(ctx context.Context, id OrganizerID, p Period) ([]Refund, error)
	CompletedWithdrawals(ctx context.Context, id OrganizerID, p Period) ([]Withdrawal, error)
}

// =============================================================================
// ORGANIZER STORE
// =============================================================================

type OrganizerStore interface {
	SaveOrganizer(ctx context.Context, o OrganizerAccount) error

	// GetOrganizer returns nil (no error) when the organizer does not exist.
	GetOrganizer(ctx context.Context, id OrganizerID) (*OrganizerAccount, error)

	ListOrganizers(ctx context.Context) ([]OrganizerAccount, error)

	// OrganizersWithBalance returns the organizers whose buckets are not all
	// zero. The platform sweep only checks these.
	OrganizersWithBalance(ctx context.Context) ([]OrganizerID, error)
}

// =============================================================================
// MAINTENANCE STORE - backfill/dedup only
// =============================================================================

// MaintenanceStore exposes the narrow surface the one-time backfill/dedup
// operation needs. Nothing else in the system may mutate or delete entries.
type MaintenanceStore interface {
	// EntriesMissingSettlementRef returns entries of the given type with no
	// settlement reference, entry date ascending.
	EntriesMissingSettlementRef(ctx context.Context, t EntryType) ([]LedgerEntry, error)

	// SetSettlementRef performs the one-time backfill of a missing reference.
	// Fails with ErrEntryNotFound for an unknown entry.
	SetSettlementRef(ctx context.Context, id EntryID, ref string) error

	// EntriesBySettlementRef groups all entries of the given type by their
	// non-empty settlement reference.
	EntriesBySettlementRef(ctx context.Context, t EntryType) (map[string][]LedgerEntry, error)

	// DeleteEntries removes entries by ID. Exists solely for duplicate
	// cleanup; see Maintenance.DeduplicateEntries.
	DeleteEntries(ctx context.Context, ids []EntryID) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// LedgerStore is the combined view a settlement operation works against:
// entries, balances, and source rows in one place.
type LedgerStore interface {
	Store
	BalanceStore
	SourceStore
}

// TxStore wraps LedgerStore with transaction support. A balance mutation and
// its ledger append are always paired inside one WithTx call.
type TxStore interface {
	LedgerStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}
