/*
Package sqlite provides a SQLite-backed implementation of the ledger storage
interfaces.

PURPOSE:
  Implements all persistence interfaces (ledger.Store, ledger.BalanceStore,
  ledger.SourceStore, ledger.OrganizerStore, ledger.MaintenanceStore) using
  SQLite. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table has no UPDATE path and no DELETE path, with two
  sanctioned maintenance exceptions that exist only on the MaintenanceStore
  surface:
  - SetSettlementRef: the one-time settlement-reference backfill
  - DeleteEntries: duplicate-entry cleanup

DECIMAL STORAGE:
  All monetary columns are TEXT holding decimal strings. SQLite REAL is
  binary floating point and would corrupt cent amounts, so arithmetic never
  happens in SQL: amounts are parsed with shopspring/decimal and summed in
  Go. Balance mutations are a read-modify-write under the store mutex.

KEY TABLES:
  organizers:     Account records plus the three balance buckets
  ledger_entries: Immutable record of every financial event
  tickets:        Source ticket sales (reconciliation ground truth)
  refunds:        Source refunds
  withdrawals:    Source withdrawals

INDEXES:
  - idx_entries_settlement_ref: UNIQUE where non-empty; the idempotency key
  - idx_entries_organizer_date: entry listing and period sums (hot path)
  - idx_tickets_organizer_sold: reconciliation source scans

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and crash recovery improves.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
)

// timeFormat pads fractional seconds to a fixed width so that TEXT
// comparison of stored timestamps matches chronological order.
// RFC3339Nano trims trailing zeros, which breaks lexicographic range
// scans and ORDER BY whenever sub-second precisions mix.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper works
// unchanged inside and outside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Organizer accounts with the three balance buckets.
	-- Balance columns are TEXT decimal strings; never REAL.
	CREATE TABLE IF NOT EXISTS organizers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		currency TEXT NOT NULL DEFAULT 'USD',
		pending TEXT NOT NULL DEFAULT '0',
		available TEXT NOT NULL DEFAULT '0',
		withdrawn TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		value_date TEXT NOT NULL,
		ticket_id TEXT,
		refund_id TEXT,
		withdrawal_id TEXT,
		settlement_ref TEXT,
		pending_after TEXT NOT NULL,
		available_after TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one entry per settlement reference. This is what makes
	-- webhook retries safe at the database level.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_settlement_ref
		ON ledger_entries(settlement_ref)
		WHERE settlement_ref IS NOT NULL AND settlement_ref != '';

	-- Entry listing and period sums (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_organizer_date
		ON ledger_entries(organizer_id, entry_date);
	CREATE INDEX IF NOT EXISTS idx_entries_type
		ON ledger_entries(entry_type);

	-- Source ticket sales
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL,
		event_id TEXT,
		amount_paid TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		settlement_ref TEXT,
		sold_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_organizer_sold
		ON tickets(organizer_id, sold_at);

	-- Source refunds
	CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL,
		ticket_id TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		processed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_refunds_organizer_processed
		ON refunds(organizer_id, processed_at);

	-- Source withdrawals
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		account_number TEXT,
		settlement_ref TEXT,
		requested_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_organizer_completed
		ON withdrawals(organizer_id, completed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (ledger.Store interface)
// =============================================================================

// AppendEntry adds an entry to the ledger.
func (s *Store) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db dbtx, e ledger.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries
		(id, organizer_id, entry_type, amount, currency, entry_date, value_date,
		 ticket_id, refund_id, withdrawal_id, settlement_ref,
		 pending_after, available_after, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		string(e.ID),
		string(e.OrganizerID),
		string(e.Type),
		e.Amount.Value.String(),
		e.Amount.Currency,
		e.EntryDate.UTC().Format(timeFormat),
		e.ValueDate.UTC().Format(timeFormat),
		e.TicketID,
		e.RefundID,
		e.WithdrawalID,
		e.SettlementRef,
		e.PendingAfter.Value.String(),
		e.AvailableAfter.Value.String(),
		e.Description,
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			exists, existingID, lookupErr := settlementRefExists(ctx, db, e.SettlementRef)
			if lookupErr == nil && exists {
				return &ledger.DuplicateSettlementError{SettlementRef: e.SettlementRef, ExistingEntryID: existingID}
			}
			return ledger.ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// Entries returns an organizer's entries matching the filter.
func (s *Store) Entries(ctx context.Context, id ledger.OrganizerID, f ledger.EntryFilter) ([]ledger.LedgerEntry, error) {
	return queryFilteredEntries(ctx, s.db, id, f)
}

func queryFilteredEntries(ctx context.Context, db dbtx, id ledger.OrganizerID, f ledger.EntryFilter) ([]ledger.LedgerEntry, error) {
	query := entrySelect + ` WHERE organizer_id = ?`
	args := []any{string(id)}

	if f.Type != nil {
		query += ` AND entry_type = ?`
		args = append(args, string(*f.Type))
	}
	if f.Period != nil {
		query += ` AND entry_date >= ? AND entry_date <= ?`
		args = append(args,
			f.Period.Start.UTC().Format(timeFormat),
			f.Period.End.UTC().Format(timeFormat))
	}
	query += ` ORDER BY entry_date ASC, created_at ASC`

	return queryEntries(ctx, db, query, args...)
}

// SettlementRefExists checks whether the reference is already recorded.
func (s *Store) SettlementRefExists(ctx context.Context, ref string) (bool, ledger.EntryID, error) {
	return settlementRefExists(ctx, s.db, ref)
}

func settlementRefExists(ctx context.Context, db dbtx, ref string) (bool, ledger.EntryID, error) {
	if ref == "" {
		return false, "", nil
	}

	var id string
	err := db.QueryRowContext(ctx,
		"SELECT id FROM ledger_entries WHERE settlement_ref = ? LIMIT 1", ref,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, ledger.EntryID(id), nil
}

// SumByType returns the per-type sum of entry amounts for an organizer.
// Summation happens in Go because the amounts are TEXT decimals.
func (s *Store) SumByType(ctx context.Context, id ledger.OrganizerID, p *ledger.Period) (map[ledger.EntryType]ledger.Money, error) {
	return sumByType(ctx, s.db, id, p)
}

func sumByType(ctx context.Context, db dbtx, id ledger.OrganizerID, p *ledger.Period) (map[ledger.EntryType]ledger.Money, error) {
	query := `SELECT entry_type, amount, currency FROM ledger_entries WHERE organizer_id = ?`
	args := []any{string(id)}
	if p != nil {
		query += ` AND entry_date >= ? AND entry_date <= ?`
		args = append(args,
			p.Start.UTC().Format(timeFormat),
			p.End.UTC().Format(timeFormat))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry sums: %w", err)
	}
	defer rows.Close()

	sums := make(map[ledger.EntryType]ledger.Money)
	for rows.Next() {
		var entryType, amount, currency string
		if err := rows.Scan(&entryType, &amount, &currency); err != nil {
			return nil, err
		}
		t := ledger.EntryType(entryType)
		m := ledger.MustParseMoney(amount, currency)
		if cur, ok := sums[t]; ok {
			sums[t] = cur.Add(m)
		} else {
			sums[t] = m
		}
	}
	return sums, rows.Err()
}

const entrySelect = `
	SELECT id, organizer_id, entry_type, amount, currency, entry_date, value_date,
	       ticket_id, refund_id, withdrawal_id, settlement_ref,
	       pending_after, available_after, description, created_at
	FROM ledger_entries`

func queryEntries(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.LedgerEntry, error) {
	var (
		e                                  ledger.LedgerEntry
		amount, currency                   string
		entryDate, valueDate, createdAt    string
		ticketID, refundID, withdrawalID   sql.NullString
		settlementRef, description         sql.NullString
		pendingAfter, availableAfter       string
	)

	err := rows.Scan(
		&e.ID, &e.OrganizerID, &e.Type, &amount, &currency, &entryDate, &valueDate,
		&ticketID, &refundID, &withdrawalID, &settlementRef,
		&pendingAfter, &availableAfter, &description, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.Amount = ledger.MustParseMoney(amount, currency)
	e.EntryDate, _ = time.Parse(time.RFC3339Nano, entryDate)
	e.ValueDate, _ = time.Parse(time.RFC3339Nano, valueDate)
	e.TicketID = ticketID.String
	e.RefundID = refundID.String
	e.WithdrawalID = withdrawalID.String
	e.SettlementRef = settlementRef.String
	e.PendingAfter = ledger.MustParseMoney(pendingAfter, currency)
	e.AvailableAfter = ledger.MustParseMoney(availableAfter, currency)
	e.Description = description.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return e, nil
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore interface)
// =============================================================================

// GetBalances returns the organizer's current bucket snapshot.
func (s *Store) GetBalances(ctx context.Context, id ledger.OrganizerID) (ledger.Balances, error) {
	return getBalances(ctx, s.db, id)
}

func getBalances(ctx context.Context, db dbtx, id ledger.OrganizerID) (ledger.Balances, error) {
	var pending, available, withdrawn, currency string
	err := db.QueryRowContext(ctx,
		"SELECT pending, available, withdrawn, currency FROM organizers WHERE id = ?",
		string(id),
	).Scan(&pending, &available, &withdrawn, &currency)

	if err == sql.ErrNoRows {
		return ledger.Balances{}, ledger.ErrOrganizerNotFound
	}
	if err != nil {
		return ledger.Balances{}, err
	}

	return ledger.Balances{
		OrganizerID: id,
		Pending:     ledger.MustParseMoney(pending, currency),
		Available:   ledger.MustParseMoney(available, currency),
		Withdrawn:   ledger.MustParseMoney(withdrawn, currency),
	}, nil
}

// Credit adds amount to the bucket. Mutations are serialized under the store
// mutex so the read-modify-write cannot interleave.
func (s *Store) Credit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return mutateBalance(ctx, s.db, id, bucket, amount, false)
}

// Debit subtracts amount from the bucket, rejecting a negative result.
func (s *Store) Debit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return mutateBalance(ctx, s.db, id, bucket, amount, true)
}

func mutateBalance(ctx context.Context, db dbtx, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money, debit bool) (ledger.Balances, error) {
	if !bucket.Valid() {
		return ledger.Balances{}, ledger.ErrInvalidBucket
	}
	if !amount.IsPositive() {
		return ledger.Balances{}, ledger.ErrInvalidAmount
	}

	bal, err := getBalances(ctx, db, id)
	if err != nil {
		return ledger.Balances{}, err
	}

	current := bal.Bucket(bucket)
	var next ledger.Money
	if debit {
		next = current.Sub(amount)
		if next.IsNegative() {
			return ledger.Balances{}, &ledger.InsufficientBalanceError{
				OrganizerID: id,
				Bucket:      bucket,
				Available:   current,
				Requested:   amount,
			}
		}
	} else {
		next = current.Add(amount)
	}

	var column string
	switch bucket {
	case ledger.BucketPending:
		column = "pending"
		bal.Pending = next
	case ledger.BucketAvailable:
		column = "available"
		bal.Available = next
	case ledger.BucketWithdrawn:
		column = "withdrawn"
		bal.Withdrawn = next
	}

	_, err = db.ExecContext(ctx,
		"UPDATE organizers SET "+column+" = ? WHERE id = ?",
		next.Value.String(), string(id),
	)
	if err != nil {
		return ledger.Balances{}, fmt.Errorf("failed to update balance: %w", err)
	}

	return bal, nil
}

// =============================================================================
// ORGANIZER STORE (ledger.OrganizerStore interface)
// =============================================================================

// SaveOrganizer inserts or updates an organizer account. Balance columns are
// never touched here; only Credit/Debit may move them.
func (s *Store) SaveOrganizer(ctx context.Context, o ledger.OrganizerAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currency := o.Currency
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO organizers (id, name, email, currency, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`

	_, err := s.db.ExecContext(ctx, query,
		string(o.ID), o.Name, o.Email, currency,
		createdAt.UTC().Format(timeFormat),
	)
	return err
}

// GetOrganizer retrieves an organizer by ID. Returns nil when not found.
func (s *Store) GetOrganizer(ctx context.Context, id ledger.OrganizerID) (*ledger.OrganizerAccount, error) {
	var o ledger.OrganizerAccount
	var email sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, currency, created_at FROM organizers WHERE id = ?",
		string(id),
	).Scan(&o.ID, &o.Name, &email, &o.Currency, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.Email = email.String
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &o, nil
}

// ListOrganizers returns all organizers.
func (s *Store) ListOrganizers(ctx context.Context) ([]ledger.OrganizerAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, currency, created_at FROM organizers ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var organizers []ledger.OrganizerAccount
	for rows.Next() {
		var o ledger.OrganizerAccount
		var email sql.NullString
		var createdAt string
		if err := rows.Scan(&o.ID, &o.Name, &email, &o.Currency, &createdAt); err != nil {
			return nil, err
		}
		o.Email = email.String
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		organizers = append(organizers, o)
	}
	return organizers, rows.Err()
}

// OrganizersWithBalance returns the organizers whose buckets are not all zero.
// Zero is decided in Go after parsing: decimal arithmetic can store a zero as
// "0.0" or "0.00", so a TEXT comparison against '0' would miss those rows.
func (s *Store) OrganizersWithBalance(ctx context.Context) ([]ledger.OrganizerID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pending, available, withdrawn FROM organizers
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []ledger.OrganizerID
	for rows.Next() {
		var id, pending, available, withdrawn string
		if err := rows.Scan(&id, &pending, &available, &withdrawn); err != nil {
			return nil, err
		}
		funded := false
		for _, raw := range []string{pending, available, withdrawn} {
			if !ledger.MustParseMoney(raw, ledger.DefaultCurrency).IsZero() {
				funded = true
				break
			}
		}
		if funded {
			ids = append(ids, ledger.OrganizerID(id))
		}
	}
	return ids, rows.Err()
}

// =============================================================================
// SOURCE STORE (ledger.SourceStore interface)
// =============================================================================

// SaveTicketSale inserts or updates a source ticket sale.
func (s *Store) SaveTicketSale(ctx context.Context, t ledger.TicketSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveTicketSale(ctx, s.db, t)
}

func saveTicketSale(ctx context.Context, db dbtx, t ledger.TicketSale) error {
	query := `
		INSERT INTO tickets (id, organizer_id, event_id, amount_paid, currency, status, settlement_ref, sold_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			settlement_ref = excluded.settlement_ref
	`

	_, err := db.ExecContext(ctx, query,
		t.ID, string(t.OrganizerID), t.EventID,
		t.AmountPaid.Value.String(), t.AmountPaid.Currency,
		string(t.Status), t.SettlementRef,
		t.SoldAt.UTC().Format(timeFormat),
	)
	return err
}

// SaveRefund inserts or updates a source refund.
func (s *Store) SaveRefund(ctx context.Context, r ledger.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveRefund(ctx, s.db, r)
}

func saveRefund(ctx context.Context, db dbtx, r ledger.Refund) error {
	query := `
		INSERT INTO refunds (id, organizer_id, ticket_id, amount, currency, status, requested_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed_at = excluded.processed_at
	`

	_, err := db.ExecContext(ctx, query,
		r.ID, string(r.OrganizerID), r.TicketID,
		r.Amount.Value.String(), r.Amount.Currency,
		string(r.Status),
		r.RequestedAt.UTC().Format(timeFormat),
		r.ProcessedAt.UTC().Format(timeFormat),
	)
	return err
}

// SaveWithdrawal inserts or updates a source withdrawal.
func (s *Store) SaveWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveWithdrawal(ctx, s.db, w)
}

func saveWithdrawal(ctx context.Context, db dbtx, w ledger.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (id, organizer_id, amount, currency, status, account_number, settlement_ref, requested_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at
	`

	_, err := db.ExecContext(ctx, query,
		w.ID, string(w.OrganizerID),
		w.Amount.Value.String(), w.Amount.Currency,
		string(w.Status), w.AccountNumber, w.SettlementRef,
		w.RequestedAt.UTC().Format(timeFormat),
		w.CompletedAt.UTC().Format(timeFormat),
	)
	return err
}

// GetTicketSale retrieves a ticket sale by ID. Returns nil when not found.
func (s *Store) GetTicketSale(ctx context.Context, id string) (*ledger.TicketSale, error) {
	return getTicketSale(ctx, s.db, id)
}

func getTicketSale(ctx context.Context, db dbtx, id string) (*ledger.TicketSale, error) {
	var t ledger.TicketSale
	var eventID, settlementRef sql.NullString
	var amount, currency, status, soldAt string

	err := db.QueryRowContext(ctx,
		"SELECT id, organizer_id, event_id, amount_paid, currency, status, settlement_ref, sold_at FROM tickets WHERE id = ?",
		id,
	).Scan(&t.ID, &t.OrganizerID, &eventID, &amount, &currency, &status, &settlementRef, &soldAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.EventID = eventID.String
	t.AmountPaid = ledger.MustParseMoney(amount, currency)
	t.Status = ledger.TicketStatus(status)
	t.SettlementRef = settlementRef.String
	t.SoldAt, _ = time.Parse(time.RFC3339Nano, soldAt)
	return &t, nil
}

// SettledTicketSales returns active/checked-in tickets sold within the period.
func (s *Store) SettledTicketSales(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.TicketSale, error) {
	return settledTicketSales(ctx, s.db, id, p)
}

func settledTicketSales(ctx context.Context, db dbtx, id ledger.OrganizerID, p ledger.Period) ([]ledger.TicketSale, error) {
	query := `
		SELECT id, organizer_id, event_id, amount_paid, currency, status, settlement_ref, sold_at
		FROM tickets
		WHERE organizer_id = ? AND status IN ('active', 'checked_in')
		  AND sold_at >= ? AND sold_at <= ?
		ORDER BY sold_at ASC
	`

	rows, err := db.QueryContext(ctx, query, string(id),
		p.Start.UTC().Format(timeFormat), p.End.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []ledger.TicketSale
	for rows.Next() {
		var t ledger.TicketSale
		var eventID, settlementRef sql.NullString
		var amount, currency, status, soldAt string
		if err := rows.Scan(&t.ID, &t.OrganizerID, &eventID, &amount, &currency, &status, &settlementRef, &soldAt); err != nil {
			return nil, err
		}
		t.EventID = eventID.String
		t.AmountPaid = ledger.MustParseMoney(amount, currency)
		t.Status = ledger.TicketStatus(status)
		t.SettlementRef = settlementRef.String
		t.SoldAt, _ = time.Parse(time.RFC3339Nano, soldAt)
		sales = append(sales, t)
	}
	return sales, rows.Err()
}

// ProcessedRefunds returns processed refunds within the period.
func (s *Store) ProcessedRefunds(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Refund, error) {
	return processedRefunds(ctx, s.db, id, p)
}

func processedRefunds(ctx context.Context, db dbtx, id ledger.OrganizerID, p ledger.Period) ([]ledger.Refund, error) {
	query := `
		SELECT id, organizer_id, ticket_id, amount, currency, status, requested_at, processed_at
		FROM refunds
		WHERE organizer_id = ? AND status = 'processed'
		  AND processed_at >= ? AND processed_at <= ?
		ORDER BY processed_at ASC
	`

	rows, err := db.QueryContext(ctx, query, string(id),
		p.Start.UTC().Format(timeFormat), p.End.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []ledger.Refund
	for rows.Next() {
		var r ledger.Refund
		var ticketID sql.NullString
		var amount, currency, status, requestedAt, processedAt string
		if err := rows.Scan(&r.ID, &r.OrganizerID, &ticketID, &amount, &currency, &status, &requestedAt, &processedAt); err != nil {
			return nil, err
		}
		r.TicketID = ticketID.String
		r.Amount = ledger.MustParseMoney(amount, currency)
		r.Status = ledger.RefundStatus(status)
		r.RequestedAt, _ = time.Parse(time.RFC3339Nano, requestedAt)
		r.ProcessedAt, _ = time.Parse(time.RFC3339Nano, processedAt)
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

// CompletedWithdrawals returns completed withdrawals within the period.
func (s *Store) CompletedWithdrawals(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Withdrawal, error) {
	return completedWithdrawals(ctx, s.db, id, p)
}

func completedWithdrawals(ctx context.Context, db dbtx, id ledger.OrganizerID, p ledger.Period) ([]ledger.Withdrawal, error) {
	query := `
		SELECT id, organizer_id, amount, currency, status, account_number, settlement_ref, requested_at, completed_at
		FROM withdrawals
		WHERE organizer_id = ? AND status = 'completed'
		  AND completed_at >= ? AND completed_at <= ?
		ORDER BY completed_at ASC
	`

	rows, err := db.QueryContext(ctx, query, string(id),
		p.Start.UTC().Format(timeFormat), p.End.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []ledger.Withdrawal
	for rows.Next() {
		var w ledger.Withdrawal
		var accountNumber, settlementRef sql.NullString
		var amount, currency, status, requestedAt, completedAt string
		if err := rows.Scan(&w.ID, &w.OrganizerID, &amount, &currency, &status, &accountNumber, &settlementRef, &requestedAt, &completedAt); err != nil {
			return nil, err
		}
		w.Amount = ledger.MustParseMoney(amount, currency)
		w.Status = ledger.WithdrawalStatus(status)
		w.AccountNumber = accountNumber.String
		w.SettlementRef = settlementRef.String
		w.RequestedAt, _ = time.Parse(time.RFC3339Nano, requestedAt)
		w.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is held
// for the duration so the read-modify-write balance mutations in fn cannot
// interleave with mutations outside the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the shared dbtx helpers against the open
// transaction. It never touches the store mutex; WithTx already holds it.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) Entries(ctx context.Context, id ledger.OrganizerID, f ledger.EntryFilter) ([]ledger.LedgerEntry, error) {
	return queryFilteredEntries(ctx, ts.tx, id, f)
}

func (ts *txStore) SettlementRefExists(ctx context.Context, ref string) (bool, ledger.EntryID, error) {
	return settlementRefExists(ctx, ts.tx, ref)
}

func (ts *txStore) SumByType(ctx context.Context, id ledger.OrganizerID, p *ledger.Period) (map[ledger.EntryType]ledger.Money, error) {
	return sumByType(ctx, ts.tx, id, p)
}

func (ts *txStore) GetBalances(ctx context.Context, id ledger.OrganizerID) (ledger.Balances, error) {
	return getBalances(ctx, ts.tx, id)
}

func (ts *txStore) Credit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	return mutateBalance(ctx, ts.tx, id, bucket, amount, false)
}

func (ts *txStore) Debit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	return mutateBalance(ctx, ts.tx, id, bucket, amount, true)
}

func (ts *txStore) SaveTicketSale(ctx context.Context, t ledger.TicketSale) error {
	return saveTicketSale(ctx, ts.tx, t)
}

func (ts *txStore) SaveRefund(ctx context.Context, r ledger.Refund) error {
	return saveRefund(ctx, ts.tx, r)
}

func (ts *txStore) SaveWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	return saveWithdrawal(ctx, ts.tx, w)
}

func (ts *txStore) GetTicketSale(ctx context.Context, id string) (*ledger.TicketSale, error) {
	return getTicketSale(ctx, ts.tx, id)
}

func (ts *txStore) SettledTicketSales(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.TicketSale, error) {
	return settledTicketSales(ctx, ts.tx, id, p)
}

func (ts *txStore) ProcessedRefunds(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Refund, error) {
	return processedRefunds(ctx, ts.tx, id, p)
}

func (ts *txStore) CompletedWithdrawals(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Withdrawal, error) {
	return completedWithdrawals(ctx, ts.tx, id, p)
}

// =============================================================================
// MAINTENANCE STORE (ledger.MaintenanceStore interface)
// =============================================================================

// EntriesMissingSettlementRef returns entries of the given type with no
// settlement reference, entry date ascending.
func (s *Store) EntriesMissingSettlementRef(ctx context.Context, t ledger.EntryType) ([]ledger.LedgerEntry, error) {
	query := entrySelect + `
		WHERE entry_type = ? AND (settlement_ref IS NULL OR settlement_ref = '')
		ORDER BY entry_date ASC, created_at ASC`

	return queryEntries(ctx, s.db, query, string(t))
}

// SetSettlementRef performs the one-time backfill of a missing reference.
func (s *Store) SetSettlementRef(ctx context.Context, id ledger.EntryID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE ledger_entries SET settlement_ref = ? WHERE id = ?",
		ref, string(id),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateSettlement
		}
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

// EntriesBySettlementRef groups all entries of the given type by their
// non-empty settlement reference.
func (s *Store) EntriesBySettlementRef(ctx context.Context, t ledger.EntryType) (map[string][]ledger.LedgerEntry, error) {
	query := entrySelect + `
		WHERE entry_type = ? AND settlement_ref IS NOT NULL AND settlement_ref != ''
		ORDER BY entry_date ASC, created_at ASC`

	entries, err := queryEntries(ctx, s.db, query, string(t))
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]ledger.LedgerEntry)
	for _, e := range entries {
		grouped[e.SettlementRef] = append(grouped[e.SettlementRef], e)
	}
	return grouped, nil
}

// DeleteEntries removes entries by ID. Exists solely for duplicate cleanup.
func (s *Store) DeleteEntries(ctx context.Context, ids []ledger.EntryID) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, id := range ids {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM ledger_entries WHERE id = ?", string(id)); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_entries", "tickets", "refunds", "withdrawals", "organizers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
