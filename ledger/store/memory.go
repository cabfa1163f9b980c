// Package store provides ledger storage implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore, ledger.OrganizerStore, and
// ledger.MaintenanceStore against plain maps. A single mutex serializes all
// balance mutations, which trivially satisfies the per-organizer ordering
// requirement.
type Memory struct {
	mu sync.RWMutex

	organizers  map[ledger.OrganizerID]ledger.OrganizerAccount
	balances    map[ledger.OrganizerID]ledger.Balances
	entries     map[ledger.OrganizerID][]ledger.LedgerEntry
	byRef       map[string]ledger.EntryID
	tickets     map[string]ledger.TicketSale
	refunds     map[string]ledger.Refund
	withdrawals map[string]ledger.Withdrawal

	currency string
}

func NewMemory() *Memory {
	return &Memory{
		organizers:  make(map[ledger.OrganizerID]ledger.OrganizerAccount),
		balances:    make(map[ledger.OrganizerID]ledger.Balances),
		entries:     make(map[ledger.OrganizerID][]ledger.LedgerEntry),
		byRef:       make(map[string]ledger.EntryID),
		tickets:     make(map[string]ledger.TicketSale),
		refunds:     make(map[string]ledger.Refund),
		withdrawals: make(map[string]ledger.Withdrawal),
		currency:    ledger.DefaultCurrency,
	}
}

func (m *Memory) zero() ledger.Money { return ledger.NewMoney(0, m.currency) }

// =============================================================================
// ENTRY STORE (ledger.Store)
// =============================================================================

func (m *Memory) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) appendEntryLocked(e ledger.LedgerEntry) error {
	if e.SettlementRef != "" {
		if existing, ok := m.byRef[e.SettlementRef]; ok {
			return &ledger.DuplicateSettlementError{SettlementRef: e.SettlementRef, ExistingEntryID: existing}
		}
		m.byRef[e.SettlementRef] = e.ID
	}

	entries := m.entries[e.OrganizerID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].EntryDate.After(e.EntryDate)
	})
	entries = append(entries, ledger.LedgerEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[e.OrganizerID] = entries
	return nil
}

func (m *Memory) Entries(ctx context.Context, id ledger.OrganizerID, f ledger.EntryFilter) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(id, f), nil
}

func (m *Memory) entriesLocked(id ledger.OrganizerID, f ledger.EntryFilter) []ledger.LedgerEntry {
	var result []ledger.LedgerEntry
	for _, e := range m.entries[id] {
		if f.Type != nil && e.Type != *f.Type {
			continue
		}
		if f.Period != nil && !f.Period.Contains(e.EntryDate) {
			continue
		}
		result = append(result, e)
	}
	return result
}

func (m *Memory) SettlementRefExists(ctx context.Context, ref string) (bool, ledger.EntryID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRef[ref]
	return ok, id, nil
}

func (m *Memory) SumByType(ctx context.Context, id ledger.OrganizerID, p *ledger.Period) (map[ledger.EntryType]ledger.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make(map[ledger.EntryType]ledger.Money)
	for _, e := range m.entries[id] {
		if p != nil && !p.Contains(e.EntryDate) {
			continue
		}
		sum, ok := sums[e.Type]
		if !ok {
			sum = m.zero()
		}
		sums[e.Type] = sum.Add(e.Amount)
	}
	return sums, nil
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore)
// =============================================================================

func (m *Memory) GetBalances(ctx context.Context, id ledger.OrganizerID) (ledger.Balances, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balancesLocked(id), nil
}

func (m *Memory) balancesLocked(id ledger.OrganizerID) ledger.Balances {
	if b, ok := m.balances[id]; ok {
		return b
	}
	return ledger.Balances{OrganizerID: id, Pending: m.zero(), Available: m.zero(), Withdrawn: m.zero()}
}

func (m *Memory) Credit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutateLocked(id, bucket, amount, false)
}

func (m *Memory) Debit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutateLocked(id, bucket, amount, true)
}

func (m *Memory) mutateLocked(id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money, debit bool) (ledger.Balances, error) {
	b := m.balancesLocked(id)

	current := b.Bucket(bucket)
	next := current.Add(amount)
	if debit {
		next = current.Sub(amount)
		if next.IsNegative() {
			return ledger.Balances{}, &ledger.InsufficientBalanceError{
				OrganizerID: id, Bucket: bucket, Available: current, Requested: amount,
			}
		}
	}

	switch bucket {
	case ledger.BucketPending:
		b.Pending = next
	case ledger.BucketAvailable:
		b.Available = next
	case ledger.BucketWithdrawn:
		b.Withdrawn = next
	default:
		return ledger.Balances{}, ledger.ErrInvalidBucket
	}

	m.balances[id] = b
	return b, nil
}

// SetBalances overwrites an organizer's buckets directly. Test-only hook for
// simulating drift; production code paths never set a balance.
func (m *Memory) SetBalances(id ledger.OrganizerID, b ledger.Balances) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.OrganizerID = id
	m.balances[id] = b
}

// SeedEntry inserts an entry without the duplicate-reference guard.
// Test-only hook for reconstructing history written before the guard
// existed; production code paths go through AppendEntry.
func (m *Memory) SeedEntry(e ledger.LedgerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.entries[e.OrganizerID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].EntryDate.After(e.EntryDate)
	})
	entries = append(entries, ledger.LedgerEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[e.OrganizerID] = entries
	if e.SettlementRef != "" {
		if _, ok := m.byRef[e.SettlementRef]; !ok {
			m.byRef[e.SettlementRef] = e.ID
		}
	}
}

// =============================================================================
// SOURCE STORE (ledger.SourceStore)
// =============================================================================

func (m *Memory) SaveTicketSale(ctx context.Context, t ledger.TicketSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
	return nil
}

func (m *Memory) SaveRefund(ctx context.Context, r ledger.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds[r.ID] = r
	return nil
}

func (m *Memory) SaveWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawals[w.ID] = w
	return nil
}

func (m *Memory) GetTicketSale(ctx context.Context, id string) (*ledger.TicketSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tickets[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *Memory) SettledTicketSales(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.TicketSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.TicketSale
	for _, t := range m.tickets {
		if t.OrganizerID == id && t.Settled() && p.Contains(t.SoldAt) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SoldAt.Before(result[j].SoldAt) })
	return result, nil
}

func (m *Memory) ProcessedRefunds(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Refund
	for _, r := range m.refunds {
		if r.OrganizerID == id && r.Settled() && p.Contains(r.ProcessedAt) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProcessedAt.Before(result[j].ProcessedAt) })
	return result, nil
}

func (m *Memory) CompletedWithdrawals(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Withdrawal
	for _, w := range m.withdrawals {
		if w.OrganizerID == id && w.Settled() && p.Contains(w.CompletedAt) {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CompletedAt.Before(result[j].CompletedAt) })
	return result, nil
}

// =============================================================================
// ORGANIZER STORE (ledger.OrganizerStore)
// =============================================================================

func (m *Memory) SaveOrganizer(ctx context.Context, o ledger.OrganizerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.organizers[o.ID] = o
	return nil
}

func (m *Memory) GetOrganizer(ctx context.Context, id ledger.OrganizerID) (*ledger.OrganizerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.organizers[id]; ok {
		return &o, nil
	}
	return nil, nil
}

func (m *Memory) ListOrganizers(ctx context.Context) ([]ledger.OrganizerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.OrganizerAccount, 0, len(m.organizers))
	for _, o := range m.organizers {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) OrganizersWithBalance(ctx context.Context) ([]ledger.OrganizerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.OrganizerID
	for id, b := range m.balances {
		if b.Pending.IsZero() && b.Available.IsZero() && b.Withdrawn.IsZero() {
			continue
		}
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// =============================================================================
// MAINTENANCE STORE (ledger.MaintenanceStore)
// =============================================================================

func (m *Memory) EntriesMissingSettlementRef(ctx context.Context, t ledger.EntryType) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.LedgerEntry
	for _, entries := range m.entries {
		for _, e := range entries {
			if e.Type == t && e.SettlementRef == "" {
				result = append(result, e)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntryDate.Before(result[j].EntryDate) })
	return result, nil
}

func (m *Memory) SetSettlementRef(ctx context.Context, id ledger.EntryID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byRef[ref]; ok && existing != id {
		return &ledger.DuplicateSettlementError{SettlementRef: ref, ExistingEntryID: existing}
	}

	for orgID, entries := range m.entries {
		for i, e := range entries {
			if e.ID != id {
				continue
			}
			entries[i].SettlementRef = ref
			m.entries[orgID] = entries
			m.byRef[ref] = id
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

func (m *Memory) EntriesBySettlementRef(ctx context.Context, t ledger.EntryType) (map[string][]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make(map[string][]ledger.LedgerEntry)
	for _, entries := range m.entries {
		for _, e := range entries {
			if e.Type == t && e.SettlementRef != "" {
				groups[e.SettlementRef] = append(groups[e.SettlementRef], e)
			}
		}
	}
	return groups, nil
}

func (m *Memory) DeleteEntries(ctx context.Context, ids []ledger.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doomed := make(map[ledger.EntryID]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	for orgID, entries := range m.entries {
		kept := entries[:0]
		for _, e := range entries {
			if doomed[e.ID] {
				if e.SettlementRef != "" && m.byRef[e.SettlementRef] == e.ID {
					delete(m.byRef, e.SettlementRef)
				}
				continue
			}
			kept = append(kept, e)
		}
		m.entries[orgID] = kept
	}

	// Re-point references whose mapped entry was deleted but a survivor remains.
	for _, entries := range m.entries {
		for _, e := range entries {
			if e.SettlementRef != "" {
				if _, ok := m.byRef[e.SettlementRef]; !ok {
					m.byRef[e.SettlementRef] = e.ID
				}
			}
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore)
// =============================================================================

// WithTx executes fn against a snapshot-backed view: on error the whole
// store is restored, mirroring a relational rollback.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.LedgerStore) error) error {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := fn(&txView{parent: m}); err != nil {
		m.mu.Lock()
		m.restoreLocked(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	balances    map[ledger.OrganizerID]ledger.Balances
	entries     map[ledger.OrganizerID][]ledger.LedgerEntry
	byRef       map[string]ledger.EntryID
	tickets     map[string]ledger.TicketSale
	refunds     map[string]ledger.Refund
	withdrawals map[string]ledger.Withdrawal
}

func (m *Memory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		balances:    make(map[ledger.OrganizerID]ledger.Balances, len(m.balances)),
		entries:     make(map[ledger.OrganizerID][]ledger.LedgerEntry, len(m.entries)),
		byRef:       make(map[string]ledger.EntryID, len(m.byRef)),
		tickets:     make(map[string]ledger.TicketSale, len(m.tickets)),
		refunds:     make(map[string]ledger.Refund, len(m.refunds)),
		withdrawals: make(map[string]ledger.Withdrawal, len(m.withdrawals)),
	}
	for k, v := range m.balances {
		s.balances[k] = v
	}
	for k, v := range m.entries {
		s.entries[k] = append([]ledger.LedgerEntry{}, v...)
	}
	for k, v := range m.byRef {
		s.byRef[k] = v
	}
	for k, v := range m.tickets {
		s.tickets[k] = v
	}
	for k, v := range m.refunds {
		s.refunds[k] = v
	}
	for k, v := range m.withdrawals {
		s.withdrawals[k] = v
	}
	return s
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.balances = s.balances
	m.entries = s.entries
	m.byRef = s.byRef
	m.tickets = s.tickets
	m.refunds = s.refunds
	m.withdrawals = s.withdrawals
}

// txView delegates to the parent; rollback is handled by WithTx's snapshot.
type txView struct {
	parent *Memory
}

func (v *txView) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	return v.parent.AppendEntry(ctx, e)
}

func (v *txView) Entries(ctx context.Context, id ledger.OrganizerID, f ledger.EntryFilter) ([]ledger.LedgerEntry, error) {
	return v.parent.Entries(ctx, id, f)
}

func (v *txView) SettlementRefExists(ctx context.Context, ref string) (bool, ledger.EntryID, error) {
	return v.parent.SettlementRefExists(ctx, ref)
}

func (v *txView) SumByType(ctx context.Context, id ledger.OrganizerID, p *ledger.Period) (map[ledger.EntryType]ledger.Money, error) {
	return v.parent.SumByType(ctx, id, p)
}

func (v *txView) GetBalances(ctx context.Context, id ledger.OrganizerID) (ledger.Balances, error) {
	return v.parent.GetBalances(ctx, id)
}

func (v *txView) Credit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	return v.parent.Credit(ctx, id, bucket, amount)
}

func (v *txView) Debit(ctx context.Context, id ledger.OrganizerID, bucket ledger.Bucket, amount ledger.Money) (ledger.Balances, error) {
	return v.parent.Debit(ctx, id, bucket, amount)
}

func (v *txView) SaveTicketSale(ctx context.Context, t ledger.TicketSale) error {
	return v.parent.SaveTicketSale(ctx, t)
}

func (v *txView) SaveRefund(ctx context.Context, r ledger.Refund) error {
	return v.parent.SaveRefund(ctx, r)
}

func (v *txView) SaveWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	return v.parent.SaveWithdrawal(ctx, w)
}

func (v *txView) GetTicketSale(ctx context.Context, id string) (*ledger.TicketSale, error) {
	return v.parent.GetTicketSale(ctx, id)
}

func (v *txView) SettledTicketSales(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.TicketSale, error) {
	return v.parent.SettledTicketSales(ctx, id, p)
}

func (v *txView) ProcessedRefunds(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Refund, error) {
	return v.parent.ProcessedRefunds(ctx, id, p)
}

func (v *txView) CompletedWithdrawals(ctx context.Context, id ledger.OrganizerID, p ledger.Period) ([]ledger.Withdrawal, error) {
	return v.parent.CompletedWithdrawals(ctx, id, p)
}
