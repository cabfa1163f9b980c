package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
	"github.com/Oltking/hdticketdesk-sub003/ledger/store"
)

// =============================================================================
// FIXTURE
// =============================================================================
// The fixture records settlements the way the production flow does: source
// row + balance mutation + ledger entry, kept consistent by construction.
// Drift is then injected deliberately where a test needs it.

type reconcileFixture struct {
	t    *testing.T
	mem  *store.Memory
	rec  *ledger.Reconciler
	cfg  ledger.Config
	ctx  context.Context
	seq  int
}

// daysAgo keeps seeded activity inside the reconciler's default trailing
// window regardless of when the tests run.
func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	mem := store.NewMemory()
	cfg := ledger.DefaultConfig()
	f := &reconcileFixture{
		t:   t,
		mem: mem,
		rec: ledger.NewReconciler(cfg, mem, mem),
		cfg: cfg,
		ctx: context.Background(),
	}
	f.addOrganizer("org-1")
	return f
}

func (f *reconcileFixture) addOrganizer(id string) {
	require.NoError(f.t, f.mem.SaveOrganizer(f.ctx, ledger.OrganizerAccount{
		ID:       ledger.OrganizerID(id),
		Name:     "Org " + id,
		Currency: ledger.DefaultCurrency,
	}))
}

func (f *reconcileFixture) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *reconcileFixture) sell(org string, gross float64, at time.Time) {
	id := ledger.OrganizerID(org)
	ticketID := f.nextID("tkt")
	ref := "pay_" + ticketID
	net := f.cfg.NetOf(usd(gross))

	require.NoError(f.t, f.mem.SaveTicketSale(f.ctx, ledger.TicketSale{
		ID: ticketID, OrganizerID: id, AmountPaid: usd(gross),
		Status: ledger.TicketActive, SettlementRef: ref, SoldAt: at,
	}))
	bal, err := f.mem.Credit(f.ctx, id, ledger.BucketPending, net)
	require.NoError(f.t, err)
	require.NoError(f.t, f.mem.AppendEntry(f.ctx, ledger.LedgerEntry{
		ID: ledger.EntryID(f.nextID("ent")), OrganizerID: id,
		Type: ledger.EntryTicketSale, Amount: net,
		EntryDate: at, ValueDate: at, TicketID: ticketID, SettlementRef: ref,
		PendingAfter: bal.Pending, AvailableAfter: bal.Available,
		CreatedAt: at,
	}))
}

func (f *reconcileFixture) refund(org string, amount float64, at time.Time) {
	id := ledger.OrganizerID(org)
	refundID := f.nextID("rf")

	require.NoError(f.t, f.mem.SaveRefund(f.ctx, ledger.Refund{
		ID: refundID, OrganizerID: id, Amount: usd(amount),
		Status: ledger.RefundProcessed, RequestedAt: at, ProcessedAt: at,
	}))
	bal, err := f.mem.Debit(f.ctx, id, ledger.BucketPending, usd(amount))
	require.NoError(f.t, err)
	require.NoError(f.t, f.mem.AppendEntry(f.ctx, ledger.LedgerEntry{
		ID: ledger.EntryID(f.nextID("ent")), OrganizerID: id,
		Type: ledger.EntryRefund, Amount: usd(amount),
		EntryDate: at, ValueDate: at, RefundID: refundID,
		SettlementRef: "rfs_" + refundID,
		PendingAfter:  bal.Pending, AvailableAfter: bal.Available,
		CreatedAt: at,
	}))
}

func (f *reconcileFixture) withdraw(org string, amount float64, account string, at time.Time) {
	id := ledger.OrganizerID(org)
	withdrawalID := f.nextID("wd")

	require.NoError(f.t, f.mem.SaveWithdrawal(f.ctx, ledger.Withdrawal{
		ID: withdrawalID, OrganizerID: id, Amount: usd(amount),
		Status: ledger.WithdrawalCompleted, AccountNumber: account,
		SettlementRef: "po_" + withdrawalID, RequestedAt: at, CompletedAt: at,
	}))
	// Funds must have matured first.
	_, err := f.mem.Debit(f.ctx, id, ledger.BucketAvailable, usd(amount))
	require.NoError(f.t, err)
	bal, err := f.mem.Credit(f.ctx, id, ledger.BucketWithdrawn, usd(amount))
	require.NoError(f.t, err)
	require.NoError(f.t, f.mem.AppendEntry(f.ctx, ledger.LedgerEntry{
		ID: ledger.EntryID(f.nextID("ent")), OrganizerID: id,
		Type: ledger.EntryWithdrawal, Amount: usd(amount),
		EntryDate: at, ValueDate: at, WithdrawalID: withdrawalID,
		SettlementRef: "po_" + withdrawalID,
		PendingAfter:  bal.Pending, AvailableAfter: bal.Available,
		CreatedAt: at,
	}))
}

func (f *reconcileFixture) release(org string, amount float64) {
	id := ledger.OrganizerID(org)
	_, err := f.mem.Debit(f.ctx, id, ledger.BucketPending, usd(amount))
	require.NoError(f.t, err)
	_, err = f.mem.Credit(f.ctx, id, ledger.BucketAvailable, usd(amount))
	require.NoError(f.t, err)
}

// drift corrupts the stored available bucket without touching sources or
// entries, simulating the bug class reconciliation exists to catch.
func (f *reconcileFixture) drift(org string, delta float64) {
	id := ledger.OrganizerID(org)
	bal, err := f.mem.GetBalances(f.ctx, id)
	require.NoError(f.t, err)
	bal.Available = bal.Available.Add(usd(delta))
	f.mem.SetBalances(id, bal)
}

// =============================================================================
// PER-ORGANIZER PATH (source transactions)
// =============================================================================

func TestOrganizerReport_CleanSale(t *testing.T) {
	// GIVEN: A single 10,000 sale at the 5% platform fee
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))

	// WHEN: Reconciling
	report, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
	require.NoError(t, err)

	// THEN: Fee 500, net 9500, calculated == stored, no discrepancy
	assert.True(t, report.Totals.TicketSales.Equal(usd(10000)))
	assert.True(t, report.PlatformFees.Equal(usd(500)))
	assert.True(t, report.NetRevenue.Equal(usd(9500)))
	assert.True(t, report.CalculatedBalance.Equal(usd(9500)))
	assert.True(t, report.StoredBalance.Equal(usd(9500)))
	assert.True(t, report.Discrepancy.IsZero())
	assert.False(t, report.HasDiscrepancy)
	assert.Equal(t, 1, report.Totals.SaleCount)
}

func TestOrganizerReport_FullRefund(t *testing.T) {
	// GIVEN: A sale fully refunded (net amount returned)
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))
	f.refund("org-1", 9500, daysAgo(8))

	// WHEN: Reconciling
	report, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
	require.NoError(t, err)

	// THEN: Everything nets to zero on both sides
	assert.True(t, report.CalculatedBalance.IsZero())
	assert.True(t, report.StoredBalance.IsZero())
	assert.False(t, report.HasDiscrepancy)
}

func TestOrganizerReport_SaleRefundWithdrawal(t *testing.T) {
	// GIVEN: Sale 10,000; refund 950; 3,000 matured and withdrawn
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))
	f.refund("org-1", 950, daysAgo(9))
	f.release("org-1", 3000)
	f.withdraw("org-1", 3000, "9900123456781234", daysAgo(3))

	report, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
	require.NoError(t, err)

	// THEN: 9500 - 950 - 3000 = 5550 on both sides
	assert.True(t, report.CalculatedBalance.Equal(usd(5550)))
	assert.True(t, report.StoredBalance.Equal(usd(5550)))
	assert.False(t, report.HasDiscrepancy)

	// AND: Withdrawn is tracked but excluded from the reconstructible total
	assert.True(t, report.Stored.Withdrawn.Equal(usd(3000)))
}

func TestOrganizerReport_DetectsDrift(t *testing.T) {
	// GIVEN: A clean history, then a 100.00 storage corruption
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))
	f.drift("org-1", 100)

	// WHEN: Reconciling
	report, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
	require.NoError(t, err)

	// THEN: The drift is reported, not corrected
	assert.True(t, report.HasDiscrepancy)
	assert.True(t, report.Discrepancy.Equal(usd(100)))
	assert.True(t, report.StoredBalance.Equal(usd(9600)))
	assert.True(t, report.CalculatedBalance.Equal(usd(9500)))

	// AND: Stored state is untouched
	bal, err := f.mem.GetBalances(f.ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, bal.Total().Equal(usd(9600)), "reconciliation must never auto-correct")
}

func TestOrganizerReport_ToleranceBoundary(t *testing.T) {
	cases := []struct {
		name    string
		drift   float64
		flagged bool
	}{
		{"below tolerance", 0.50, false},
		{"exactly tolerance", 1.00, false}, // strictly-greater comparison
		{"just above tolerance", 1.01, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReconcileFixture(t)
			f.sell("org-1", 10000, daysAgo(10))
			f.drift("org-1", tc.drift)

			report, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.flagged, report.HasDiscrepancy)
		})
	}
}

func TestOrganizerReport_MasksAccountNumbers(t *testing.T) {
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))
	f.release("org-1", 5000)
	f.withdraw("org-1", 5000, "9900123456781234", daysAgo(6))

	report, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
	require.NoError(t, err)

	require.Len(t, report.Withdrawals, 1)
	assert.Equal(t, "************1234", report.Withdrawals[0].AccountNumber)
}

func TestOrganizerReport_WindowExcludesOldActivity(t *testing.T) {
	// GIVEN: One sale inside the window, one before it
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))
	f.sell("org-1", 2000, daysAgo(2))

	window, err := ledger.NewPeriod(daysAgo(4), daysAgo(1))
	require.NoError(t, err)

	report, err := f.rec.OrganizerReport(f.ctx, "org-1", &window)
	require.NoError(t, err)

	// THEN: Only the in-window sale is counted; the stored balance still
	// includes both, so the report shows the difference.
	assert.Equal(t, 1, report.Totals.SaleCount)
	assert.True(t, report.Totals.TicketSales.Equal(usd(2000)))
}

func TestOrganizerReport_UnknownOrganizer(t *testing.T) {
	f := newReconcileFixture(t)
	_, err := f.rec.OrganizerReport(f.ctx, "org-ghost", nil)
	assert.ErrorIs(t, err, ledger.ErrOrganizerNotFound)
}

func TestOrganizerReport_CanceledTicketsExcluded(t *testing.T) {
	// A pending or canceled ticket is not settled and must not count.
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))

	require.NoError(t, f.mem.SaveTicketSale(f.ctx, ledger.TicketSale{
		ID: "tkt-canceled", OrganizerID: "org-1", AmountPaid: usd(500),
		Status: ledger.TicketCanceled, SoldAt: daysAgo(9),
	}))
	require.NoError(t, f.mem.SaveTicketSale(f.ctx, ledger.TicketSale{
		ID: "tkt-pending", OrganizerID: "org-1", AmountPaid: usd(500),
		Status: ledger.TicketPending, SoldAt: daysAgo(9),
	}))

	report, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.SaleCount)
	assert.True(t, report.Totals.TicketSales.Equal(usd(10000)))
}

// =============================================================================
// PLATFORM SWEEP PATH (grouped ledger sums)
// =============================================================================

func TestSweep_CleanPlatform(t *testing.T) {
	// GIVEN: Two consistent organizers
	f := newReconcileFixture(t)
	f.addOrganizer("org-2")
	f.sell("org-1", 10000, daysAgo(10))
	f.sell("org-2", 4000, daysAgo(9))
	f.refund("org-2", 1000, daysAgo(8))

	// WHEN: Sweeping
	report, err := f.rec.CheckAllBalanceDiscrepancies(f.ctx, nil)
	require.NoError(t, err)

	// THEN: Both checked, none flagged
	assert.Equal(t, 2, report.CheckedCount)
	assert.Equal(t, 0, report.FlaggedCount)
	assert.True(t, report.TotalDiscrepancy.IsZero())
	assert.Empty(t, report.Findings)
}

func TestSweep_FlagsDriftedOrganizer(t *testing.T) {
	// GIVEN: One clean organizer and one with 100.00 of drift
	f := newReconcileFixture(t)
	f.addOrganizer("org-2")
	f.sell("org-1", 10000, daysAgo(10))
	f.sell("org-2", 4000, daysAgo(9))
	f.drift("org-2", 100)

	// WHEN: Sweeping
	report, err := f.rec.CheckAllBalanceDiscrepancies(f.ctx, nil)
	require.NoError(t, err)

	// THEN: Exactly the drifted organizer is flagged
	assert.Equal(t, 2, report.CheckedCount)
	assert.Equal(t, 1, report.FlaggedCount)
	require.Len(t, report.Findings, 1)

	finding := report.Findings[0]
	assert.Equal(t, ledger.OrganizerID("org-2"), finding.OrganizerID)
	assert.True(t, finding.Discrepancy.Equal(usd(100)))
	assert.True(t, report.TotalDiscrepancy.Equal(usd(100)))

	// AND: The sweep corrected nothing
	bal, err := f.mem.GetBalances(f.ctx, "org-2")
	require.NoError(t, err)
	assert.True(t, bal.Total().Equal(usd(3900)))
}

func TestSweep_SkipsZeroBalanceOrganizers(t *testing.T) {
	// An organizer with no money anywhere is not checked at all.
	f := newReconcileFixture(t)
	f.addOrganizer("org-idle")
	f.sell("org-1", 10000, daysAgo(10))

	report, err := f.rec.CheckAllBalanceDiscrepancies(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CheckedCount)
}

func TestSweep_AdjustmentsKeepSign(t *testing.T) {
	// GIVEN: A sale plus a negative manual adjustment, both reflected in
	// balances and entries
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))

	bal, err := f.mem.Debit(f.ctx, "org-1", ledger.BucketPending, usd(200))
	require.NoError(t, err)
	require.NoError(t, f.mem.AppendEntry(f.ctx, ledger.LedgerEntry{
		ID: "adj-1", OrganizerID: "org-1", Type: ledger.EntryAdjustment,
		Amount: usd(-200), EntryDate: daysAgo(9), ValueDate: daysAgo(9),
		PendingAfter: bal.Pending, AvailableAfter: bal.Available,
		Description: "correct double-credited sale", CreatedAt: daysAgo(9),
	}))

	// WHEN: Sweeping
	report, err := f.rec.CheckAllBalanceDiscrepancies(f.ctx, nil)
	require.NoError(t, err)

	// THEN: The signed adjustment reconciles cleanly
	assert.Equal(t, 0, report.FlaggedCount)
}

// =============================================================================
// BOTH PATHS AGREE
// =============================================================================

func TestBothPathsAgreeOnConsistentState(t *testing.T) {
	// The two computation paths use different inputs (source rows vs grouped
	// entry sums). On a consistent store they must land on the same number.
	f := newReconcileFixture(t)
	f.sell("org-1", 10000, daysAgo(10))
	f.refund("org-1", 950, daysAgo(9))
	f.release("org-1", 2000)
	f.withdraw("org-1", 2000, "5555000011112222", daysAgo(6))

	perOrg, err := f.rec.OrganizerReport(f.ctx, "org-1", nil)
	require.NoError(t, err)
	sweep, err := f.rec.CheckAllBalanceDiscrepancies(f.ctx, nil)
	require.NoError(t, err)

	assert.False(t, perOrg.HasDiscrepancy)
	assert.Equal(t, 0, sweep.FlaggedCount)
	assert.True(t, perOrg.CalculatedBalance.Equal(usd(6550)))
}

// =============================================================================
// FEE ARITHMETIC
// =============================================================================

func TestConfig_FeeArithmetic(t *testing.T) {
	cfg := ledger.DefaultConfig()

	assert.True(t, cfg.FeeOn(usd(10000)).Equal(usd(500)))
	assert.True(t, cfg.NetOf(usd(10000)).Equal(usd(9500)))

	// Fee math stays exact on awkward amounts.
	fee := cfg.FeeOn(usd(99.99))
	assert.Equal(t, "4.9995", fee.Value.String())
	assert.True(t, cfg.FeeOn(usd(99.99)).Add(cfg.NetOf(usd(99.99))).Equal(usd(99.99)))
}
