/*
reconcile.go - Balance drift detection

PURPOSE:
  Detects silent drift between the stored organizer balances and the balance
  recomputed from history. Drift means a bug: a partial write, a race, a
  double-applied refund. The engine reports it; it NEVER corrects it, because
  auto-correction would paper over the root cause.

TWO INDEPENDENT COMPUTATION PATHS:
  1. OrganizerReport recomputes from RAW SOURCE TRANSACTIONS: settled ticket
     sales, processed refunds, completed withdrawals. Platform fees are
     re-derived from gross sales.
  2. CheckAllBalanceDiscrepancies (the platform sweep) recomputes from
     LEDGER-ENTRY GROUPED SUMS instead.
  The duplication is deliberate: a bug in one aggregation method cannot mask
  a drift that the other would catch.

THE ARITHMETIC (per organizer, per window):
  totalTicketSales = sum of settled sale amounts (gross)
  platformFees     = totalTicketSales * feePercent / 100
  netRevenue       = totalTicketSales - platformFees
  calculated       = netRevenue - totalRefunds - totalWithdrawals
  stored           = pendingBalance + availableBalance   (withdrawn excluded:
                                                          it has left the system)
  discrepancy      = |calculated - stored|, rounded to 2 decimal places

  An organizer is flagged only when the discrepancy exceeds the tolerance,
  which filters legitimate rounding noise while catching real bugs.

OWNERSHIP:
  The Reconciler owns no persistent state. Reports are pure functions over
  store snapshots, computed fresh on every call, safe to retry or cancel.

SEE ALSO:
  - summary.go: Per-type aggregates for dashboards
  - api/scheduler.go: Periodic platform sweep
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the reconciliation tunables. The tolerance is configuration,
// not a literal buried in the comparison.
type Config struct {
	// PlatformFeePercent is the marketplace cut on gross ticket sales.
	PlatformFeePercent decimal.Decimal

	// Tolerance is the discrepancy magnitude below which an organizer is not
	// flagged. One unit of currency by default.
	Tolerance Money

	// DefaultWindowDays is the trailing window used when a caller does not
	// supply a period.
	DefaultWindowDays int

	Currency string
}

func DefaultConfig() Config {
	return Config{
		PlatformFeePercent: decimal.NewFromInt(5),
		Tolerance:          NewMoneyFromInt(1, DefaultCurrency),
		DefaultWindowDays:  30,
		Currency:           DefaultCurrency,
	}
}

// FeeOn returns the platform fee on a gross amount.
func (c Config) FeeOn(gross Money) Money {
	return gross.Mul(c.PlatformFeePercent).Div(decimal.NewFromInt(100))
}

// NetOf returns the organizer's share of a gross amount after the fee.
func (c Config) NetOf(gross Money) Money {
	return gross.Sub(c.FeeOn(gross))
}

// =============================================================================
// REPORT TYPES
// =============================================================================

// CategoryTotals are the per-category sums over the report window.
type CategoryTotals struct {
	TicketSales     Money
	Refunds         Money
	Withdrawals     Money
	SaleCount       int
	RefundCount     int
	WithdrawalCount int
}

// OrganizerReport is the admin-facing per-organizer reconciliation result.
type OrganizerReport struct {
	OrganizerID OrganizerID
	Period      Period

	Totals       CategoryTotals
	PlatformFees Money
	NetRevenue   Money

	CalculatedBalance Money
	StoredBalance     Money // pending + available
	Stored            Balances

	// Discrepancy is |calculated - stored| rounded to 2 decimal places.
	Discrepancy    Money
	HasDiscrepancy bool

	// Transaction-level detail. Withdrawal account numbers are masked.
	Sales       []TicketSale
	Refunds     []Refund
	Withdrawals []Withdrawal

	GeneratedAt time.Time
}

// SweepFinding is one flagged organizer in a platform sweep.
type SweepFinding struct {
	OrganizerID       OrganizerID
	CalculatedBalance Money
	StoredBalance     Money
	Discrepancy       Money
}

// SweepReport is the whole-platform drift check result.
type SweepReport struct {
	Period           Period
	CheckedCount     int
	FlaggedCount     int
	TotalDiscrepancy Money
	Findings         []SweepFinding
	GeneratedAt      time.Time
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler recomputes expected balances and compares against stored state.
// Strictly read/report: it never mutates a balance or an entry.
type Reconciler struct {
	Config     Config
	Sources    SourceStore
	Entries    Store
	Balances   BalanceStore
	Organizers OrganizerStore
}

func NewReconciler(cfg Config, store LedgerStore, organizers OrganizerStore) *Reconciler {
	return &Reconciler{
		Config:     cfg,
		Sources:    store,
		Entries:    store,
		Balances:   store,
		Organizers: organizers,
	}
}

// window resolves an optional caller period to the effective one.
func (r *Reconciler) window(p *Period) Period {
	if p != nil {
		return *p
	}
	return TrailingDays(time.Now().UTC(), r.Config.DefaultWindowDays)
}

// OrganizerReport recomputes one organizer's expected balance from raw
// source transactions and compares it against the stored buckets.
func (r *Reconciler) OrganizerReport(ctx context.Context, id OrganizerID, p *Period) (*OrganizerReport, error) {
	o, err := r.Organizers.GetOrganizer(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrganizerNotFound
	}

	window := r.window(p)
	zero := NewMoney(0, r.Config.Currency)

	sales, err := r.Sources.SettledTicketSales(ctx, id, window)
	if err != nil {
		return nil, err
	}
	refunds, err := r.Sources.ProcessedRefunds(ctx, id, window)
	if err != nil {
		return nil, err
	}
	withdrawals, err := r.Sources.CompletedWithdrawals(ctx, id, window)
	if err != nil {
		return nil, err
	}

	totals := CategoryTotals{
		TicketSales: zero, Refunds: zero, Withdrawals: zero,
		SaleCount: len(sales), RefundCount: len(refunds), WithdrawalCount: len(withdrawals),
	}
	for _, s := range sales {
		totals.TicketSales = totals.TicketSales.Add(s.AmountPaid)
	}
	for _, rf := range refunds {
		totals.Refunds = totals.Refunds.Add(rf.Amount)
	}
	for i, w := range withdrawals {
		totals.Withdrawals = totals.Withdrawals.Add(w.Amount)
		withdrawals[i].AccountNumber = MaskAccountNumber(w.AccountNumber)
	}

	fees := r.Config.FeeOn(totals.TicketSales)
	net := totals.TicketSales.Sub(fees)
	calculated := net.Sub(totals.Refunds).Sub(totals.Withdrawals)

	stored, err := r.Balances.GetBalances(ctx, id)
	if err != nil {
		return nil, err
	}
	storedTotal := stored.Total()

	discrepancy := calculated.Sub(storedTotal).Abs().Round2()

	return &OrganizerReport{
		OrganizerID:       id,
		Period:            window,
		Totals:            totals,
		PlatformFees:      fees,
		NetRevenue:        net,
		CalculatedBalance: calculated,
		StoredBalance:     storedTotal,
		Stored:            stored,
		Discrepancy:       discrepancy,
		HasDiscrepancy:    discrepancy.GreaterThan(r.Config.Tolerance),
		Sales:             sales,
		Refunds:           refunds,
		Withdrawals:       withdrawals,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// CheckAllBalanceDiscrepancies sweeps every organizer with a nonzero balance.
// Unlike OrganizerReport it derives the expected balance from grouped ledger
// sums, so the two paths cross-check each other.
func (r *Reconciler) CheckAllBalanceDiscrepancies(ctx context.Context, p *Period) (*SweepReport, error) {
	window := r.window(p)
	zero := NewMoney(0, r.Config.Currency)

	ids, err := r.Organizers.OrganizersWithBalance(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{
		Period:           window,
		TotalDiscrepancy: zero,
		GeneratedAt:      time.Now().UTC(),
	}

	for _, id := range ids {
		sums, err := r.Entries.SumByType(ctx, id, &window)
		if err != nil {
			return nil, err
		}

		// Sale entries already hold net-of-fee amounts, so no fee re-derivation
		// on this path.
		calculated := zero
		for _, t := range EntryTypes() {
			sum, ok := sums[t]
			if !ok {
				continue
			}
			switch t {
			case EntryTicketSale, EntryAdjustment:
				calculated = calculated.Add(sum)
			case EntryRefund, EntryWithdrawal, EntryChargeback:
				calculated = calculated.Sub(sum)
			}
		}

		stored, err := r.Balances.GetBalances(ctx, id)
		if err != nil {
			return nil, err
		}
		storedTotal := stored.Total()

		report.CheckedCount++
		discrepancy := calculated.Sub(storedTotal).Abs().Round2()
		if !discrepancy.GreaterThan(r.Config.Tolerance) {
			continue
		}

		report.FlaggedCount++
		report.TotalDiscrepancy = report.TotalDiscrepancy.Add(discrepancy)
		report.Findings = append(report.Findings, SweepFinding{
			OrganizerID:       id,
			CalculatedBalance: calculated,
			StoredBalance:     storedTotal,
			Discrepancy:       discrepancy,
		})
	}

	return report, nil
}
