/*
Package ledger provides the organizer bookkeeping engine for the ticketing
marketplace.

PURPOSE:
  This package contains the types and algorithms that track organizer money:
  the append-only ledger of financial events, the three-bucket balance model
  (pending / available / withdrawn), reconciliation of stored balances
  against recomputed history, and period summaries for reporting.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact-decimal currency amount (never binary floating point)
  - LedgerEntry: An immutable record of one financial event
  - EntryType: Closed set of event kinds (sale, refund, withdrawal, ...)
  - Bucket: Which balance a mutation applies to
  - TicketSale/Refund/Withdrawal: Source transactions owned by collaborators

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never updated (one documented
     maintenance exception: a one-time settlement-reference backfill)
  2. Precision: Uses decimal.Decimal so reconciliation never drifts from
     rounding noise
  3. Idempotency: The settlement reference is the uniqueness key that makes
     webhook retries safe
  4. Auditability: Every entry carries the balance snapshot after it applied

SEE ALSO:
  - ledger.go: Append-only entry store with the idempotency guard
  - balance.go: The three-bucket balance accessor
  - reconcile.go: Drift detection between stored and recomputed balances
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal currency amount
// =============================================================================

// DefaultCurrency is used when a caller does not specify one.
const DefaultCurrency = "USD"

type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value float64, currency string) Money {
	return Money{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewMoneyFromInt(value int64, currency string) Money {
	return Money{Value: decimal.NewFromInt(value), Currency: currency}
}

func MustParseMoney(s, currency string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero, Currency: currency}
	}
	return Money{Value: d, Currency: currency}
}

func (m Money) Zero() Money                 { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(b Money) Money           { return Money{Value: m.Value.Add(b.Value), Currency: m.Currency} }
func (m Money) Sub(b Money) Money           { return Money{Value: m.Value.Sub(b.Value), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s), Currency: m.Currency} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s), Currency: m.Currency} }
func (m Money) Neg() Money                  { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) Abs() Money                  { return Money{Value: m.Value.Abs(), Currency: m.Currency} }
func (m Money) Round2() Money               { return Money{Value: m.Value.Round(2), Currency: m.Currency} }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool    { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool       { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool          { return m.Value.Equal(b.Value) }
func (m Money) String() string              { return m.Value.StringFixed(2) + " " + m.Currency }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrganizerID string
type EntryID string

// =============================================================================
// ENTRY TYPE - Closed set of financial event kinds
// =============================================================================

// EntryType is deliberately a closed enum: every switch over it handles all
// five cases, so adding a kind is a compile-surface change rather than a
// silent fallthrough.
type EntryType string

const (
	EntryTicketSale EntryType = "ticket_sale" // Net revenue credited to pending
	EntryRefund     EntryType = "refund"      // Debit for a processed refund
	EntryWithdrawal EntryType = "withdrawal"  // Payout to the organizer
	EntryChargeback EntryType = "chargeback"  // Provider clawback
	EntryAdjustment EntryType = "adjustment"  // Manual admin correction (signed)
)

// EntryTypes returns all entry types in canonical order.
func EntryTypes() []EntryType {
	return []EntryType{EntryTicketSale, EntryRefund, EntryWithdrawal, EntryChargeback, EntryAdjustment}
}

func (t EntryType) Valid() bool {
	switch t {
	case EntryTicketSale, EntryRefund, EntryWithdrawal, EntryChargeback, EntryAdjustment:
		return true
	}
	return false
}

// =============================================================================
// BUCKET - The three organizer balances
// =============================================================================

type Bucket string

const (
	BucketPending   Bucket = "pending"   // Collected, not yet withdrawable
	BucketAvailable Bucket = "available" // Eligible for withdrawal
	BucketWithdrawn Bucket = "withdrawn" // Cumulative paid out
)

func (b Bucket) Valid() bool {
	switch b {
	case BucketPending, BucketAvailable, BucketWithdrawn:
		return true
	}
	return false
}

// =============================================================================
// LEDGER ENTRY - One immutable financial event
// =============================================================================

type LedgerEntry struct {
	ID          EntryID
	OrganizerID OrganizerID
	Type        EntryType

	// Amount is a positive magnitude for every type except adjustment,
	// which carries its sign. Use SignedAmount for arithmetic.
	Amount Money

	EntryDate time.Time
	ValueDate time.Time

	// Linkage to the originating transaction (whichever applies)
	TicketID     string
	RefundID     string
	WithdrawalID string

	// SettlementRef is the payment/payout provider's unique reference.
	// It is the idempotency key: at most one entry per reference.
	SettlementRef string

	// Balance snapshot after this entry was applied (audit trail)
	PendingAfter   Money
	AvailableAfter Money

	Description string
	CreatedAt   time.Time
}

// SignedAmount returns the entry's contribution to pending+available.
func (e LedgerEntry) SignedAmount() Money {
	switch e.Type {
	case EntryTicketSale:
		return e.Amount
	case EntryRefund, EntryWithdrawal, EntryChargeback:
		return e.Amount.Neg()
	case EntryAdjustment:
		return e.Amount // already signed
	default:
		return e.Amount.Zero()
	}
}

// =============================================================================
// ORGANIZER ACCOUNT & BALANCES
// =============================================================================

type OrganizerAccount struct {
	ID        OrganizerID
	Name      string
	Email     string
	Currency  string
	CreatedAt time.Time
}

// Balances is a point-in-time snapshot of an organizer's three buckets.
type Balances struct {
	OrganizerID OrganizerID
	Pending     Money
	Available   Money
	Withdrawn   Money
}

// Total returns pending + available: the money still inside the system.
// Withdrawn is excluded because it has already left.
func (b Balances) Total() Money {
	return b.Pending.Add(b.Available)
}

// Bucket returns the named bucket's current value.
func (b Balances) Bucket(bucket Bucket) Money {
	switch bucket {
	case BucketPending:
		return b.Pending
	case BucketAvailable:
		return b.Available
	case BucketWithdrawn:
		return b.Withdrawn
	default:
		return b.Pending.Zero()
	}
}

// =============================================================================
// SOURCE TRANSACTIONS - Owned by external collaborators
// =============================================================================
// Only settled rows count toward reconciliation totals: tickets that are
// active or checked in, refunds that are processed, withdrawals that are
// completed.

type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketActive    TicketStatus = "active"
	TicketCheckedIn TicketStatus = "checked_in"
	TicketCanceled  TicketStatus = "canceled"
)

type TicketSale struct {
	ID            string
	OrganizerID   OrganizerID
	EventID       string
	AmountPaid    Money
	Status        TicketStatus
	SettlementRef string
	SoldAt        time.Time
}

func (t TicketSale) Settled() bool {
	return t.Status == TicketActive || t.Status == TicketCheckedIn
}

type RefundStatus string

const (
	RefundRequested RefundStatus = "requested"
	RefundProcessed RefundStatus = "processed"
	RefundRejected  RefundStatus = "rejected"
)

type Refund struct {
	ID          string
	OrganizerID OrganizerID
	TicketID    string
	Amount      Money
	Status      RefundStatus
	RequestedAt time.Time
	ProcessedAt time.Time
}

func (r Refund) Settled() bool { return r.Status == RefundProcessed }

type WithdrawalStatus string

const (
	WithdrawalRequested WithdrawalStatus = "requested"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

type Withdrawal struct {
	ID            string
	OrganizerID   OrganizerID
	Amount        Money
	Status        WithdrawalStatus
	AccountNumber string
	SettlementRef string
	RequestedAt   time.Time
	CompletedAt   time.Time
}

func (w Withdrawal) Settled() bool { return w.Status == WithdrawalCompleted }

// MaskAccountNumber hides all but the last four digits for reports.
func MaskAccountNumber(s string) string {
	if len(s) <= 4 {
		return s
	}
	masked := make([]byte, len(s)-4)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + s[len(s)-4:]
}
