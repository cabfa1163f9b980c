/*
Package settlement is the boundary where the ticket, refund, and withdrawal
subsystems hand confirmed financial events to the ledger engine.

PURPOSE:
  Each operation here is one atomic unit: the balance mutation and the
  ledger entry recording it commit together, or neither does. A webhook
  replaying an already-recorded settlement reference gets
  ErrDuplicateSettlement and changes nothing, so callers can retry with the
  same reference as often as they like.

THE FLOWS (who calls what):
  Ticket/Payment subsystem, on payment settlement:
    RecordTicketSale  -> credit(PENDING, net-of-fee), TICKET_SALE entry
  Refund subsystem, on refund processing:
    RecordRefund      -> debit(PENDING or AVAILABLE), REFUND entry
  Withdrawal subsystem, on payout confirmation:
    RecordWithdrawal  -> debit(AVAILABLE), credit(WITHDRAWN), WITHDRAWAL entry
  Payment provider, on dispute:
    RecordChargeback  -> debit(named bucket), CHARGEBACK entry
  Admins:
    RecordAdjustment  -> signed correction, ADJUSTMENT entry
  Holding-window maturation:
    ReleasePending    -> pending -> available (no entry: net balance unchanged)

SEE ALSO:
  - ledger/store.go: TxStore, the transactional view these flows run in
  - ledger/reconcile.go: Verifies this package's bookkeeping from the outside
*/
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
)

// Processor records settlement events atomically.
type Processor struct {
	Store      ledger.TxStore
	Organizers ledger.OrganizerStore
	Config     ledger.Config
}

func NewProcessor(store ledger.TxStore, organizers ledger.OrganizerStore, cfg ledger.Config) *Processor {
	return &Processor{Store: store, Organizers: organizers, Config: cfg}
}

// =============================================================================
// INPUTS
// =============================================================================

type TicketSaleInput struct {
	OrganizerID   ledger.OrganizerID
	TicketID      string
	EventID       string
	AmountPaid    ledger.Money // gross, before the platform fee
	SettlementRef string
	SoldAt        time.Time
	Status        ledger.TicketStatus // defaults to active
}

type RefundInput struct {
	OrganizerID   ledger.OrganizerID
	RefundID      string
	TicketID      string
	Amount        ledger.Money
	Bucket        ledger.Bucket // PENDING (default) or AVAILABLE
	SettlementRef string
	ProcessedAt   time.Time
}

type WithdrawalInput struct {
	OrganizerID   ledger.OrganizerID
	WithdrawalID  string
	Amount        ledger.Money
	AccountNumber string
	SettlementRef string
	CompletedAt   time.Time
}

type ChargebackInput struct {
	OrganizerID   ledger.OrganizerID
	TicketID      string
	Amount        ledger.Money
	Bucket        ledger.Bucket // defaults to PENDING
	SettlementRef string
	OccurredAt    time.Time
}

type AdjustmentInput struct {
	OrganizerID ledger.OrganizerID
	Amount      ledger.Money  // signed: positive credits, negative debits
	Bucket      ledger.Bucket // defaults to AVAILABLE
	Reason      string
	AppliedAt   time.Time
}

// =============================================================================
// SETTLEMENT OPERATIONS
// =============================================================================

// RecordTicketSale credits the net-of-fee amount to pending and appends the
// matching TICKET_SALE entry, in one transaction.
func (p *Processor) RecordTicketSale(ctx context.Context, in TicketSaleInput) (*ledger.LedgerEntry, error) {
	if err := p.requireOrganizer(ctx, in.OrganizerID); err != nil {
		return nil, err
	}
	if !in.AmountPaid.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	status := in.Status
	if status == "" {
		status = ledger.TicketActive
	}

	net := p.Config.NetOf(in.AmountPaid)

	var entry ledger.LedgerEntry
	err := p.Store.WithTx(ctx, func(s ledger.LedgerStore) error {
		if err := p.guardSettlementRef(ctx, s, in.SettlementRef); err != nil {
			return err
		}

		bal, err := s.Credit(ctx, in.OrganizerID, ledger.BucketPending, net)
		if err != nil {
			return err
		}

		entry = ledger.LedgerEntry{
			ID:             ledger.EntryID(uuid.NewString()),
			OrganizerID:    in.OrganizerID,
			Type:           ledger.EntryTicketSale,
			Amount:         net,
			EntryDate:      in.SoldAt,
			ValueDate:      in.SoldAt,
			TicketID:       in.TicketID,
			SettlementRef:  in.SettlementRef,
			PendingAfter:   bal.Pending,
			AvailableAfter: bal.Available,
			Description:    fmt.Sprintf("ticket sale %s (net of %s%% fee)", in.TicketID, p.Config.PlatformFeePercent),
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}

		return s.SaveTicketSale(ctx, ledger.TicketSale{
			ID:            in.TicketID,
			OrganizerID:   in.OrganizerID,
			EventID:       in.EventID,
			AmountPaid:    in.AmountPaid,
			Status:        status,
			SettlementRef: in.SettlementRef,
			SoldAt:        in.SoldAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecordRefund debits the named bucket and appends the REFUND entry.
func (p *Processor) RecordRefund(ctx context.Context, in RefundInput) (*ledger.LedgerEntry, error) {
	if err := p.requireOrganizer(ctx, in.OrganizerID); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	bucket := in.Bucket
	if bucket == "" {
		bucket = ledger.BucketPending
	}
	if bucket != ledger.BucketPending && bucket != ledger.BucketAvailable {
		return nil, ledger.ErrInvalidBucket
	}

	var entry ledger.LedgerEntry
	err := p.Store.WithTx(ctx, func(s ledger.LedgerStore) error {
		if err := p.guardSettlementRef(ctx, s, in.SettlementRef); err != nil {
			return err
		}

		bal, err := s.Debit(ctx, in.OrganizerID, bucket, in.Amount)
		if err != nil {
			return err
		}

		entry = ledger.LedgerEntry{
			ID:             ledger.EntryID(uuid.NewString()),
			OrganizerID:    in.OrganizerID,
			Type:           ledger.EntryRefund,
			Amount:         in.Amount,
			EntryDate:      in.ProcessedAt,
			ValueDate:      in.ProcessedAt,
			TicketID:       in.TicketID,
			RefundID:       in.RefundID,
			SettlementRef:  in.SettlementRef,
			PendingAfter:   bal.Pending,
			AvailableAfter: bal.Available,
			Description:    fmt.Sprintf("refund %s for ticket %s", in.RefundID, in.TicketID),
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}

		return s.SaveRefund(ctx, ledger.Refund{
			ID:          in.RefundID,
			OrganizerID: in.OrganizerID,
			TicketID:    in.TicketID,
			Amount:      in.Amount,
			Status:      ledger.RefundProcessed,
			RequestedAt: in.ProcessedAt,
			ProcessedAt: in.ProcessedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecordWithdrawal moves a confirmed payout from available to withdrawn and
// appends the WITHDRAWAL entry.
func (p *Processor) RecordWithdrawal(ctx context.Context, in WithdrawalInput) (*ledger.LedgerEntry, error) {
	if err := p.requireOrganizer(ctx, in.OrganizerID); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	var entry ledger.LedgerEntry
	err := p.Store.WithTx(ctx, func(s ledger.LedgerStore) error {
		if err := p.guardSettlementRef(ctx, s, in.SettlementRef); err != nil {
			return err
		}

		if _, err := s.Debit(ctx, in.OrganizerID, ledger.BucketAvailable, in.Amount); err != nil {
			return err
		}
		bal, err := s.Credit(ctx, in.OrganizerID, ledger.BucketWithdrawn, in.Amount)
		if err != nil {
			return err
		}

		entry = ledger.LedgerEntry{
			ID:             ledger.EntryID(uuid.NewString()),
			OrganizerID:    in.OrganizerID,
			Type:           ledger.EntryWithdrawal,
			Amount:         in.Amount,
			EntryDate:      in.CompletedAt,
			ValueDate:      in.CompletedAt,
			WithdrawalID:   in.WithdrawalID,
			SettlementRef:  in.SettlementRef,
			PendingAfter:   bal.Pending,
			AvailableAfter: bal.Available,
			Description:    fmt.Sprintf("withdrawal %s to %s", in.WithdrawalID, ledger.MaskAccountNumber(in.AccountNumber)),
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}

		return s.SaveWithdrawal(ctx, ledger.Withdrawal{
			ID:            in.WithdrawalID,
			OrganizerID:   in.OrganizerID,
			Amount:        in.Amount,
			Status:        ledger.WithdrawalCompleted,
			AccountNumber: in.AccountNumber,
			SettlementRef: in.SettlementRef,
			RequestedAt:   in.CompletedAt,
			CompletedAt:   in.CompletedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecordChargeback claws back a disputed payment from the named bucket.
func (p *Processor) RecordChargeback(ctx context.Context, in ChargebackInput) (*ledger.LedgerEntry, error) {
	if err := p.requireOrganizer(ctx, in.OrganizerID); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	bucket := in.Bucket
	if bucket == "" {
		bucket = ledger.BucketPending
	}
	if bucket != ledger.BucketPending && bucket != ledger.BucketAvailable {
		return nil, ledger.ErrInvalidBucket
	}

	var entry ledger.LedgerEntry
	err := p.Store.WithTx(ctx, func(s ledger.LedgerStore) error {
		if err := p.guardSettlementRef(ctx, s, in.SettlementRef); err != nil {
			return err
		}

		bal, err := s.Debit(ctx, in.OrganizerID, bucket, in.Amount)
		if err != nil {
			return err
		}

		entry = ledger.LedgerEntry{
			ID:             ledger.EntryID(uuid.NewString()),
			OrganizerID:    in.OrganizerID,
			Type:           ledger.EntryChargeback,
			Amount:         in.Amount,
			EntryDate:      in.OccurredAt,
			ValueDate:      in.OccurredAt,
			TicketID:       in.TicketID,
			SettlementRef:  in.SettlementRef,
			PendingAfter:   bal.Pending,
			AvailableAfter: bal.Available,
			Description:    fmt.Sprintf("chargeback on ticket %s", in.TicketID),
			CreatedAt:      time.Now().UTC(),
		}
		return s.AppendEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecordAdjustment applies a signed manual correction with an audit entry.
func (p *Processor) RecordAdjustment(ctx context.Context, in AdjustmentInput) (*ledger.LedgerEntry, error) {
	if err := p.requireOrganizer(ctx, in.OrganizerID); err != nil {
		return nil, err
	}
	if in.Amount.IsZero() {
		return nil, ledger.ErrInvalidAmount
	}
	bucket := in.Bucket
	if bucket == "" {
		bucket = ledger.BucketAvailable
	}
	if !bucket.Valid() {
		return nil, ledger.ErrInvalidBucket
	}

	var entry ledger.LedgerEntry
	err := p.Store.WithTx(ctx, func(s ledger.LedgerStore) error {
		var bal ledger.Balances
		var err error
		if in.Amount.IsNegative() {
			bal, err = s.Debit(ctx, in.OrganizerID, bucket, in.Amount.Neg())
		} else {
			bal, err = s.Credit(ctx, in.OrganizerID, bucket, in.Amount)
		}
		if err != nil {
			return err
		}

		entry = ledger.LedgerEntry{
			ID:             ledger.EntryID(uuid.NewString()),
			OrganizerID:    in.OrganizerID,
			Type:           ledger.EntryAdjustment,
			Amount:         in.Amount, // keeps its sign
			EntryDate:      in.AppliedAt,
			ValueDate:      in.AppliedAt,
			PendingAfter:   bal.Pending,
			AvailableAfter: bal.Available,
			Description:    in.Reason,
			CreatedAt:      time.Now().UTC(),
		}
		return s.AppendEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReleasePending matures funds out of the holding window: pending down,
// available up, total unchanged. No ledger entry is written because the
// reconstructible pending+available sum does not move.
func (p *Processor) ReleasePending(ctx context.Context, id ledger.OrganizerID, amount ledger.Money) (ledger.Balances, error) {
	if err := p.requireOrganizer(ctx, id); err != nil {
		return ledger.Balances{}, err
	}
	if !amount.IsPositive() {
		return ledger.Balances{}, ledger.ErrInvalidAmount
	}

	var result ledger.Balances
	err := p.Store.WithTx(ctx, func(s ledger.LedgerStore) error {
		if _, err := s.Debit(ctx, id, ledger.BucketPending, amount); err != nil {
			return err
		}
		bal, err := s.Credit(ctx, id, ledger.BucketAvailable, amount)
		if err != nil {
			return err
		}
		result = bal
		return nil
	})
	if err != nil {
		return ledger.Balances{}, err
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// guardSettlementRef runs the duplicate check before any balance mutation so
// a replayed webhook cannot move money.
func (p *Processor) guardSettlementRef(ctx context.Context, s ledger.LedgerStore, ref string) error {
	if ref == "" {
		return nil
	}
	exists, existingID, err := s.SettlementRefExists(ctx, ref)
	if err != nil {
		return err
	}
	if exists {
		return &ledger.DuplicateSettlementError{SettlementRef: ref, ExistingEntryID: existingID}
	}
	return nil
}

func (p *Processor) requireOrganizer(ctx context.Context, id ledger.OrganizerID) error {
	o, err := p.Organizers.GetOrganizer(ctx, id)
	if err != nil {
		return err
	}
	if o == nil {
		return ledger.ErrOrganizerNotFound
	}
	return nil
}
