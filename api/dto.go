/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY REPRESENTATION:
  Monetary values cross the wire as strings with two decimal places
  ("9500.00"), never as JSON numbers. Clients that parse them as binary
  floats get exactly the rounding bugs this system exists to prevent, but
  at least the contract does not force it on them.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/reconcile.go: The domain report types these flatten
*/
package api

import (
	"time"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
)

// =============================================================================
// ORGANIZER TYPES
// =============================================================================

// OrganizerDTO represents an organizer account in API responses.
type OrganizerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Currency  string `json:"currency"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateOrganizerRequest is the request to create an organizer.
type CreateOrganizerRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// BalancesDTO represents the three-bucket balance snapshot.
type BalancesDTO struct {
	OrganizerID string `json:"organizer_id"`
	Pending     string `json:"pending"`
	Available   string `json:"available"`
	Withdrawn   string `json:"withdrawn"`
	Total       string `json:"total"` // pending + available
	Currency    string `json:"currency"`
}

// =============================================================================
// LEDGER ENTRY TYPES
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID             string `json:"id"`
	OrganizerID    string `json:"organizer_id"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	EntryDate      string `json:"entry_date"`
	ValueDate      string `json:"value_date"`
	TicketID       string `json:"ticket_id,omitempty"`
	RefundID       string `json:"refund_id,omitempty"`
	WithdrawalID   string `json:"withdrawal_id,omitempty"`
	SettlementRef  string `json:"settlement_ref,omitempty"`
	PendingAfter   string `json:"pending_after"`
	AvailableAfter string `json:"available_after"`
	Description    string `json:"description,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// =============================================================================
// SETTLEMENT REQUEST TYPES
// =============================================================================

// TicketSaleRequest records a settled ticket payment.
type TicketSaleRequest struct {
	OrganizerID   string `json:"organizer_id"`
	TicketID      string `json:"ticket_id"`
	EventID       string `json:"event_id,omitempty"`
	AmountPaid    string `json:"amount_paid"` // gross, before the platform fee
	Currency      string `json:"currency,omitempty"`
	SettlementRef string `json:"settlement_ref"`
	SoldAt        string `json:"sold_at,omitempty"` // RFC3339; defaults to now
}

// RefundRequest records a processed refund.
type RefundRequest struct {
	OrganizerID   string `json:"organizer_id"`
	RefundID      string `json:"refund_id"`
	TicketID      string `json:"ticket_id,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	Bucket        string `json:"bucket,omitempty"` // pending (default) or available
	SettlementRef string `json:"settlement_ref"`
	ProcessedAt   string `json:"processed_at,omitempty"`
}

// WithdrawalRequest records a completed payout.
type WithdrawalRequest struct {
	OrganizerID   string `json:"organizer_id"`
	WithdrawalID  string `json:"withdrawal_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	SettlementRef string `json:"settlement_ref"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// ChargebackRequest records a provider clawback.
type ChargebackRequest struct {
	OrganizerID   string `json:"organizer_id"`
	TicketID      string `json:"ticket_id,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	Bucket        string `json:"bucket,omitempty"`
	SettlementRef string `json:"settlement_ref"`
	OccurredAt    string `json:"occurred_at,omitempty"`
}

// AdjustmentRequest records a signed manual correction.
type AdjustmentRequest struct {
	OrganizerID string `json:"organizer_id"`
	Amount      string `json:"amount"` // signed
	Currency    string `json:"currency,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
	Reason      string `json:"reason"`
}

// ReleaseRequest matures pending funds into available.
type ReleaseRequest struct {
	OrganizerID string `json:"organizer_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
}

// =============================================================================
// RECONCILIATION TYPES
// =============================================================================

// ReconciliationReportDTO is the per-organizer reconciliation response.
type ReconciliationReportDTO struct {
	OrganizerID string `json:"organizer_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	TicketSalesTotal string `json:"ticket_sales_total"`
	RefundsTotal     string `json:"refunds_total"`
	WithdrawalsTotal string `json:"withdrawals_total"`
	SaleCount        int    `json:"sale_count"`
	RefundCount      int    `json:"refund_count"`
	WithdrawalCount  int    `json:"withdrawal_count"`

	PlatformFees string `json:"platform_fees"`
	NetRevenue   string `json:"net_revenue"`

	CalculatedBalance string `json:"calculated_balance"`
	StoredBalance     string `json:"stored_balance"`
	Discrepancy       string `json:"discrepancy"`
	HasDiscrepancy    bool   `json:"has_discrepancy"`

	Sales       []TicketSaleDetailDTO `json:"sales"`
	Refunds     []RefundDetailDTO     `json:"refunds"`
	Withdrawals []WithdrawalDetailDTO `json:"withdrawals"`

	GeneratedAt string `json:"generated_at"`
}

// TicketSaleDetailDTO is one source ticket in the report detail.
type TicketSaleDetailDTO struct {
	ID            string `json:"id"`
	EventID       string `json:"event_id,omitempty"`
	AmountPaid    string `json:"amount_paid"`
	Status        string `json:"status"`
	SettlementRef string `json:"settlement_ref,omitempty"`
	SoldAt        string `json:"sold_at"`
}

// RefundDetailDTO is one source refund in the report detail.
type RefundDetailDTO struct {
	ID          string `json:"id"`
	TicketID    string `json:"ticket_id,omitempty"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	ProcessedAt string `json:"processed_at"`
}

// WithdrawalDetailDTO is one source withdrawal in the report detail.
// The account number is already masked by the reconciler.
type WithdrawalDetailDTO struct {
	ID            string `json:"id"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	AccountNumber string `json:"account_number,omitempty"`
	CompletedAt   string `json:"completed_at"`
}

// SweepReportDTO is the platform-wide drift check response.
type SweepReportDTO struct {
	PeriodStart      string            `json:"period_start"`
	PeriodEnd        string            `json:"period_end"`
	CheckedCount     int               `json:"checked_count"`
	FlaggedCount     int               `json:"flagged_count"`
	TotalDiscrepancy string            `json:"total_discrepancy"`
	Findings         []SweepFindingDTO `json:"findings"`
	GeneratedAt      string            `json:"generated_at"`
}

// SweepFindingDTO is one flagged organizer in a sweep.
type SweepFindingDTO struct {
	OrganizerID       string `json:"organizer_id"`
	CalculatedBalance string `json:"calculated_balance"`
	StoredBalance     string `json:"stored_balance"`
	Discrepancy       string `json:"discrepancy"`
}

// =============================================================================
// SUMMARY TYPES
// =============================================================================

// SummaryDTO is the period/daily summary response.
type SummaryDTO struct {
	OrganizerID  string           `json:"organizer_id"`
	PeriodStart  string           `json:"period_start"`
	PeriodEnd    string           `json:"period_end"`
	ByType       []TypeSummaryDTO `json:"by_type"`
	GrossCredits string           `json:"gross_credits"`
	GrossDebits  string           `json:"gross_debits"`
	NetMovement  string           `json:"net_movement"`
	EntryCount   int              `json:"entry_count"`
}

// TypeSummaryDTO is one entry-type row in a summary.
type TypeSummaryDTO struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	Total string `json:"total"`
}

// =============================================================================
// MAINTENANCE TYPES
// =============================================================================

// MaintenanceResultDTO reports one backfill/dedup run.
type MaintenanceResultDTO struct {
	Backfilled     int            `json:"backfilled"`
	SkippedNoRef   int            `json:"skipped_no_ref"`
	DuplicateRefs  int            `json:"duplicate_refs"`
	DeletedEntries int            `json:"deleted_entries"`
	OrphansBefore  int            `json:"orphans_before"`
	OrphansAfter   int            `json:"orphans_after"`
	CountsByType   map[string]int `json:"counts_by_type"`
	Verified       bool           `json:"verified"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(m ledger.Money) string {
	return m.Value.StringFixed(2)
}

func toOrganizerDTO(o ledger.OrganizerAccount) OrganizerDTO {
	return OrganizerDTO{
		ID:        string(o.ID),
		Name:      o.Name,
		Email:     o.Email,
		Currency:  o.Currency,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

func toBalancesDTO(b ledger.Balances, currency string) BalancesDTO {
	return BalancesDTO{
		OrganizerID: string(b.OrganizerID),
		Pending:     money(b.Pending),
		Available:   money(b.Available),
		Withdrawn:   money(b.Withdrawn),
		Total:       money(b.Total()),
		Currency:    currency,
	}
}

func toEntryDTO(e ledger.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:             string(e.ID),
		OrganizerID:    string(e.OrganizerID),
		Type:           string(e.Type),
		Amount:         money(e.Amount),
		Currency:       e.Amount.Currency,
		EntryDate:      e.EntryDate.Format(time.RFC3339),
		ValueDate:      e.ValueDate.Format(time.RFC3339),
		TicketID:       e.TicketID,
		RefundID:       e.RefundID,
		WithdrawalID:   e.WithdrawalID,
		SettlementRef:  e.SettlementRef,
		PendingAfter:   money(e.PendingAfter),
		AvailableAfter: money(e.AvailableAfter),
		Description:    e.Description,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []ledger.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toReconciliationReportDTO(r *ledger.OrganizerReport) ReconciliationReportDTO {
	dto := ReconciliationReportDTO{
		OrganizerID: string(r.OrganizerID),
		PeriodStart: r.Period.Start.Format(time.RFC3339),
		PeriodEnd:   r.Period.End.Format(time.RFC3339),

		TicketSalesTotal: money(r.Totals.TicketSales),
		RefundsTotal:     money(r.Totals.Refunds),
		WithdrawalsTotal: money(r.Totals.Withdrawals),
		SaleCount:        r.Totals.SaleCount,
		RefundCount:      r.Totals.RefundCount,
		WithdrawalCount:  r.Totals.WithdrawalCount,

		PlatformFees: money(r.PlatformFees),
		NetRevenue:   money(r.NetRevenue),

		CalculatedBalance: money(r.CalculatedBalance),
		StoredBalance:     money(r.StoredBalance),
		Discrepancy:       money(r.Discrepancy),
		HasDiscrepancy:    r.HasDiscrepancy,

		Sales:       make([]TicketSaleDetailDTO, 0, len(r.Sales)),
		Refunds:     make([]RefundDetailDTO, 0, len(r.Refunds)),
		Withdrawals: make([]WithdrawalDetailDTO, 0, len(r.Withdrawals)),

		GeneratedAt: r.GeneratedAt.Format(time.RFC3339),
	}

	for _, s := range r.Sales {
		dto.Sales = append(dto.Sales, TicketSaleDetailDTO{
			ID:            s.ID,
			EventID:       s.EventID,
			AmountPaid:    money(s.AmountPaid),
			Status:        string(s.Status),
			SettlementRef: s.SettlementRef,
			SoldAt:        s.SoldAt.Format(time.RFC3339),
		})
	}
	for _, f := range r.Refunds {
		dto.Refunds = append(dto.Refunds, RefundDetailDTO{
			ID:          f.ID,
			TicketID:    f.TicketID,
			Amount:      money(f.Amount),
			Status:      string(f.Status),
			ProcessedAt: f.ProcessedAt.Format(time.RFC3339),
		})
	}
	for _, w := range r.Withdrawals {
		dto.Withdrawals = append(dto.Withdrawals, WithdrawalDetailDTO{
			ID:            w.ID,
			Amount:        money(w.Amount),
			Status:        string(w.Status),
			AccountNumber: w.AccountNumber,
			CompletedAt:   w.CompletedAt.Format(time.RFC3339),
		})
	}

	return dto
}

func toSweepReportDTO(r *ledger.SweepReport) SweepReportDTO {
	dto := SweepReportDTO{
		PeriodStart:      r.Period.Start.Format(time.RFC3339),
		PeriodEnd:        r.Period.End.Format(time.RFC3339),
		CheckedCount:     r.CheckedCount,
		FlaggedCount:     r.FlaggedCount,
		TotalDiscrepancy: money(r.TotalDiscrepancy),
		Findings:         make([]SweepFindingDTO, 0, len(r.Findings)),
		GeneratedAt:      r.GeneratedAt.Format(time.RFC3339),
	}
	for _, f := range r.Findings {
		dto.Findings = append(dto.Findings, SweepFindingDTO{
			OrganizerID:       string(f.OrganizerID),
			CalculatedBalance: money(f.CalculatedBalance),
			StoredBalance:     money(f.StoredBalance),
			Discrepancy:       money(f.Discrepancy),
		})
	}
	return dto
}

func toSummaryDTO(s *ledger.Summary) SummaryDTO {
	dto := SummaryDTO{
		OrganizerID:  string(s.OrganizerID),
		PeriodStart:  s.Period.Start.Format(time.RFC3339),
		PeriodEnd:    s.Period.End.Format(time.RFC3339),
		ByType:       make([]TypeSummaryDTO, 0, len(s.ByType)),
		GrossCredits: money(s.GrossCredits),
		GrossDebits:  money(s.GrossDebits),
		NetMovement:  money(s.NetMovement),
		EntryCount:   s.EntryCount,
	}
	for _, t := range s.ByType {
		dto.ByType = append(dto.ByType, TypeSummaryDTO{
			Type:  string(t.Type),
			Count: t.Count,
			Total: money(t.Total),
		})
	}
	return dto
}

func toMaintenanceResultDTO(r *ledger.MaintenanceResult) MaintenanceResultDTO {
	counts := make(map[string]int, len(r.CountsByType))
	for t, n := range r.CountsByType {
		counts[string(t)] = n
	}
	return MaintenanceResultDTO{
		Backfilled:     r.Backfilled,
		SkippedNoRef:   r.SkippedNoRef,
		DuplicateRefs:  r.DuplicateRefs,
		DeletedEntries: r.DeletedEntries,
		OrphansBefore:  r.OrphansBefore,
		OrphansAfter:   r.OrphansAfter,
		CountsByType:   counts,
		Verified:       r.Verified,
	}
}
