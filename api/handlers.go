/*
handlers.go - HTTP API handlers for the organizer ledger engine

PURPOSE:
  Exposes the ledger, balance, reconciliation, and maintenance operations
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Organizers:
    GET    /api/organizers                      List organizers
    POST   /api/organizers                      Create organizer
    GET    /api/organizers/{id}                 Get organizer
    GET    /api/organizers/{id}/balances        Three-bucket snapshot
    GET    /api/organizers/{id}/entries         Ledger history (filterable)
    GET    /api/organizers/{id}/reconciliation  Per-organizer report
    GET    /api/organizers/{id}/summary         Daily/period summary

  Settlements (collaborator webhooks):
    POST   /api/settlements/ticket-sales        Record settled sale
    POST   /api/settlements/refunds             Record processed refund
    POST   /api/settlements/withdrawals         Record completed payout
    POST   /api/settlements/chargebacks         Record provider clawback
    POST   /api/settlements/adjustments         Manual correction
    POST   /api/settlements/release             Mature pending -> available

  Admin:
    GET    /api/admin/reconciliation/sweep      Platform-wide drift check
    POST   /api/admin/maintenance/ledger        Backfill/dedup run

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    POST   /api/scenarios/load                  Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Organizer or entry not found
  - 409: Duplicate settlement reference, insufficient balance
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
	"github.com/Oltking/hdticketdesk-sub003/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the full storage surface the handlers need. Both the SQLite
// store and the in-memory store satisfy it.
type Backend interface {
	ledger.TxStore
	ledger.OrganizerStore
	ledger.MaintenanceStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Backend
	Config ledger.Config

	Processor   *settlement.Processor
	Reconciler  *ledger.Reconciler
	Summarizer  *ledger.Summarizer
	Maintenance *ledger.Maintenance

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Backend, cfg ledger.Config) *Handler {
	return &Handler{
		Store:       store,
		Config:      cfg,
		Processor:   settlement.NewProcessor(store, store, cfg),
		Reconciler:  ledger.NewReconciler(cfg, store, store),
		Summarizer:  ledger.NewSummarizer(store, cfg),
		Maintenance: ledger.NewMaintenance(store, store),
	}
}

// =============================================================================
// ORGANIZER HANDLERS
// =============================================================================

// ListOrganizers returns all organizer accounts.
func (h *Handler) ListOrganizers(w http.ResponseWriter, r *http.Request) {
	organizers, err := h.Store.ListOrganizers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list organizers", err)
		return
	}

	dtos := make([]OrganizerDTO, len(organizers))
	for i, o := range organizers {
		dtos[i] = toOrganizerDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOrganizer returns a single organizer.
func (h *Handler) GetOrganizer(w http.ResponseWriter, r *http.Request) {
	id := ledger.OrganizerID(chi.URLParam(r, "id"))

	o, err := h.Store.GetOrganizer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get organizer", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Organizer not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toOrganizerDTO(*o))
}

// CreateOrganizer creates a new organizer account.
func (h *Handler) CreateOrganizer(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = ledger.DefaultCurrency
	}

	o := ledger.OrganizerAccount{
		ID:        ledger.OrganizerID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveOrganizer(r.Context(), o); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create organizer", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrganizerDTO(o))
}

// GetBalances returns the organizer's three-bucket snapshot.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := ledger.OrganizerID(chi.URLParam(r, "id"))

	o, err := h.Store.GetOrganizer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get organizer", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Organizer not found", nil)
		return
	}

	balances, err := h.Store.GetBalances(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get balances", err)
		return
	}

	writeJSON(w, http.StatusOK, toBalancesDTO(balances, o.Currency))
}

// GetEntries returns the organizer's ledger history, optionally filtered by
// entry type (?type=) and date window (?from=&to=).
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	id := ledger.OrganizerID(chi.URLParam(r, "id"))

	o, err := h.Store.GetOrganizer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get organizer", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Organizer not found", nil)
		return
	}

	var filter ledger.EntryFilter
	if t := r.URL.Query().Get("type"); t != "" {
		entryType := ledger.EntryType(t)
		if !entryType.Valid() {
			writeError(w, http.StatusBadRequest, "Unknown entry type: "+t, nil)
			return
		}
		filter.Type = &entryType
	}

	period, ok := parseOptionalPeriod(w, r)
	if !ok {
		return
	}
	filter.Period = period

	entries, err := h.Store.Entries(r.Context(), id, filter)
	if err != nil {
		writeDomainError(w, "Failed to get entries", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"organizer_id": string(id),
		"entries":      toEntryDTOs(entries),
		"count":        len(entries),
	})
}

// GetReconciliation runs the per-organizer reconciliation report.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id := ledger.OrganizerID(chi.URLParam(r, "id"))

	period, ok := parseOptionalPeriod(w, r)
	if !ok {
		return
	}

	report, err := h.Reconciler.OrganizerReport(r.Context(), id, period)
	if err != nil {
		writeDomainError(w, "Failed to reconcile", err)
		return
	}

	writeJSON(w, http.StatusOK, toReconciliationReportDTO(report))
}

// GetSummary returns a daily (?date=) or period (?from=&to=) summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := ledger.OrganizerID(chi.URLParam(r, "id"))
	ctx := r.Context()

	o, err := h.Store.GetOrganizer(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get organizer", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Organizer not found", nil)
		return
	}

	if d := r.URL.Query().Get("date"); d != "" {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		summary, err := h.Summarizer.DailySummary(ctx, id, day)
		if err != nil {
			writeDomainError(w, "Failed to summarize", err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaryDTO(summary))
		return
	}

	period, ok := parseOptionalPeriod(w, r)
	if !ok {
		return
	}
	if period == nil {
		p := ledger.TrailingDays(time.Now().UTC(), h.Config.DefaultWindowDays)
		period = &p
	}

	summary, err := h.Summarizer.PeriodSummary(ctx, id, *period)
	if err != nil {
		writeDomainError(w, "Failed to summarize", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// RecordTicketSale records a settled ticket payment.
func (h *Handler) RecordTicketSale(w http.ResponseWriter, r *http.Request) {
	var req TicketSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.AmountPaid, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount_paid", err)
		return
	}
	soldAt, err := parseTimeOrNow(req.SoldAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sold_at (use RFC3339)", err)
		return
	}

	entry, err := h.Processor.RecordTicketSale(r.Context(), settlement.TicketSaleInput{
		OrganizerID:   ledger.OrganizerID(req.OrganizerID),
		TicketID:      req.TicketID,
		EventID:       req.EventID,
		AmountPaid:    amount,
		SettlementRef: req.SettlementRef,
		SoldAt:        soldAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to record ticket sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// RecordRefund records a processed refund.
func (h *Handler) RecordRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	processedAt, err := parseTimeOrNow(req.ProcessedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid processed_at (use RFC3339)", err)
		return
	}

	entry, err := h.Processor.RecordRefund(r.Context(), settlement.RefundInput{
		OrganizerID:   ledger.OrganizerID(req.OrganizerID),
		RefundID:      req.RefundID,
		TicketID:      req.TicketID,
		Amount:        amount,
		Bucket:        ledger.Bucket(req.Bucket),
		SettlementRef: req.SettlementRef,
		ProcessedAt:   processedAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to record refund", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// RecordWithdrawal records a completed payout.
func (h *Handler) RecordWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	completedAt, err := parseTimeOrNow(req.CompletedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid completed_at (use RFC3339)", err)
		return
	}

	entry, err := h.Processor.RecordWithdrawal(r.Context(), settlement.WithdrawalInput{
		OrganizerID:   ledger.OrganizerID(req.OrganizerID),
		WithdrawalID:  req.WithdrawalID,
		Amount:        amount,
		AccountNumber: req.AccountNumber,
		SettlementRef: req.SettlementRef,
		CompletedAt:   completedAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to record withdrawal", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// RecordChargeback records a provider clawback.
func (h *Handler) RecordChargeback(w http.ResponseWriter, r *http.Request) {
	var req ChargebackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	occurredAt, err := parseTimeOrNow(req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid occurred_at (use RFC3339)", err)
		return
	}

	entry, err := h.Processor.RecordChargeback(r.Context(), settlement.ChargebackInput{
		OrganizerID:   ledger.OrganizerID(req.OrganizerID),
		TicketID:      req.TicketID,
		Amount:        amount,
		Bucket:        ledger.Bucket(req.Bucket),
		SettlementRef: req.SettlementRef,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to record chargeback", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// RecordAdjustment records a signed manual correction.
func (h *Handler) RecordAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	entry, err := h.Processor.RecordAdjustment(r.Context(), settlement.AdjustmentInput{
		OrganizerID: ledger.OrganizerID(req.OrganizerID),
		Amount:      amount,
		Bucket:      ledger.Bucket(req.Bucket),
		Reason:      req.Reason,
		AppliedAt:   time.Now().UTC(),
	})
	if err != nil {
		writeDomainError(w, "Failed to record adjustment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// ReleaseFunds matures pending funds into available.
func (h *Handler) ReleaseFunds(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	id := ledger.OrganizerID(req.OrganizerID)
	balances, err := h.Processor.ReleasePending(r.Context(), id, amount)
	if err != nil {
		writeDomainError(w, "Failed to release funds", err)
		return
	}

	currency := h.Config.Currency
	if o, err := h.Store.GetOrganizer(r.Context(), id); err == nil && o != nil {
		currency = o.Currency
	}
	writeJSON(w, http.StatusOK, toBalancesDTO(balances, currency))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunSweep runs the platform-wide balance drift check.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	period, ok := parseOptionalPeriod(w, r)
	if !ok {
		return
	}

	report, err := h.Reconciler.CheckAllBalanceDiscrepancies(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to run sweep", err)
		return
	}

	writeJSON(w, http.StatusOK, toSweepReportDTO(report))
}

// RunMaintenance executes the one-time ledger backfill/dedup operation.
// Safe to call repeatedly.
func (h *Handler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	result, err := h.Maintenance.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to run maintenance", err)
		return
	}

	writeJSON(w, http.StatusOK, toMaintenanceResultDTO(result))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseMoney(value, currency string) (ledger.Money, error) {
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return ledger.Money{}, err
	}
	return ledger.Money{Value: d, Currency: currency}, nil
}

func parseTimeOrNow(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseOptionalPeriod reads ?from= and ?to= (RFC3339 or YYYY-MM-DD). Both
// absent means nil (caller default). An invalid value writes a 400 and
// returns ok=false.
func parseOptionalPeriod(w http.ResponseWriter, r *http.Request) (*ledger.Period, bool) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" && to == "" {
		return nil, true
	}
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "Both from and to are required", nil)
		return nil, false
	}

	start, err := parseDateOrTime(from)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from", err)
		return nil, false
	}
	end, err := parseDateOrTime(to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to", err)
		return nil, false
	}

	// A bare date as the upper bound means "through the end of that day".
	if len(to) == len("2006-01-02") {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}

	p, err := ledger.NewPeriod(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return nil, false
	}
	return &p, true
}

func parseDateOrTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error onto the right HTTP status.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case errors.Is(err, ledger.ErrDuplicateSettlement),
		errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, msg, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}
