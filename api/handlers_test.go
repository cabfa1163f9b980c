/*
handlers_test.go - HTTP-level tests for the settlement and reporting API

Exercises the full stack through the router: JSON in, domain objects,
store, JSON out. Backed by the in-memory store.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
	"github.com/Oltking/hdticketdesk-sub003/ledger/store"
)

type testAPI struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	mem     *store.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	h := NewHandler(mem, ledger.DefaultConfig())
	return &testAPI{t: t, handler: h, router: NewRouter(h), mem: mem}
}

func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) decode(rec *httptest.ResponseRecorder, out interface{}) {
	a.t.Helper()
	require.NoError(a.t, json.NewDecoder(rec.Body).Decode(out))
}

func (a *testAPI) createOrganizer(id, name string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/organizers", CreateOrganizerRequest{ID: id, Name: name})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testAPI) sellTicket(org, ticketID, ref, gross string) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.do(http.MethodPost, "/api/settlements/ticket-sales", TicketSaleRequest{
		OrganizerID: org, TicketID: ticketID, AmountPaid: gross, SettlementRef: ref,
	})
}

// =============================================================================
// ORGANIZERS
// =============================================================================

func TestCreateAndGetOrganizer(t *testing.T) {
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")

	rec := api.do(http.MethodGet, "/api/organizers/org-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got OrganizerDTO
	api.decode(rec, &got)
	assert.Equal(t, "org-1", got.ID)
	assert.Equal(t, "Brightside Events", got.Name)
	assert.Equal(t, ledger.DefaultCurrency, got.Currency)
}

func TestCreateOrganizer_MissingFields(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/organizers", CreateOrganizerRequest{Name: "No ID"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrganizer_NotFound(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/api/organizers/org-ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func TestTicketSaleFlow(t *testing.T) {
	// GIVEN: An organizer
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")

	// WHEN: A 10,000 gross sale settles
	rec := api.sellTicket("org-1", "tkt-1", "pay_1", "10000")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry EntryDTO
	api.decode(rec, &entry)
	assert.Equal(t, "ticket_sale", entry.Type)
	assert.Equal(t, "9500.00", entry.Amount)
	assert.Equal(t, "9500.00", entry.PendingAfter)
	assert.Equal(t, "0.00", entry.AvailableAfter)

	// THEN: The balances endpoint reflects the net credit
	rec = api.do(http.MethodGet, "/api/organizers/org-1/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var bal BalancesDTO
	api.decode(rec, &bal)
	assert.Equal(t, "9500.00", bal.Pending)
	assert.Equal(t, "0.00", bal.Available)
	assert.Equal(t, "9500.00", bal.Total)
}

func TestTicketSale_DuplicateRefConflict(t *testing.T) {
	// GIVEN: A settled sale
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)

	// WHEN: The webhook replays the same settlement reference
	rec := api.sellTicket("org-1", "tkt-replay", "pay_1", "10000")

	// THEN: 409, and the balance did not double
	assert.Equal(t, http.StatusConflict, rec.Code)

	balRec := api.do(http.MethodGet, "/api/organizers/org-1/balances", nil)
	var bal BalancesDTO
	api.decode(balRec, &bal)
	assert.Equal(t, "9500.00", bal.Pending)
}

func TestTicketSale_UnknownOrganizer(t *testing.T) {
	api := newTestAPI(t)
	rec := api.sellTicket("org-ghost", "tkt-1", "pay_1", "100")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketSale_MalformedAmount(t *testing.T) {
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	rec := api.sellTicket("org-1", "tkt-1", "pay_1", "ten thousand")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundFlow(t *testing.T) {
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)

	rec := api.do(http.MethodPost, "/api/settlements/refunds", RefundRequest{
		OrganizerID: "org-1", RefundID: "rf-1", TicketID: "tkt-1",
		Amount: "950", SettlementRef: "rfs_1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	balRec := api.do(http.MethodGet, "/api/organizers/org-1/balances", nil)
	var bal BalancesDTO
	api.decode(balRec, &bal)
	assert.Equal(t, "8550.00", bal.Pending)
}

func TestRefund_InsufficientBalanceConflict(t *testing.T) {
	// GIVEN: Only 9,500 pending
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)

	// WHEN: Refunding more than the bucket holds
	rec := api.do(http.MethodPost, "/api/settlements/refunds", RefundRequest{
		OrganizerID: "org-1", RefundID: "rf-big", Amount: "20000", SettlementRef: "rfs_big",
	})

	// THEN: 409, balances untouched
	assert.Equal(t, http.StatusConflict, rec.Code)

	balRec := api.do(http.MethodGet, "/api/organizers/org-1/balances", nil)
	var bal BalancesDTO
	api.decode(balRec, &bal)
	assert.Equal(t, "9500.00", bal.Pending)
}

func TestReleaseAndWithdrawalFlow(t *testing.T) {
	// GIVEN: A settled sale
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)

	// WHEN: 4,000 is released then 3,000 withdrawn
	rec := api.do(http.MethodPost, "/api/settlements/release", ReleaseRequest{
		OrganizerID: "org-1", Amount: "4000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/settlements/withdrawals", WithdrawalRequest{
		OrganizerID: "org-1", WithdrawalID: "wd-1", Amount: "3000",
		AccountNumber: "9900123456781234", SettlementRef: "po_1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry EntryDTO
	api.decode(rec, &entry)
	assert.Contains(t, entry.Description, "************1234")

	// THEN: Buckets land where expected
	balRec := api.do(http.MethodGet, "/api/organizers/org-1/balances", nil)
	var bal BalancesDTO
	api.decode(balRec, &bal)
	assert.Equal(t, "5500.00", bal.Pending)
	assert.Equal(t, "1000.00", bal.Available)
	assert.Equal(t, "3000.00", bal.Withdrawn)
	assert.Equal(t, "6500.00", bal.Total)
}

func TestAdjustment_RequiresReason(t *testing.T) {
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")

	rec := api.do(http.MethodPost, "/api/settlements/adjustments", AdjustmentRequest{
		OrganizerID: "org-1", Amount: "50",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ENTRIES AND SUMMARY
// =============================================================================

func TestGetEntries_TypeFilter(t *testing.T) {
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-2", "pay_2", "2000").Code)
	rec := api.do(http.MethodPost, "/api/settlements/refunds", RefundRequest{
		OrganizerID: "org-1", RefundID: "rf-1", Amount: "100", SettlementRef: "rfs_1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodGet, "/api/organizers/org-1/entries?type=ticket_sale", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		OrganizerID string     `json:"organizer_id"`
		Entries     []EntryDTO `json:"entries"`
		Count       int        `json:"count"`
	}
	api.decode(rec, &listing)
	require.Len(t, listing.Entries, 2)
	assert.Equal(t, 2, listing.Count)
	for _, e := range listing.Entries {
		assert.Equal(t, "ticket_sale", e.Type)
	}

	// Invalid type is a client error.
	rec = api.do(http.MethodGet, "/api/organizers/org-1/entries?type=wire_transfer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEntries_UnknownOrganizer(t *testing.T) {
	// Unknown organizers fail fast with 404, never an empty listing.
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/api/organizers/org-ghost/entries", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSummary_DefaultWindow(t *testing.T) {
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)

	rec := api.do(http.MethodGet, "/api/organizers/org-1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary SummaryDTO
	api.decode(rec, &summary)
	assert.Equal(t, 1, summary.EntryCount)
	assert.Equal(t, "9500.00", summary.GrossCredits)
	require.Len(t, summary.ByType, 5)
}

func TestGetSummary_UnknownOrganizer(t *testing.T) {
	// Unknown organizers fail fast with 404, never an all-zero summary.
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/api/organizers/org-ghost/summary", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestGetReconciliation_CleanOrganizer(t *testing.T) {
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)

	rec := api.do(http.MethodGet, "/api/organizers/org-1/reconciliation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report ReconciliationReportDTO
	api.decode(rec, &report)
	assert.Equal(t, "10000.00", report.TicketSalesTotal)
	assert.Equal(t, "500.00", report.PlatformFees)
	assert.Equal(t, "9500.00", report.NetRevenue)
	assert.Equal(t, "9500.00", report.CalculatedBalance)
	assert.Equal(t, "9500.00", report.StoredBalance)
	assert.False(t, report.HasDiscrepancy)
}

func TestSweepEndpoint_FlagsDrift(t *testing.T) {
	// GIVEN: A settled sale, then 100 of storage drift
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	require.Equal(t, http.StatusCreated, api.sellTicket("org-1", "tkt-1", "pay_1", "10000").Code)

	bal, err := api.mem.GetBalances(context.Background(), "org-1")
	require.NoError(t, err)
	bal.Available = bal.Available.Add(ledger.NewMoney(100, ledger.DefaultCurrency))
	api.mem.SetBalances("org-1", bal)

	// WHEN: Running the sweep
	rec := api.do(http.MethodGet, "/api/admin/reconciliation/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report SweepReportDTO
	api.decode(rec, &report)
	assert.Equal(t, 1, report.CheckedCount)
	assert.Equal(t, 1, report.FlaggedCount)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "org-1", report.Findings[0].OrganizerID)
	assert.Equal(t, "100.00", report.Findings[0].Discrepancy)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

func TestMaintenanceEndpoint(t *testing.T) {
	// GIVEN: An orphan entry repairable from its ticket
	api := newTestAPI(t)
	api.createOrganizer("org-1", "Brightside Events")
	ctx := context.Background()
	require.NoError(t, api.mem.SaveTicketSale(ctx, ledger.TicketSale{
		ID: "tkt-legacy", OrganizerID: "org-1", AmountPaid: ledger.NewMoney(100, "USD"),
		Status: ledger.TicketActive, SettlementRef: "pay_legacy",
	}))
	require.NoError(t, api.mem.AppendEntry(ctx, ledger.LedgerEntry{
		ID: "e-legacy", OrganizerID: "org-1", Type: ledger.EntryTicketSale,
		Amount: ledger.NewMoney(95, "USD"), TicketID: "tkt-legacy",
	}))

	// WHEN: Running maintenance
	rec := api.do(http.MethodPost, "/api/admin/maintenance/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result MaintenanceResultDTO
	api.decode(rec, &result)
	assert.Equal(t, 1, result.Backfilled)
	assert.Equal(t, 0, result.DeletedEntries)
	assert.True(t, result.Verified)
}

// =============================================================================
// ERROR SHAPE
// =============================================================================

func TestErrorResponsesCarryMessage(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/organizers/org-ghost/balances", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	api.decode(rec, &resp)
	assert.NotEmpty(t, resp.Error)
}
