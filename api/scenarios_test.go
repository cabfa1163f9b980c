/*
scenarios_test.go - Demo scenario loading through the HTTP API

Each scenario must seed through the same settlement flows production uses,
so a loaded scenario always reconciles cleanly.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, api *testAPI, id string) {
	t.Helper()
	rec := api.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func organizerBalances(t *testing.T, api *testAPI, id string) BalancesDTO {
	t.Helper()
	rec := api.do(http.MethodGet, "/api/organizers/"+id+"/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bal BalancesDTO
	api.decode(rec, &bal)
	return bal
}

func TestListScenarios(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/api/scenarios/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []ScenarioDTO
	api.decode(rec, &list)
	require.Len(t, list, 4)

	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"launch-weekend", "refund-wave", "multi-organizer", "replay-storm"}, ids)
}

func TestLoadScenario_Unknown(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "moon-launch"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCurrentScenario_TracksLoads(t *testing.T) {
	api := newTestAPI(t)

	// Nothing loaded yet.
	rec := api.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())

	loadScenario(t, api, "launch-weekend")

	rec = api.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current ScenarioDTO
	api.decode(rec, &current)
	assert.Equal(t, "launch-weekend", current.ID)
}

func TestLaunchWeekendScenario(t *testing.T) {
	// GIVEN/WHEN: The launch weekend is loaded
	api := newTestAPI(t)
	loadScenario(t, api, "launch-weekend")

	// THEN: Eight sales (gross 1,055) net to 1,002.25; 800 released,
	// 500 paid out.
	bal := organizerBalances(t, api, "org_arena")
	assert.Equal(t, "202.25", bal.Pending)
	assert.Equal(t, "300.00", bal.Available)
	assert.Equal(t, "500.00", bal.Withdrawn)

	// AND: The seeded books reconcile cleanly
	rec := api.do(http.MethodGet, "/api/organizers/org_arena/reconciliation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report ReconciliationReportDTO
	api.decode(rec, &report)
	assert.False(t, report.HasDiscrepancy)
	assert.Equal(t, 8, report.SaleCount)
}

func TestRefundWaveScenario(t *testing.T) {
	api := newTestAPI(t)
	loadScenario(t, api, "refund-wave")

	// Six net sales of 142.50 minus three refunds of 142.50.
	bal := organizerBalances(t, api, "org_festival")
	assert.Equal(t, "427.50", bal.Pending)
	assert.Equal(t, "0.00", bal.Available)

	rec := api.do(http.MethodGet, "/api/organizers/org_festival/reconciliation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report ReconciliationReportDTO
	api.decode(rec, &report)
	assert.False(t, report.HasDiscrepancy)
	assert.Equal(t, 3, report.RefundCount)
}

func TestMultiOrganizerScenario_SweepsClean(t *testing.T) {
	// GIVEN: Three organizers seeded through real settlement flows
	api := newTestAPI(t)
	loadScenario(t, api, "multi-organizer")

	// WHEN: Running the platform sweep
	rec := api.do(http.MethodGet, "/api/admin/reconciliation/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: All three are checked and none drift
	var report SweepReportDTO
	api.decode(rec, &report)
	assert.Equal(t, 3, report.CheckedCount)
	assert.Equal(t, 0, report.FlaggedCount)
}

func TestReplayStormScenario_DuplicatesDidNotPay(t *testing.T) {
	// GIVEN/WHEN: Every settlement was delivered twice
	api := newTestAPI(t)
	loadScenario(t, api, "replay-storm")

	// THEN: Each sale paid exactly once: 3 x 95.00
	bal := organizerBalances(t, api, "org_replay")
	assert.Equal(t, "285.00", bal.Pending)

	var listing struct {
		Entries []EntryDTO `json:"entries"`
		Count   int        `json:"count"`
	}
	rec := api.do(http.MethodGet, "/api/organizers/org_replay/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	api.decode(rec, &listing)
	assert.Equal(t, 3, listing.Count)
}
