/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	marketplace data for demos. Each scenario creates organizers and drives
	sales, refunds, and withdrawals through the settlement processor, so
	the seeded ledger obeys every invariant the real system does.

AVAILABLE SCENARIOS:

	launch-weekend:  One organizer, a burst of ticket sales, funds released
	                 and partially withdrawn
	refund-wave:     Event postponed: sales followed by a string of refunds
	multi-organizer: Three organizers at different lifecycle stages, ready
	                 for a platform sweep
	replay-storm:    A webhook replays the same settlement references; shows
	                 idempotent dedup (balances unaffected)

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create organizers
 3. Record settlements through the processor (never raw store writes)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "launch-weekend"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - settlement/processor.go: The seeding path
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
	"github.com/Oltking/hdticketdesk-sub003/settlement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "launch-weekend",
		Name:        "Launch Weekend",
		Description: "A burst of ticket sales, funds released, one payout",
	},
	{
		ID:          "refund-wave",
		Name:        "Refund Wave",
		Description: "Event postponed: sales followed by a string of refunds",
	},
	{
		ID:          "multi-organizer",
		Name:        "Multi-Organizer Platform",
		Description: "Three organizers at different stages, ready for a sweep",
	},
	{
		ID:          "replay-storm",
		Name:        "Webhook Replay Storm",
		Description: "Duplicate settlement references rejected without moving money",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:   h.currentScenario,
		Name: h.currentScenario,
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset when the store supports it (the SQLite store does).
	if resetter, ok := h.Store.(interface{ Reset(context.Context) error }); ok {
		if err := resetter.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
			return
		}
	}

	var err error
	switch req.ScenarioID {
	case "launch-weekend":
		err = h.loadLaunchWeekend(ctx)
	case "refund-wave":
		err = h.loadRefundWave(ctx)
	case "multi-organizer":
		err = h.loadMultiOrganizer(ctx)
	case "replay-storm":
		err = h.loadReplayStorm(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) createOrganizer(ctx context.Context, id, name, email string) error {
	return h.Store.SaveOrganizer(ctx, ledger.OrganizerAccount{
		ID:        ledger.OrganizerID(id),
		Name:      name,
		Email:     email,
		Currency:  ledger.DefaultCurrency,
		CreatedAt: time.Now().UTC(),
	})
}

func (h *Handler) sellTicket(ctx context.Context, organizerID, ticketID, eventID string, amount float64, soldAt time.Time) error {
	_, err := h.Processor.RecordTicketSale(ctx, settlement.TicketSaleInput{
		OrganizerID:   ledger.OrganizerID(organizerID),
		TicketID:      ticketID,
		EventID:       eventID,
		AmountPaid:    ledger.NewMoney(amount, ledger.DefaultCurrency),
		SettlementRef: "pay_" + ticketID,
		SoldAt:        soldAt,
	})
	return err
}

// loadLaunchWeekend: one organizer sells out an opening event, most funds
// mature and a first payout completes.
func (h *Handler) loadLaunchWeekend(ctx context.Context) error {
	if err := h.createOrganizer(ctx, "org_arena", "Arena Live", "billing@arenalive.test"); err != nil {
		return err
	}

	base := time.Now().UTC().AddDate(0, 0, -10)
	prices := []float64{120, 120, 85, 85, 85, 250, 250, 60}
	for i, price := range prices {
		ticketID := fmt.Sprintf("tkt_launch_%03d", i+1)
		if err := h.sellTicket(ctx, "org_arena", ticketID, "evt_opening", price, base.Add(time.Duration(i)*time.Hour)); err != nil {
			return err
		}
	}

	// Most of the pending balance has cleared the holding window.
	released := ledger.NewMoney(800, ledger.DefaultCurrency)
	if _, err := h.Processor.ReleasePending(ctx, "org_arena", released); err != nil {
		return err
	}

	_, err := h.Processor.RecordWithdrawal(ctx, settlement.WithdrawalInput{
		OrganizerID:   "org_arena",
		WithdrawalID:  "wd_launch_001",
		Amount:        ledger.NewMoney(500, ledger.DefaultCurrency),
		AccountNumber: "9900123456781234",
		SettlementRef: "payout_launch_001",
		CompletedAt:   base.AddDate(0, 0, 7),
	})
	return err
}

// loadRefundWave: a postponed event triggers refunds against pending funds.
func (h *Handler) loadRefundWave(ctx context.Context) error {
	if err := h.createOrganizer(ctx, "org_festival", "Riverside Festival", "ops@riverside.test"); err != nil {
		return err
	}

	base := time.Now().UTC().AddDate(0, 0, -5)
	for i := 0; i < 6; i++ {
		ticketID := fmt.Sprintf("tkt_fest_%03d", i+1)
		if err := h.sellTicket(ctx, "org_festival", ticketID, "evt_festival", 150, base.Add(time.Duration(i)*time.Hour)); err != nil {
			return err
		}
	}

	// Half the buyers bail. Refunds are for the net amount the organizer
	// actually holds; the provider returns its fee separately.
	net := h.Config.NetOf(ledger.NewMoney(150, ledger.DefaultCurrency))
	for i := 0; i < 3; i++ {
		ticketID := fmt.Sprintf("tkt_fest_%03d", i+1)
		_, err := h.Processor.RecordRefund(ctx, settlement.RefundInput{
			OrganizerID:   "org_festival",
			RefundID:      fmt.Sprintf("ref_fest_%03d", i+1),
			TicketID:      ticketID,
			Amount:        net,
			SettlementRef: "rf_" + ticketID,
			ProcessedAt:   base.AddDate(0, 0, 2),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// loadMultiOrganizer: three organizers with different activity profiles so a
// platform sweep has something to walk.
func (h *Handler) loadMultiOrganizer(ctx context.Context) error {
	if err := h.loadLaunchWeekend(ctx); err != nil {
		return err
	}
	if err := h.loadRefundWave(ctx); err != nil {
		return err
	}

	// A brand-new organizer with a single sale and nothing else.
	if err := h.createOrganizer(ctx, "org_clubnight", "Club Night Co", "hello@clubnight.test"); err != nil {
		return err
	}
	return h.sellTicket(ctx, "org_clubnight", "tkt_club_001", "evt_club", 40, time.Now().UTC().AddDate(0, 0, -1))
}

// loadReplayStorm: a flaky webhook delivers the same settlements repeatedly.
// The duplicates must bounce without touching balances.
func (h *Handler) loadReplayStorm(ctx context.Context) error {
	if err := h.createOrganizer(ctx, "org_replay", "Replay Test Org", ""); err != nil {
		return err
	}

	base := time.Now().UTC().AddDate(0, 0, -2)
	for i := 0; i < 3; i++ {
		ticketID := fmt.Sprintf("tkt_replay_%03d", i+1)
		if err := h.sellTicket(ctx, "org_replay", ticketID, "evt_replay", 100, base); err != nil {
			return err
		}
		// Replay the exact same settlement. Anything other than the
		// duplicate rejection is a seeding bug.
		err := h.sellTicket(ctx, "org_replay", ticketID, "evt_replay", 100, base)
		if !errors.Is(err, ledger.ErrDuplicateSettlement) {
			return fmt.Errorf("replayed settlement was not rejected: %v", err)
		}
	}
	return nil
}
