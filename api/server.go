/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin dashboards

ROUTE GROUPS:
  /api/organizers/*   Organizer accounts, balances, history, reports
  /api/settlements/*  Collaborator webhook endpoints
  /api/admin/*        Platform sweep and maintenance
  /api/scenarios/*    Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Organizer routes
		r.Route("/organizers", func(r chi.Router) {
			r.Get("/", h.ListOrganizers)
			r.Post("/", h.CreateOrganizer)
			r.Get("/{id}", h.GetOrganizer)
			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/entries", h.GetEntries)
			r.Get("/{id}/reconciliation", h.GetReconciliation)
			r.Get("/{id}/summary", h.GetSummary)
		})

		// Settlement routes (called by the payment/refund/payout subsystems)
		r.Route("/settlements", func(r chi.Router) {
			r.Post("/ticket-sales", h.RecordTicketSale)
			r.Post("/refunds", h.RecordRefund)
			r.Post("/withdrawals", h.RecordWithdrawal)
			r.Post("/chargebacks", h.RecordChargeback)
			r.Post("/adjustments", h.RecordAdjustment)
			r.Post("/release", h.ReleaseFunds)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/reconciliation/sweep", h.RunSweep)
			r.Post("/maintenance/ledger", h.RunMaintenance)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
