/*
scheduler.go - Automated reconciliation sweep scheduler

PURPOSE:
  Periodically runs the platform-wide balance drift check and logs any
  flagged organizers. The sweep never mutates state: it reports, and a
  human decides what to do with the findings.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start, then on every tick
  - Records the latest report so the admin endpoint can serve it without
    recomputing

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunSweep endpoint (on-demand sweep)
  - ledger/reconcile.go: CheckAllBalanceDiscrepancies
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
)

// SweepScheduler runs the platform drift check on an interval.
type SweepScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastReport *ledger.SweepReport
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(handler *Handler) *SweepScheduler {
	return &SweepScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with sweep interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

// LastReport returns the most recent sweep report, or nil before the first
// sweep completes.
func (ss *SweepScheduler) LastReport() *ledger.SweepReport {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.lastReport
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()

	log.Printf("[Scheduler] Running balance sweep at %v", time.Now().UTC().Format(time.RFC3339))

	report, err := ss.Handler.Reconciler.CheckAllBalanceDiscrepancies(ctx, nil)
	if err != nil {
		log.Printf("[Scheduler] Sweep failed: %v", err)
		return
	}

	ss.mu.Lock()
	ss.lastReport = report
	ss.mu.Unlock()

	if report.FlaggedCount == 0 {
		log.Printf("[Scheduler] Sweep clean: %d organizers checked", report.CheckedCount)
		return
	}

	log.Printf("[Scheduler] Sweep flagged %d of %d organizers, total discrepancy %s",
		report.FlaggedCount, report.CheckedCount, report.TotalDiscrepancy)
	for _, f := range report.Findings {
		log.Printf("[Scheduler]   organizer=%s calculated=%s stored=%s discrepancy=%s",
			f.OrganizerID, f.CalculatedBalance, f.StoredBalance, f.Discrepancy)
	}
}
