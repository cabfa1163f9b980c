/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the organizer ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Read configuration (flags, then environment)
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Start the reconciliation sweep scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: ledger.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT (overrides defaults, read via viper):
  PORT                  HTTP server port
  DB_PATH               SQLite database path
  PLATFORM_FEE_PERCENT  Marketplace fee on gross sales (default: 5)
  RECON_TOLERANCE       Discrepancy threshold in currency units (default: 1)
  SWEEP_INTERVAL        Scheduler interval (default: 1h)
  SWEEP_ENABLED         Whether the sweep scheduler runs (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with a 10% fee and a tighter tolerance
  PLATFORM_FEE_PERCENT=10 RECON_TOLERANCE=0.50 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Oltking/hdticketdesk-sub003/api"
	"github.com/Oltking/hdticketdesk-sub003/ledger"
	"github.com/Oltking/hdticketdesk-sub003/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	// Environment with defaults
	viper.AutomaticEnv()
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DB_PATH", "ledger.db")
	viper.SetDefault("PLATFORM_FEE_PERCENT", "5")
	viper.SetDefault("RECON_TOLERANCE", "1")
	viper.SetDefault("SWEEP_INTERVAL", "1h")
	viper.SetDefault("SWEEP_ENABLED", true)

	if *port == 0 {
		*port = viper.GetInt("PORT")
	}
	if *dbPath == "" {
		*dbPath = viper.GetString("DB_PATH")
	}

	cfg := ledger.DefaultConfig()
	if fee, err := decimal.NewFromString(viper.GetString("PLATFORM_FEE_PERCENT")); err == nil {
		cfg.PlatformFeePercent = fee
	} else {
		log.Printf("Warning: invalid PLATFORM_FEE_PERCENT, using %s", cfg.PlatformFeePercent)
	}
	if tol, err := decimal.NewFromString(viper.GetString("RECON_TOLERANCE")); err == nil {
		cfg.Tolerance = ledger.Money{Value: tol, Currency: cfg.Currency}
	} else {
		log.Printf("Warning: invalid RECON_TOLERANCE, using %s", cfg.Tolerance)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store, cfg)
	router := api.NewRouter(handler)

	// Reconciliation sweep scheduler
	scheduler := api.NewSweepScheduler(handler)
	scheduler.Enabled = viper.GetBool("SWEEP_ENABLED")
	if interval := viper.GetDuration("SWEEP_INTERVAL"); interval > 0 {
		scheduler.CheckInterval = interval
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
