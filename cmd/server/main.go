/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the sales ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flag, YAML file, .env, BRICKBOOK_* env)
  2. Open the SQL store (SQLite or PostgreSQL)
  3. Connect the optional Redis cache
  4. Wire engine, reader, metrics into the API handler
  5. Start the reconciliation sweep (reconcile.interval)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: configs/config.yaml if present)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the reconciliation sweep
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close cache and database connections
  5. Exit

EXAMPLES:
  # SQLite file database with defaults
  ./server

  # PostgreSQL with a Redis cache
  BRICKBOOK_DATABASE_DRIVER=pgx \
  BRICKBOOK_DATABASE_DSN=postgres://ledger@localhost/ledger \
  BRICKBOOK_REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqldb/sqldb.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brickbook/sales-ledger/api"
	"github.com/brickbook/sales-ledger/cache"
	"github.com/brickbook/sales-ledger/config"
	"github.com/brickbook/sales-ledger/ledger"
	"github.com/brickbook/sales-ledger/metrics"
	"github.com/brickbook/sales-ledger/store/sqldb"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.Driver == sqldb.DriverSQLite && cfg.Database.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
	}
	store, err := sqldb.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	if cfg.Database.Driver == sqldb.DriverPostgres {
		store.DB().SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	var balanceCache *cache.Cache
	if cfg.Redis.Addr != "" {
		balanceCache, err = cache.New(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			log.Printf("[Cache] Redis unavailable at %s, reading balances from the store: %v", cfg.Redis.Addr, err)
		} else {
			log.Printf("[Cache] Redis connected at %s", cfg.Redis.Addr)
			defer balanceCache.Close()
		}
	}

	m := metrics.New()
	handler := api.NewHandler(store)
	handler.Cache = balanceCache
	handler.Metrics = m
	handler.Health = store.Ping
	handler.Engine.OnClamp = func(ledger.CustomerID, decimal.Decimal) { m.WalletClamps.Inc() }

	scheduler := api.NewReconciliationScheduler(handler, cfg.Reconcile.Interval)
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.Server.CorsAllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://localhost%s (%s)", cfg.Addr(), cfg.Database.Driver)
		log.Printf("📊 API available at http://localhost%s/api, metrics at /metrics", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
