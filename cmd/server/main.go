/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration (viper)
  2. Build the structured logger (zap)
  3. Open the SQLite store and migrate the schema
  4. Wire the ledger engine (guard, balance cache, service, queries)
  5. Configure the HTTP router
  6. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional path to a YAML config file. Every setting is also
           reachable through STOCK_* environment variables
           (STOCK_HTTP_ADDR, STOCK_DB_PATH, ...).

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the database connection
  4. Exit

EXAMPLES:
  # Run with defaults (stock.db next to the binary, :8080)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Run with an in-memory database
  STOCK_DB_PATH=":memory:" ./server

SEE ALSO:
  - config/config.go: Configuration schema and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medadmin/stock-ledger/api"
	"github.com/medadmin/stock-ledger/config"
	"github.com/medadmin/stock-ledger/ledger"
	"github.com/medadmin/stock-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No logger yet.
		panic("load configuration: " + err.Error())
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic("build logger: " + err.Error())
	}
	defer logger.Sync()

	// Store
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Fatal("initialize database", zap.String("path", cfg.DB.Path), zap.Error(err))
	}
	defer store.Close()

	// Ledger engine
	thresholds := ledger.Thresholds{LowMax: cfg.Stock.LowMax, NormalMax: cfg.Stock.NormalMax}
	guard := ledger.NewGuard(store)
	agg := ledger.NewAggregator(store, thresholds)
	service := ledger.NewService(store, guard, agg, logger)
	query := ledger.NewQuery(store, store, agg)
	payments := ledger.NewPayments(store)

	handler := api.NewHandler(service, query, payments, store, agg, store, logger)
	router := api.NewRouter(handler, logger, api.Options{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("db", cfg.DB.Path),
			zap.Bool("metrics", cfg.Metrics.Enabled))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
