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
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. requestLogger: Structured request logging via zap
  5. CORS:       Cross-origin requests for the frontend
  6. Metrics:    Prometheus request counters and latency (optional)

ROUTE GROUPS:
  /api/transactions/*   Ledger read/write and payments
  /api/balances/*       Derived stock positions
  /api/materials        Reference catalog
  /api/export           Spreadsheet report
  /api/seed, /api/reset Demo data (dev only)
  /healthz              Liveness probe
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics.go: Prometheus instrumentation
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options tune the router without coupling the package to the config
// loader.
type Options struct {
	CORSOrigins    []string
	MetricsEnabled bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger *zap.Logger, opts Options) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if opts.MetricsEnabled {
		r.Use(instrumentRequests)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.SearchTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/unpaid", h.UnpaidStats)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Post("/{id}/pay", h.MarkPaid)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", h.ListBalances)
			r.Get("/{materialId}", h.GetBalance)
		})

		r.Get("/materials", h.ListMaterials)
		r.Get("/export", h.ExportReport)

		// Demo data (dev only)
		if h.Ref != nil {
			r.Post("/seed", h.SeedDemo)
			r.Post("/reset", h.ResetData)
		}
	})

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// requestLogger logs one line per request with method, route, status and
// duration. Health and metrics probes are skipped to keep the log useful.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
