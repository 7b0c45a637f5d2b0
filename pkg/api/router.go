// Package api provides the coordinator's HTTP surface: the chi router, the
// request middleware stack, and the server lifecycle.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/api/handlers"
	"github.com/sfts-dev/sfts/pkg/assemble"
	"github.com/sfts-dev/sfts/pkg/events"
	"github.com/sfts-dev/sfts/pkg/ingest"
	"github.com/sfts-dev/sfts/pkg/registry"
	"github.com/sfts-dev/sfts/pkg/store"
)

// Deps bundles the coordinator services the router exposes.
type Deps struct {
	Registry  *registry.Registry
	Ingestor  *ingest.Ingestor
	Assembler *assemble.Assembler
	Store     *store.GORMStore
	Bus       *events.Bus

	// Prometheus is the metrics registry backing GET /metrics.
	// When nil the endpoint is not mounted.
	Prometheus *prometheus.Registry
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
func NewRouter(deps Deps, maxBody int64) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	transfers := handlers.NewTransferHandler(deps.Registry, deps.Ingestor, deps.Assembler, maxBody)
	health := handlers.NewHealthHandler(deps.Store)
	eventStream := handlers.NewEventsHandler(deps.Bus)

	// Bounded-latency routes get a request timeout. Uploads, downloads,
	// and the event stream run for as long as the transfer needs.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", health.Health)
		r.Post("/upload/init", transfers.Init)
		r.Get("/upload/missing/{fileID}", transfers.Missing)
		r.Get("/api/files", transfers.ListFiles)
		r.Get("/api/files/{fileID}", transfers.GetFile)

		if deps.Prometheus != nil {
			r.Method(http.MethodGet, "/metrics",
				promhttp.HandlerFor(deps.Prometheus, promhttp.HandlerOpts{}))
		}
	})

	r.Post("/upload/chunk", transfers.UploadChunk)
	r.Post("/assemble/{fileID}", transfers.Assemble)
	r.Get("/download/{fileID}", transfers.Download)
	r.Get("/events", eventStream.Stream)

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
