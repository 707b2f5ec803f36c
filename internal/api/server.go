// Package api exposes conjunction searches, distance curves and catalog
// lookups over HTTP/JSON.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kvsankar/sattosat/internal/auth"
	"github.com/kvsankar/sattosat/internal/cache"
	"github.com/kvsankar/sattosat/internal/conjunction"
	"github.com/kvsankar/sattosat/internal/health"
	"github.com/kvsankar/sattosat/internal/metrics"
	"github.com/kvsankar/sattosat/internal/stream"
	"github.com/kvsankar/sattosat/internal/tle"
)

// Limits bound the CPU a single request can consume. Zero fields take the
// defaults noted below.
type Limits struct {
	MaxWindow    time.Duration // Longest search or curve window (default: 14 days).
	MinStep      time.Duration // Smallest coarse scan step (default: 1s).
	MaxScanSteps int           // Largest window/step ratio (default: 100000).
	MaxSamples   int           // Largest distance-curve sample count (default: 5000).
	MaxBatch     int           // Most pairs in one batch request (default: 16).
	MaxBodyBytes int64         // Largest request body (default: 1 MiB).
}

func (l Limits) withDefaults() Limits {
	if l.MaxWindow <= 0 {
		l.MaxWindow = 14 * 24 * time.Hour
	}
	if l.MinStep <= 0 {
		l.MinStep = time.Second
	}
	if l.MaxScanSteps <= 0 {
		l.MaxScanSteps = 100_000
	}
	if l.MaxSamples <= 0 {
		l.MaxSamples = 5000
	}
	if l.MaxBatch <= 0 {
		l.MaxBatch = 16
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = 1 << 20
	}
	return l
}

// SearchDefaults fill in options a request leaves out.
type SearchDefaults struct {
	Step       time.Duration
	MaxResults int
	GapPolicy  conjunction.GapPolicy
	Days       float64 // Anchor half-width (default: 3).
	Samples    int     // Distance-curve sample count (default: 500).
	Workers    int     // Batch worker pool size (0 = NumCPU).
}

// Config holds server configuration.
type Config struct {
	Addr     string
	Auth     auth.Config
	Limits   Limits
	Defaults SearchDefaults
}

// Deps are the services the handlers call. Cache may be nil to disable result
// caching; Stream may be nil to disable the SSE route.
type Deps struct {
	Catalog   *tle.Catalog
	Engine    *conjunction.Engine
	Cache     *cache.ResultCache
	Stream    *stream.Handler
	Readiness *health.Readiness
	Profiles  []tle.Profile
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger

	catalog  *tle.Catalog
	engine   *conjunction.Engine
	cache    *cache.ResultCache
	profiles []tle.Profile
	limits   Limits
	defaults SearchDefaults
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		logger:   logger,
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		cache:    deps.Cache,
		profiles: deps.Profiles,
		limits:   cfg.Limits.withDefaults(),
		defaults: cfg.Defaults,
	}
	if s.defaults.Step <= 0 {
		s.defaults.Step = conjunction.DefaultStep
	}
	if s.defaults.Days <= 0 {
		s.defaults.Days = 3
	}
	if s.defaults.Samples <= 0 {
		s.defaults.Samples = 500
	}

	readiness := deps.Readiness
	if readiness == nil {
		readiness = &health.Readiness{}
		readiness.SetReady(true)
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", readiness.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/v1/conjunctions", s.handleConjunctions)
	mux.HandleFunc("POST /api/v1/conjunctions/batch", s.handleBatch)
	mux.HandleFunc("POST /api/v1/distance/curve", s.handleCurve)
	mux.HandleFunc("GET /api/v1/distance/current", s.handleCurrent)
	mux.HandleFunc("GET /api/v1/satellites", s.handleListSatellites)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}", s.handleGetSatellite)
	mux.HandleFunc("PUT /api/v1/satellites/{norad_id}", s.handlePutSatellite)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/distance", deps.Stream.HandleDistance)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute, // long searches; SSE clears its own deadline
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush lets the SSE handler flush through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
