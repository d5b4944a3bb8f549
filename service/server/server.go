package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/brojonat/moonportal/service/metrics"
	"github.com/brojonat/moonportal/service/sync"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller is the part of the sync controller the HTTP surface drives.
// *sync.Controller implements it.
type Controller interface {
	View(ctx context.Context) (sync.View, error)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Initialize(ctx context.Context) error
	Refresh(ctx context.Context) error
	SetDraft(ctx context.Context, text string) error
	Submit(ctx context.Context) error
	Subscribe(fn func(sync.View)) func()
}

// Server represents the HTTP server for the portal.
type Server struct {
	addr       string
	controller Controller
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, controller Controller, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		controller: controller,
		metrics:    m,
		logger:     logger,
	}
}

// Handler builds the routed handler, including CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// View and session routes
	route("GET /api/v1/view", "/api/v1/view", handleGetView(s.controller, s.logger))
	route("POST /api/v1/session/connect", "/api/v1/session/connect", handleAction(s.controller.Connect, s.controller, s.logger))
	route("POST /api/v1/session/disconnect", "/api/v1/session/disconnect", handleAction(s.controller.Disconnect, s.controller, s.logger))

	// Record routes
	route("POST /api/v1/record/initialize", "/api/v1/record/initialize", handleAction(s.controller.Initialize, s.controller, s.logger))
	route("POST /api/v1/record/refresh", "/api/v1/record/refresh", handleAction(s.controller.Refresh, s.controller, s.logger))
	route("PUT /api/v1/draft", "/api/v1/draft", handleSetDraft(s.controller, s.logger))
	route("POST /api/v1/entries", "/api/v1/entries", handleSubmitEntry(s.controller, s.logger))

	// SSE view stream
	route("GET /api/v1/stream", "/api/v1/stream", handleStreamViews(s.controller, s.metrics, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	// Request contexts end on Shutdown so open view streams return.
	base, cancel := context.WithCancel(context.Background())
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the view stream is long-lived.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	s.server.RegisterOnShutdown(cancel)

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
