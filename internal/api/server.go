package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"chainhook-relay/internal/chainhook"
	"chainhook-relay/internal/services"
	"chainhook-relay/internal/storage"
)

// Options tunes request handling
type Options struct {
	Port              int
	MaxBodyBytes      int64
	DefaultQueryLimit int
	MaxQueryLimit     int
}

// Server represents the HTTP API server
// Provides the chainhook webhook, event queries, health checks and Prometheus metrics
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	repository storage.Repository
	service    *services.ChainhookService
	verifier   *chainhook.Verifier
	opts       Options
}

// NewServer creates a new API server instance
func NewServer(opts Options, repository storage.Repository, service *services.ChainhookService, verifier *chainhook.Verifier) *Server {
	if opts.DefaultQueryLimit <= 0 {
		opts.DefaultQueryLimit = 50
	}
	if opts.MaxQueryLimit < opts.DefaultQueryLimit {
		opts.MaxQueryLimit = opts.DefaultQueryLimit
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:        mux,
		repository: repository,
		service:    service,
		verifier:   verifier,
		opts:       opts,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.handle("/", s.handleIndex)
	s.handle("/health", s.handleHealth)
	s.mux.Handle("/metrics", instrument("/metrics", s.handleMetrics()))

	// Webhook
	s.handle("/api/chainhooks/stack-mart", s.handleIngest)
	s.handle("/ingest", s.handleIngest)

	// Event queries
	for _, prefix := range []string{"/api/events", "/events"} {
		s.handle(prefix, s.handleEvents)
		s.handle(prefix+"/", s.handleEventRoutes)
	}
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(pattern, h))
}

// Handler returns the full handler chain, used by tests and the http.Server
func (s *Server) Handler() http.Handler {
	return cors(s.mux)
}

// handleEvents routes to the event list (without trailing slash)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleListEvents(w, r)
}

// handleEventRoutes routes event sub-endpoints (with trailing slash)
func (s *Server) handleEventRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	path = strings.TrimPrefix(path, "/events/")
	parts := strings.SplitN(path, "/", 2)

	// GET /events/tx/{txid}
	if len(parts) == 2 && parts[0] == "tx" {
		s.handleGetEventByTx(w, r, parts[1])
		return
	}

	// GET /events/ behaves like GET /events
	if path == "" {
		s.handleListEvents(w, r)
		return
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// Start binds the listener and serves in a goroutine.
// Bind failures are returned instead of only being logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("API server starting",
		"port", s.opts.Port,
		"webhook", "/api/chainhooks/stack-mart",
		"endpoints", []string{"/", "/health", "/metrics", "/api/events", "/api/events/tx/{txid}"},
	)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
