package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chainhook-relay/internal/chainhook"
	"chainhook-relay/internal/metrics"
	"chainhook-relay/internal/models"
	"chainhook-relay/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "StackMart Chainhook Relay",
		"version":     "1.0.0",
		"description": "Receives chainhook deliveries and serves marketplace contract-call events",
		"store":       s.repository.Name(),
		"signed":      s.verifier.Enabled(),
		"endpoints": map[string]string{
			"POST /api/chainhooks/stack-mart": "Chainhook webhook (alias POST /ingest)",
			"GET /api/events":                 "Recent events, newest first (supports ?limit=, ?contract=, ?function=, ?status=)",
			"GET /api/events/tx/{txid}":       "Event for a transaction",
			"GET /health":                     "Health check with retained event count",
			"GET /metrics":                    "Prometheus metrics for monitoring",
		},
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status and the retained event count
// GET /health - Polled by the front end to detect a cold or unreachable relay
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Store:     s.repository.Name(),
	}

	if err := s.repository.Ping(ctx); err != nil {
		slog.Error("Event store ping failed", "error", err)
		health.Status = "unhealthy"
		s.sendJSON(w, http.StatusServiceUnavailable, health)
		return
	}

	count, err := s.repository.CountEvents(ctx)
	if err != nil {
		slog.Error("Failed to count events", "error", err)
		health.Status = "unhealthy"
		s.sendJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health.EventsCount = count

	s.sendJSON(w, http.StatusOK, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// WEBHOOK
// =============================================================================

// handleIngest verifies and processes a chainhook delivery
// POST /api/chainhooks/stack-mart
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			metrics.WebhooksReceived.WithLabelValues("too_large").Inc()
			slog.Warn("Chainhook body too large", "limit_bytes", maxErr.Limit)
			s.sendError(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		metrics.WebhooksReceived.WithLabelValues("error").Inc()
		slog.Error("Failed to read chainhook body", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if !s.verifier.Verify(body, r.Header.Get(chainhook.SignatureHeader)) {
		metrics.WebhooksReceived.WithLabelValues("unauthorized").Inc()
		slog.Warn("Invalid chainhook signature", "remote_addr", r.RemoteAddr)
		s.sendError(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	payload, err := chainhook.Decode(body)
	if err != nil {
		s.ingestFailed(w, err)
		return
	}

	result, err := s.service.Process(r.Context(), payload)
	if err != nil {
		s.ingestFailed(w, err)
		return
	}

	metrics.WebhooksReceived.WithLabelValues("accepted").Inc()
	s.sendJSON(w, http.StatusOK, models.IngestResponse{
		Success:        true,
		Message:        "Event processed",
		Timestamp:      result.ProcessedAt,
		EventsIngested: result.EventsIngested,
		Rollbacks:      result.Rollbacks,
	})
}

// ingestFailed answers with a generic 500; the cause is only logged
func (s *Server) ingestFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, chainhook.ErrMalformedPayload) {
		metrics.WebhooksReceived.WithLabelValues("malformed").Inc()
		slog.Warn("Malformed chainhook payload", "error", err)
	} else {
		metrics.WebhooksReceived.WithLabelValues("error").Inc()
		slog.Error("Error processing chainhook", "error", err)
	}
	s.sendError(w, "Internal server error", http.StatusInternalServerError)
}

// =============================================================================
// EVENT ENDPOINTS
// =============================================================================

// handleListEvents lists recent events with optional filtering
// GET /api/events?limit=50&contract=SP000.stack-mart&function=create-listing&status=applied
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := models.EventFilter{
		Contract: query.Get("contract"),
		Function: query.Get("function"),
		Status:   query.Get("status"),
		Limit:    s.parseLimit(query.Get("limit")),
	}

	switch filter.Status {
	case "", models.StatusApplied, models.StatusRolledBack:
	default:
		s.sendError(w, "status must be applied or rolled_back", http.StatusBadRequest)
		return
	}

	events, total, err := s.repository.ListEvents(ctx, filter)
	if err != nil {
		slog.Error("Failed to list events", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, models.EventsResponse{
		Events: events,
		Total:  total,
	})
}

// handleGetEventByTx returns the event recorded for a transaction
// GET /api/events/tx/{txid}
func (s *Server) handleGetEventByTx(w http.ResponseWriter, r *http.Request, txID string) {
	if txID == "" {
		s.sendError(w, "Transaction ID required", http.StatusBadRequest)
		return
	}

	event, err := s.repository.GetEventByTxID(r.Context(), txID)
	if errors.Is(err, storage.ErrNotFound) {
		s.sendError(w, "Event not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to get event", "tx_hash", txID, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, event)
}

// parseLimit falls back to the default for missing or non-positive values and
// caps at the configured maximum
func (s *Server) parseLimit(raw string) int {
	limit := s.opts.DefaultQueryLimit
	if raw == "" {
		return limit
	}
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		limit = parsed
	}
	if limit > s.opts.MaxQueryLimit {
		limit = s.opts.MaxQueryLimit
	}
	return limit
}

// sendJSON writes a JSON response with the given status
func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, models.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
