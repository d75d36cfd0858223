// Package api provides the HTTP blocklist server.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dns-smart-block/dns-smart-block/internal/api/middleware"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// setupRoutes sets up all HTTP routes for the blocklist server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /blocklist", s.handleBlocklist)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("/", s.handleNotFound)
}

// handleBlocklist serves the sorted distinct domains whose classification
// of the requested type is valid at the requested time, one per line.
//
// Query parameters:
//   - type: classification type (required, e.g. "gaming")
//   - at:   RFC 3339 time to evaluate validity at (optional, defaults to now)
func (s *Server) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	classificationType := r.URL.Query().Get("type")
	if classificationType == "" {
		s.metrics.RecordBlocklistRequest(classificationType, statusError)
		s.writeText(w, http.StatusBadRequest, "Missing required query parameter: type", correlationID)

		return
	}

	at := time.Now()

	if atParam := r.URL.Query().Get("at"); atParam != "" {
		parsed, err := time.Parse(time.RFC3339, atParam)
		if err != nil {
			s.logger.Error("Failed to parse time parameter",
				slog.String("at", atParam),
				slog.String("error", err.Error()),
				slog.String("correlation_id", correlationID),
			)
			s.metrics.RecordBlocklistRequest(classificationType, statusError)
			s.writeText(w, http.StatusBadRequest,
				"Invalid time format. Use ISO 8601/RFC 3339 format: "+err.Error(), correlationID)

			return
		}

		at = parsed
	}

	domains, err := s.store.DomainsValidAt(r.Context(), classificationType, at)
	if err != nil {
		s.logger.Error("Failed to fetch blocklist",
			slog.String("classification_type", classificationType),
			slog.String("error", err.Error()),
			slog.String("correlation_id", correlationID),
		)
		s.metrics.RecordBlocklistRequest(classificationType, statusError)
		s.writeText(w, http.StatusInternalServerError, "Internal server error: "+err.Error(), correlationID)

		return
	}

	s.logger.Info("Serving blocklist",
		slog.Int("domains", len(domains)),
		slog.String("classification_type", classificationType),
		slog.Time("at", at),
		slog.String("correlation_id", correlationID),
	)

	s.metrics.RecordBlocklistRequest(classificationType, statusSuccess)
	s.metrics.RecordBlocklistSize(len(domains))

	s.writeText(w, http.StatusOK, strings.Join(domains, "\n"), correlationID)
}

// handleHealth responds to health probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck()
	s.writeText(w, http.StatusOK, "OK", middleware.GetCorrelationID(r.Context()))
}

// handleMetrics refreshes the store-derived gauges and serves the
// Prometheus text exposition. A failed refresh keeps the last-known
// gauge values; the scrape still succeeds.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordMetricsRequest()

	stats, err := s.store.MetricsSnapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to refresh store metrics",
			slog.String("error", err.Error()),
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		)
	} else {
		s.metrics.Refresh(stats)
	}

	s.metrics.Handler().ServeHTTP(w, r)
}

// handleNotFound returns 404 for unknown paths.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, http.StatusNotFound, "Not found", middleware.GetCorrelationID(r.Context()))
}

// writeText writes a plain-text response. Write failures after the
// status line are only loggable.
func (s *Server) writeText(w http.ResponseWriter, status int, body, correlationID string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.Int("status", status),
			slog.String("error", err.Error()),
			slog.String("correlation_id", correlationID),
		)
	}
}
