// Package server exposes the orchestrator over HTTP: session CRUD, the
// terminal redirect, privileged lead export, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/autonops/infraiq-demo/internal/auth"
	"github.com/autonops/infraiq-demo/internal/leads"
	"github.com/autonops/infraiq-demo/internal/orchestrator"
	"github.com/autonops/infraiq-demo/internal/ports"
	"github.com/autonops/infraiq-demo/internal/session"
	"github.com/autonops/infraiq-demo/internal/telemetry"
	"github.com/autonops/infraiq-demo/internal/worker"
)

// Server is the HTTP front of the session orchestrator.
type Server struct {
	orch      *orchestrator.Orchestrator
	leadStore leads.Store
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	limiter   *auth.FailureLimiter
	adminKey  string
	startTime time.Time

	mux    *http.ServeMux
	server *http.Server
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAdminKey sets the credential guarding lead export.
func WithAdminKey(key string) ServerOption {
	return func(s *Server) { s.adminKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics collector backing /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates the HTTP server over the orchestrator and lead store.
func NewServer(orch *orchestrator.Orchestrator, leadStore leads.Store, opts ...ServerOption) *Server {
	s := &Server{
		orch:      orch,
		leadStore: leadStore,
		logger:    slog.Default(),
		limiter:   auth.NewFailureLimiter(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("GET /api/session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/session/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /terminal/{id}", s.handleTerminalRedirect)
	mux.HandleFunc("GET /api/leads", s.handleExportLeads)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.requestLogging(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("server starting", "addr", addr, "max_sessions", s.orch.Capacity())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get("X-Request-ID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.RequestLogger(s.logger, r.Context(), r.Method, r.URL.Path)

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	sess, err := s.orch.CreateSession(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, leads.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, "invalid_email", err.Error())
		case errors.Is(err, session.ErrCapacityExceeded), errors.Is(err, ports.ErrExhausted):
			writeError(w, http.StatusServiceUnavailable, "capacity_exceeded",
				"All demo slots are currently in use. Please try again in a few minutes.")
		case errors.Is(err, worker.ErrStartFailed):
			logger.Error("worker start failed", "error", err)
			writeError(w, http.StatusBadGateway, "start_failure",
				"Could not start your demo environment. Please try again.")
		default:
			logger.Error("create session failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "Unexpected error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":         sess.ID,
		"state":              sess.State,
		"session_url":        "/terminal/" + sess.ID,
		"port":               sess.Port,
		"expires_in_seconds": int(sess.Remaining(time.Now()).Seconds()),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":        sess.ID,
		"state":             sess.State,
		"remaining_seconds": int(sess.Remaining(time.Now()).Seconds()),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ending"})
}

func (s *Server) handleTerminalRedirect(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
		return
	}

	switch sess.State {
	case session.StateExpiring, session.StateTerminated:
		writeError(w, http.StatusGone, "session_ended", "Session has expired")
	default:
		// The reverse proxy maps /t/<port>/ to the worker's terminal.
		http.Redirect(w, r, fmt.Sprintf("/t/%d/", sess.Port), http.StatusFound)
	}
}

func (s *Server) handleExportLeads(w http.ResponseWriter, r *http.Request) {
	clientIP := auth.ClientIP(r)
	if s.limiter.Blocked(clientIP) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", s.limiter.RetryAfter(clientIP)))
		writeError(w, http.StatusTooManyRequests, "rate_limited",
			"Too many failed authentication attempts. Try again later.")
		return
	}

	if !auth.ValidateKey(auth.KeyFromRequest(r), s.adminKey) {
		s.limiter.Failure(clientIP)
		writeError(w, http.StatusForbidden, "unauthorized", "Missing or invalid admin key")
		return
	}
	s.limiter.Success(clientIP)

	all, err := s.leadStore.All(r.Context())
	if err != nil {
		telemetry.RequestLogger(s.logger, r.Context(), r.Method, r.URL.Path).
			Error("lead export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not read leads")
		return
	}
	if all == nil {
		all = []leads.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": all})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"uptime":          time.Since(s.startTime).String(),
		"active_sessions": s.orch.ActiveCount(),
		"max_sessions":    s.orch.Capacity(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
