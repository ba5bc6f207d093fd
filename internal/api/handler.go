// Package api provides the operational HTTP handlers of the mentor server.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/identity"
	"github.com/ashureev/mentor-labs/internal/orchestrator"
	"github.com/ashureev/mentor-labs/internal/store"
	"github.com/go-chi/chi/v5"
)

// tailSize is the number of trailing messages reported by /debug/state.
const tailSize = 6

// SessionReader loads the state of a thread.
type SessionReader interface {
	Session(ctx context.Context, threadID string) (*domain.Session, error)
}

// Handler serves health, debug and session administration routes.
type Handler struct {
	repo               store.Repository
	sessions           SessionReader
	metrics            http.Handler
	healthCheckTimeout time.Duration
}

// NewHandler creates a Handler. metricsHandler may be nil to disable /metrics.
func NewHandler(repo store.Repository, sessions SessionReader, metricsHandler http.Handler) *Handler {
	return &Handler{
		repo:               repo,
		sessions:           sessions,
		metrics:            metricsHandler,
		healthCheckTimeout: 5 * time.Second,
	}
}

// RegisterRoutes registers the operational routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/debug/state", h.DebugState)
	r.Get("/api/sessions", h.ListSessions)
	r.Delete("/api/sessions/{threadID}", h.DeleteSession)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health returns the health status of the API and its session store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	JSON(w, statusCode, status)
}

// DebugState reports the interview counters and the last messages of a thread.
type DebugState struct {
	SessionID    string        `json:"session_id"`
	Exists       bool          `json:"exists"`
	Mode         domain.Mode   `json:"mode,omitempty"`
	IntroDone    bool          `json:"intro_done"`
	TestsDone    int           `json:"tests_done"`
	GeneralDone  int           `json:"general_done"`
	Phase        domain.Phase  `json:"phase"`
	Finished     bool          `json:"finished"`
	MessagesTail []domain.Turn `json:"messages_tail"`
}

// DebugState handles GET /debug/state?session_id=.
func (h *Handler) DebugState(w http.ResponseWriter, r *http.Request) {
	threadID := identity.ThreadIDFromContext(r.Context())
	if threadID == "" {
		threadID = identity.SanitizeThreadID(r.URL.Query().Get("session_id"))
	}
	if threadID == "" {
		threadID = orchestrator.DefaultThreadID
	}

	sess, err := h.sessions.Session(r.Context(), threadID)
	if err != nil {
		slog.Error("Failed to load session", "thread_id", threadID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	state := DebugState{
		SessionID:    threadID,
		Phase:        domain.PhaseStart,
		MessagesTail: []domain.Turn{},
	}
	if sess != nil {
		state.Exists = true
		state.Mode = sess.Mode
		state.IntroDone = sess.Progress.IntroDone
		state.TestsDone = sess.Progress.TestsDone
		state.GeneralDone = sess.Progress.GeneralDone
		state.Phase = sess.Progress.Phase
		state.Finished = sess.Progress.Finished
		if tail := sess.History.Tail(tailSize); len(tail) > 0 {
			state.MessagesTail = tail
		}
	}
	JSON(w, http.StatusOK, state)
}

// ListSessions handles GET /api/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.repo.List(r.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": ids})
}

// DeleteSession handles DELETE /api/sessions/{threadID}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	threadID := identity.SanitizeThreadID(chi.URLParam(r, "threadID"))
	if threadID == "" {
		Error(w, http.StatusBadRequest, "invalid thread id")
		return
	}
	if err := h.repo.Delete(r.Context(), threadID); err != nil {
		slog.Error("Failed to delete session", "thread_id", threadID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
