package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/mentor-labs/internal/config"
	"github.com/ashureev/mentor-labs/internal/identity"
	"github.com/ashureev/mentor-labs/internal/orchestrator"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// statusClientClosedRequest is nginx's non-standard code for a client that
// went away before the response was written.
const statusClientClosedRequest = 499

// HandlerConfig holds the transport settings of a Handler.
type HandlerConfig struct {
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	MaxRequestBodySize int64
	RetryDelay         time.Duration
	KeepaliveInterval  time.Duration
	AllowedOrigins     []string
}

// HandlerConfigFrom extracts the transport settings from cfg.
func HandlerConfigFrom(cfg *config.Config) HandlerConfig {
	return HandlerConfig{
		RateLimitRequests:  cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:    cfg.RateLimit.WindowDuration,
		MaxRequestBodySize: cfg.SSE.MaxRequestBodySize,
		RetryDelay:         cfg.SSE.RetryDelay,
		KeepaliveInterval:  cfg.SSE.KeepaliveInterval,
		AllowedOrigins:     cfg.AllowedOrigins(),
	}
}

// Handler serves chat turns.
type Handler struct {
	agent       *Service
	rateLimiter *RateLimiter
	log         ConversationLogger
	cfg         HandlerConfig
	logger      *slog.Logger
	eventID     atomic.Int64
}

// NewHandler creates a chat handler.
func NewHandler(agentService *Service, cfg HandlerConfig, conversationLogger ConversationLogger, logger *slog.Logger) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Second
	}
	return &Handler{
		agent:       agentService,
		rateLimiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		log:         conversationLogger,
		cfg:         cfg,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", h.HandleChat)
		r.Post("/stream", h.HandleStream)
	})
	r.Get("/ws/chat", h.HandleWebSocket)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Close()
	if err := h.log.Close(); err != nil {
		h.logger.Warn("failed to close conversation logger", "error", err)
	}
}

func clientKey(r *http.Request) string {
	if id := identity.ClientIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}

// decodeChat applies the rate limit and reads the request body. It writes
// the error response itself and reports whether the caller may proceed.
func (h *Handler) decodeChat(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	key := clientKey(r)
	if !h.rateLimiter.Allow(key) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return ChatRequest{}, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return ChatRequest{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return ChatRequest{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return ChatRequest{}, false
	}

	req.ClientID = key
	if req.ThreadID == "" {
		req.ThreadID = identity.ThreadIDFromContext(r.Context())
	} else {
		req.ThreadID = identity.SanitizeThreadID(req.ThreadID)
		if req.ThreadID == "" {
			writeError(w, http.StatusBadRequest, "invalid thread_id")
			return ChatRequest{}, false
		}
	}
	if req.ThreadID == "" {
		req.ThreadID = orchestrator.DefaultThreadID
	}
	return req, true
}

// HandleChat handles POST /api/chat. A body with "stream": true is answered
// as an SSE stream.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChat(w, r)
	if !ok {
		return
	}
	reqID := chiMiddleware.GetReqID(r.Context())
	h.logUserMessage(req, "chat_http", reqID)

	if req.Stream {
		h.stream(w, r, req, reqID)
		return
	}

	resp, err := h.agent.Chat(r.Context(), req)
	if err != nil {
		h.logger.Error("chat turn failed", "thread_id", req.ThreadID, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.logAssistantMessage(req, "chat_http", resp.Reply, 1, false, "", reqID)
	writeJSON(w, http.StatusOK, resp)
}

// HandleStream handles POST /api/chat/stream.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChat(w, r)
	if !ok {
		return
	}
	reqID := chiMiddleware.GetReqID(r.Context())
	h.logUserMessage(req, "chat_sse", reqID)
	h.stream(w, r, req, reqID)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req ChatRequest, reqID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.cfg.RetryDelay.Milliseconds()); err != nil {
		h.logger.Warn("failed to write SSE retry header", "error", err)
		return
	}
	flusher.Flush()

	chunks := 0
	for ev, err := range h.agent.Stream(r.Context(), req) {
		if err != nil {
			h.logger.Error("chat stream failed", "thread_id", req.ThreadID, "error", err)
			h.logAssistantMessage(req, "chat_sse", "", chunks, true, err.Error(), reqID)
			data, _ := json.Marshal(StreamEvent{Type: EventError, Error: err.Error()})
			if writeErr := writeSSEWithID(w, h.eventID.Add(1), string(EventError), string(data)); writeErr != nil {
				h.logger.Warn("failed to write SSE error event", "error", writeErr)
			}
			flusher.Flush()
			return
		}

		if ev.Type == EventChunk {
			chunks++
		}
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("failed to marshal stream event", "error", err)
			return
		}
		if err := writeSSEWithID(w, h.eventID.Add(1), string(ev.Type), string(data)); err != nil {
			h.logger.Warn("failed to write SSE event", "thread_id", req.ThreadID, "error", err)
			return
		}
		flusher.Flush()

		if ev.Type == EventDone {
			h.logAssistantMessage(req, "chat_sse", ev.Response.Reply, chunks, false, "", reqID)
		}
	}
}

func (h *Handler) logUserMessage(req ChatRequest, channel, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ClientID:   req.ClientID,
		ThreadID:   req.ThreadID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Message,
		Content:    cleanForReadability(req.Message),
		Meta: map[string]any{
			"request_id": requestID,
			"mode":       req.Mode,
		},
	})
}

func (h *Handler) logAssistantMessage(req ChatRequest, channel, content string, streamChunks int, partial bool, streamErrMsg, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ClientID:   req.ClientID,
		ThreadID:   req.ThreadID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta: map[string]any{
			"stream_chunks": streamChunks,
			"partial":       partial,
			"stream_error":  streamErrMsg,
			"request_id":    requestID,
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage), errors.Is(err, orchestrator.ErrInvalidHistory):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
