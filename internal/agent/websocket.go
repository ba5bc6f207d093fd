package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/mentor-labs/internal/identity"
	"github.com/ashureev/mentor-labs/internal/orchestrator"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

// HandleWebSocket handles GET /ws/chat. Each text frame is a ChatRequest;
// the reply is written back as a sequence of StreamEvent frames.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.cfg.AllowedOrigins),
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	clientID := clientKey(r)
	threadID := identity.ThreadIDFromContext(r.Context())
	go h.keepalive(ctx, ws)

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket read ended", "client_id", clientID, "error", err)
			}
			return
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.writeFrame(ctx, ws, &StreamEvent{Type: EventError, Error: "invalid request body"})
			continue
		}
		if !h.rateLimiter.Allow(clientID) {
			h.writeFrame(ctx, ws, &StreamEvent{Type: EventError, Error: "rate limit exceeded"})
			continue
		}

		req.ClientID = clientID
		if req.ThreadID != "" {
			req.ThreadID = identity.SanitizeThreadID(req.ThreadID)
			if req.ThreadID == "" {
				h.writeFrame(ctx, ws, &StreamEvent{Type: EventError, Error: "invalid thread_id"})
				continue
			}
		} else {
			req.ThreadID = threadID
		}
		if req.ThreadID == "" {
			req.ThreadID = orchestrator.DefaultThreadID
		}

		if !h.streamFrames(ctx, ws, req) {
			return
		}
	}
}

// streamFrames runs one turn over ws. It returns false once the connection
// can no longer be written to.
func (h *Handler) streamFrames(ctx context.Context, ws *websocket.Conn, req ChatRequest) bool {
	h.logUserMessage(req, "chat_ws", "")
	chunks := 0
	for ev, err := range h.agent.Stream(ctx, req) {
		if err != nil {
			h.logger.Error("websocket turn failed", "thread_id", req.ThreadID, "error", err)
			h.logAssistantMessage(req, "chat_ws", "", chunks, true, err.Error(), "")
			return h.writeFrame(ctx, ws, &StreamEvent{Type: EventError, Error: err.Error()})
		}
		if ev.Type == EventChunk {
			chunks++
		}
		if !h.writeFrame(ctx, ws, ev) {
			return false
		}
		if ev.Type == EventDone {
			h.logAssistantMessage(req, "chat_ws", ev.Response.Reply, chunks, false, "", "")
		}
	}
	return true
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, ev *StreamEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("failed to marshal websocket frame", "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}

func (h *Handler) keepalive(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			// Pongs are only read between turns, so a ping sent mid-turn may time out.
			if err := ws.Ping(pingCtx); err != nil && ctx.Err() == nil {
				h.logger.Debug("websocket ping failed", "error", err)
			}
			cancel()
		}
	}
}

// originPatterns converts configured origins to websocket host patterns.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		patterns = append(patterns, strings.TrimRight(o, "/"))
	}
	return patterns
}
