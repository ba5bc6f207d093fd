package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/identity"
	"github.com/ashureev/mentor-labs/internal/orchestrator"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTurns struct {
	mu   sync.Mutex
	reqs []orchestrator.TurnRequest
	fn   func(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
}

func (s *stubTurns) HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, req)
	}
	return &orchestrator.TurnResult{
		ThreadID:  req.ThreadID,
		Reply:     "**Mentor:** hello",
		Mode:      domain.ModeRouter,
		Phase:     domain.PhaseStart,
		Label:     domain.LabelMentor,
		Citations: []domain.Citation{},
	}, nil
}

func (s *stubTurns) last(t *testing.T) orchestrator.TurnRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.reqs)
	return s.reqs[len(s.reqs)-1]
}

func chunkingTurns(chunks ...string) *stubTurns {
	return &stubTurns{fn: func(_ context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
		for _, c := range chunks {
			if req.Sink == nil {
				break
			}
			if err := req.Sink(c); err != nil {
				return nil, err
			}
		}
		return &orchestrator.TurnResult{
			ThreadID: req.ThreadID,
			Reply:    strings.Join(chunks, ""),
			Mode:     domain.ModeRouter,
			Phase:    domain.PhaseStart,
		}, nil
	}}
}

func newTestHandler(t *testing.T, turns TurnHandler, cfg HandlerConfig) (*Handler, http.Handler) {
	t.Helper()
	svc, err := NewService(turns)
	require.NoError(t, err)
	h := NewHandler(svc, cfg, nil, nil)
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	return h, r
}

func post(t *testing.T, srv http.Handler, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHandleChatReturnsReply(t *testing.T) {
	t.Parallel()

	turns := &stubTurns{}
	_, srv := newTestHandler(t, turns, HandlerConfig{})

	rec := post(t, srv, "/api/chat", `{"message":"hi","mode":"router"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "**Mentor:** hello", resp.Reply)
	assert.Equal(t, orchestrator.DefaultThreadID, resp.ThreadID)
	assert.Equal(t, domain.LabelMentor, resp.Label)
	assert.NotNil(t, resp.Citations)

	got := turns.last(t)
	assert.Equal(t, "hi", got.Message)
	assert.Equal(t, domain.ModeRouter, got.Mode)
	assert.Nil(t, got.History)
	assert.Nil(t, got.Sink)
}

func TestHandleChatThreadSelection(t *testing.T) {
	t.Parallel()

	turns := &stubTurns{}
	_, srv := newTestHandler(t, turns, HandlerConfig{})

	rec := post(t, srv, "/api/chat", `{"message":"hi"}`, identity.ThreadHeaderName, "header-thread")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "header-thread", turns.last(t).ThreadID)

	rec = post(t, srv, "/api/chat", `{"message":"hi","thread_id":"body-thread"}`, identity.ThreadHeaderName, "header-thread")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body-thread", turns.last(t).ThreadID)
}

func TestHandleChatPassesHistory(t *testing.T) {
	t.Parallel()

	turns := &stubTurns{}
	_, srv := newTestHandler(t, turns, HandlerConfig{})

	rec := post(t, srv, "/api/chat", `{"message":"hi","history":[{"role":"user","content":"earlier"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	raw, ok := turns.last(t).History.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `[{"role":"user","content":"earlier"}]`, string(raw))
}

func TestHandleChatRejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"message":`, http.StatusBadRequest},
		{"empty message", `{"message":"   "}`, http.StatusBadRequest},
		{"bad thread id", `{"message":"hi","thread_id":"no spaces allowed"}`, http.StatusBadRequest},
		{"too large", `{"message":"` + strings.Repeat("x", 200) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := &stubTurns{}
			_, srv := newTestHandler(t, turns, HandlerConfig{MaxRequestBodySize: 128})

			rec := post(t, srv, "/api/chat", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
			assert.Empty(t, turns.reqs)
		})
	}
}

func TestHandleChatMapsTurnErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid history", fmt.Errorf("%w: not a list", orchestrator.ErrInvalidHistory), http.StatusBadRequest},
		{"empty message", orchestrator.ErrEmptyMessage, http.StatusBadRequest},
		{"store failure", errors.New("save session default-thread: disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := &stubTurns{fn: func(context.Context, orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
				return nil, tt.err
			}}
			_, srv := newTestHandler(t, turns, HandlerConfig{})

			rec := post(t, srv, "/api/chat", `{"message":"hi"}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleChatRateLimited(t *testing.T) {
	t.Parallel()

	_, srv := newTestHandler(t, &stubTurns{}, HandlerConfig{RateLimitRequests: 2, RateLimitWindow: time.Hour})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
		req.AddCookie(&http.Cookie{Name: identity.ClientCookieName, Value: "anon_" + strings.Repeat("ab", 16)})
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestHandleStreamWritesSSE(t *testing.T) {
	t.Parallel()

	_, srv := newTestHandler(t, chunkingTurns("hel", "lo"), HandlerConfig{RetryDelay: 2 * time.Second})

	for _, path := range []string{"/api/chat/stream", "/api/chat"} {
		rec := post(t, srv, path, `{"message":"hi","stream":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.True(t, strings.HasPrefix(body, "retry: 2000\n\n"), body)
		assert.Equal(t, 2, strings.Count(body, "event: chunk\n"))
		assert.Contains(t, body, `"content":"hel"`)
		assert.Contains(t, body, "event: done\n")
		assert.Contains(t, body, `"reply":"hello"`)
		assert.Less(t, strings.Index(body, `"content":"lo"`), strings.Index(body, "event: done"))
	}
}

func TestHandleStreamReportsError(t *testing.T) {
	t.Parallel()

	turns := &stubTurns{fn: func(context.Context, orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
		return nil, errors.New("store unavailable")
	}}
	_, srv := newTestHandler(t, turns, HandlerConfig{})

	rec := post(t, srv, "/api/chat/stream", `{"message":"hi"}`)
	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "store unavailable")
	assert.NotContains(t, body, "event: done")
}

func TestHandleWebSocket(t *testing.T) {
	t.Parallel()

	turns := chunkingTurns("a ", "b")
	_, router := newTestHandler(t, turns, HandlerConfig{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	readFrame := func() StreamEvent {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev StreamEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"message":"hi","thread_id":"ws-1"}`)))
	var types []EventType
	var done StreamEvent
	for {
		ev := readFrame()
		types = append(types, ev.Type)
		if ev.Type == EventDone {
			done = ev
			break
		}
	}
	assert.Equal(t, []EventType{EventChunk, EventChunk, EventDone}, types)
	require.NotNil(t, done.Response)
	assert.Equal(t, "a b", done.Response.Reply)
	assert.Equal(t, "ws-1", turns.last(t).ThreadID)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`not json`)))
	ev := readFrame()
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "invalid request body", ev.Error)
}

func TestServiceStreamStopsEarly(t *testing.T) {
	t.Parallel()

	sinkErr := make(chan error, 1)
	turns := &stubTurns{fn: func(_ context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
		for _, c := range []string{"one", "two", "three"} {
			if err := req.Sink(c); err != nil {
				sinkErr <- err
				return nil, err
			}
		}
		sinkErr <- nil
		return &orchestrator.TurnResult{Reply: "onetwothree"}, nil
	}}
	svc, err := NewService(turns)
	require.NoError(t, err)

	var seen []string
	for ev, err := range svc.Stream(context.Background(), ChatRequest{Message: "hi"}) {
		require.NoError(t, err)
		seen = append(seen, ev.Content)
		break
	}
	assert.Equal(t, []string{"one"}, seen)

	select {
	case err := <-sinkErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("turn was not cancelled")
	}
}

func TestNewServiceRequiresTurnHandler(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil)
	assert.ErrorIs(t, err, ErrNoTurnHandler)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Hour)
	t.Cleanup(rl.Close)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	rl.evict(time.Now().Add(2 * time.Hour))
	rl.mu.Lock()
	assert.Empty(t, rl.clients)
	rl.mu.Unlock()
	assert.True(t, rl.Allow("a"))
}

func TestOriginPatterns(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"*"}, originPatterns(nil))
	assert.Equal(t, []string{"*"}, originPatterns([]string{"https://a.example.com", "*"}))
	assert.Equal(t, []string{"a.example.com", "localhost:5173"},
		originPatterns([]string{"https://a.example.com/", "http://localhost:5173"}))
}
