// Package agent exposes the mentor orchestrator over HTTP, SSE and WebSocket.
package agent

import (
	"encoding/json"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/orchestrator"
)

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	Message      string          `json:"message"`
	History      json.RawMessage `json:"history,omitempty"`
	Stream       bool            `json:"stream,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	ThreadID     string          `json:"thread_id,omitempty"`
	Mode         string          `json:"mode,omitempty"`
	ClientID     string          `json:"-"`
}

// turnRequest converts the wire request for the orchestrator.
func (r ChatRequest) turnRequest(sink orchestrator.ChunkSink) orchestrator.TurnRequest {
	tr := orchestrator.TurnRequest{
		ThreadID:     r.ThreadID,
		Message:      r.Message,
		SystemPrompt: r.SystemPrompt,
		Mode:         domain.Mode(r.Mode),
		Sink:         sink,
	}
	if len(r.History) > 0 && string(r.History) != "null" {
		tr.History = r.History
	}
	return tr
}

// ChatResponse is the reply to a chat turn.
type ChatResponse struct {
	ThreadID  string            `json:"thread_id"`
	Reply     string            `json:"reply"`
	Citations []domain.Citation `json:"citations"`
	Phase     domain.Phase      `json:"phase"`
	Label     domain.Label      `json:"label,omitempty"`
	Mode      domain.Mode       `json:"mode"`
}

func responseFrom(res *orchestrator.TurnResult) *ChatResponse {
	return &ChatResponse{
		ThreadID:  res.ThreadID,
		Reply:     res.Reply,
		Citations: res.Citations,
		Phase:     res.Phase,
		Label:     res.Label,
		Mode:      res.Mode,
	}
}

// EventType categorizes streamed events.
type EventType string

const (
	// EventChunk carries a fragment of the reply.
	EventChunk EventType = "chunk"
	// EventDone carries the complete response.
	EventDone EventType = "done"
	// EventError reports a failed turn.
	EventError EventType = "error"
)

// StreamEvent is one frame of a streamed reply.
type StreamEvent struct {
	Type     EventType     `json:"type"`
	Content  string        `json:"content,omitempty"`
	Response *ChatResponse `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}
