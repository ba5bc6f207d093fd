package domain

import (
	"time"
)

// Mode selects how a session's turns are executed.
type Mode string

const (
	// ModeRouter dispatches free-form turns to personas via the intent router.
	ModeRouter Mode = "router"
	// ModeInterview drives the fixed-order structured interview.
	ModeInterview Mode = "interview"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeRouter || m == ModeInterview
}

// Session is the durable state of one conversation thread.
type Session struct {
	ThreadID  string            `json:"thread_id"`
	Mode      Mode              `json:"mode"`
	History   History           `json:"messages"`
	Progress  Progress          `json:"progress"`
	Personas  map[Label]History `json:"personas,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession creates an empty session with zeroed counters.
func NewSession(threadID string, mode Mode, now time.Time) *Session {
	return &Session{
		ThreadID:  threadID,
		Mode:      mode,
		Progress:  NewProgress(),
		Personas:  make(map[Label]History),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = s.History.Clone()
	out.Personas = make(map[Label]History, len(s.Personas))
	for k, v := range s.Personas {
		out.Personas[k] = v.Clone()
	}
	return &out
}

// Citation is one retrieval hit attached to a reply.
type Citation struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
}
