// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
)

// SessionStore is the persistence contract the orchestrator depends on.
type SessionStore interface {
	// Load returns the session of threadID, or (nil, nil) when none exists.
	Load(ctx context.Context, threadID string) (*domain.Session, error)

	// Save overwrites the stored snapshot of the session.
	Save(ctx context.Context, session *domain.Session) error
}

// Repository is a SessionStore with lifecycle and maintenance operations.
type Repository interface {
	SessionStore

	// Delete removes the session of threadID. Deleting a missing session is not an error.
	Delete(ctx context.Context, threadID string) error

	// List returns the ids of stored sessions.
	List(ctx context.Context) ([]string, error)

	// CleanupExpired removes sessions not updated within ttl and returns how many were removed.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}

// record is the serialized form shared by the JSON-backed stores. Messages
// stay raw so that any history shape written by older versions is normalized
// on load.
type record struct {
	ThreadID  string                           `json:"thread_id"`
	Mode      domain.Mode                      `json:"mode"`
	Messages  json.RawMessage                  `json:"messages"`
	Progress  domain.Progress                  `json:"progress"`
	Personas  map[domain.Label]json.RawMessage `json:"personas,omitempty"`
	CreatedAt time.Time                        `json:"created_at"`
	UpdatedAt time.Time                        `json:"updated_at"`
}

func encodeSession(s *domain.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*domain.Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return fromRecord(rec)
}

func fromRecord(rec record) (*domain.Session, error) {
	history, err := decodeHistory(rec.Messages)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", rec.ThreadID, err)
	}
	s := &domain.Session{
		ThreadID:  rec.ThreadID,
		Mode:      rec.Mode,
		History:   history,
		Progress:  rec.Progress.Clamp(),
		Personas:  make(map[domain.Label]domain.History, len(rec.Personas)),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	for label, raw := range rec.Personas {
		sub, err := decodeHistory(raw)
		if err != nil {
			return nil, fmt.Errorf("session %s persona %s: %w", rec.ThreadID, label, err)
		}
		s.Personas[label] = sub
	}
	return s, nil
}

func decodeHistory(raw json.RawMessage) (domain.History, error) {
	if len(raw) == 0 {
		return domain.History{}, nil
	}
	return domain.NormalizeHistory(raw)
}

// stamped returns a copy of s with missing timestamps filled in.
func stamped(s *domain.Session) *domain.Session {
	s = s.Clone()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}
	return s
}
