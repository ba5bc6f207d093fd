package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/ashureev/mentor-labs/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
	retry     shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets readers proceed while a turn is being saved.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		thread_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		progress_json TEXT NOT NULL,
		personas_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load retrieves the session of threadID.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*domain.Session, error) {
	query := `
		SELECT thread_id, mode, messages_json, progress_json, personas_json,
		       created_at, updated_at
		FROM sessions WHERE thread_id = ?`

	row := s.db.QueryRowContext(ctx, query, threadID)

	var (
		id, mode, messagesJSON, progressJSON string
		personasJSON                         sql.NullString
		createdAt, updatedAt                 int64
	)
	err := row.Scan(&id, &mode, &messagesJSON, &progressJSON, &personasJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	rec := record{
		ThreadID:  id,
		Mode:      domain.Mode(mode),
		Messages:  json.RawMessage(messagesJSON),
		CreatedAt: time.UnixMilli(createdAt),
		UpdatedAt: time.UnixMilli(updatedAt),
	}
	if err := json.Unmarshal([]byte(progressJSON), &rec.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress of %s: %w", id, err)
	}
	if personasJSON.Valid && personasJSON.String != "" {
		if err := json.Unmarshal([]byte(personasJSON.String), &rec.Personas); err != nil {
			return nil, fmt.Errorf("unmarshal personas of %s: %w", id, err)
		}
	}
	return fromRecord(rec)
}

// Save upserts the full session snapshot, retrying on lock contention.
func (s *SQLiteStore) Save(ctx context.Context, session *domain.Session) error {
	session = stamped(session)

	messagesJSON, err := json.Marshal(session.History)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	if session.History == nil {
		messagesJSON = []byte("[]")
	}
	progressJSON, err := json.Marshal(session.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	var personasJSON interface{}
	if len(session.Personas) > 0 {
		data, err := json.Marshal(session.Personas)
		if err != nil {
			return fmt.Errorf("marshal personas: %w", err)
		}
		personasJSON = string(data)
	}

	query := `
		INSERT INTO sessions (
			thread_id, mode, messages_json, progress_json, personas_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			mode = excluded.mode,
			messages_json = excluded.messages_json,
			progress_json = excluded.progress_json,
			personas_json = excluded.personas_json,
			updated_at = excluded.updated_at`

	err = shared.RetryOnConflict(ctx, s.retry, "save session", func() error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()
		_, err := s.db.ExecContext(ctx, query,
			session.ThreadID, string(session.Mode), string(messagesJSON), string(progressJSON), personasJSON,
			session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.ThreadID, err)
	}
	return nil
}

// Delete removes a session, retrying on lock contention.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	err := shared.RetryOnConflict(ctx, s.retry, "delete session", func() error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE thread_id = ?`, threadID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", threadID, err)
	}
	return nil
}

// List returns all stored thread ids, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// CleanupExpired removes sessions not updated within ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	var deleted int64
	err := shared.RetryOnConflict(ctx, s.retry, "cleanup sessions", func() error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()
		result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
