package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
	backend "github.com/redis/go-redis/v9"
)

// RedisStore implements Repository using Redis. Each session is one JSON
// value; a sorted set indexes thread ids by last update time.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the key expiration of saved sessions.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix of saved sessions.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedis creates a Redis store connected to address.
func NewRedis(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

// NewRedisFromClient creates a Redis store from an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "mentor:session:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + threadID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Load retrieves the session of threadID.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", threadID, err)
	}
	return decodeSession(val)
}

// Save writes the session and refreshes its index entry in one pipeline.
func (s *RedisStore) Save(ctx context.Context, session *domain.Session) error {
	session = stamped(session)
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(session.ThreadID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(session.UpdatedAt.Unix()),
		Member: session.ThreadID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session %s: %w", session.ThreadID, err)
	}
	return nil
}

// Delete removes the session and its index entry.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session %s: %w", threadID, err)
	}
	return nil
}

// List returns indexed thread ids whose value has not expired, most
// recently updated first. Index entries of expired keys are pruned.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check session %s: %w", id, err)
		}
		if n == 0 {
			if err := s.client.ZRem(ctx, s.indexKey(), id).Err(); err != nil {
				return nil, fmt.Errorf("prune session %s: %w", id, err)
			}
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// CleanupExpired removes sessions whose last update is older than ttl.
func (s *RedisStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := strconv.FormatInt(time.Now().Add(-ttl).Unix(), 10)
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: "(" + threshold,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("query expired sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
		members[i] = id
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return int64(len(ids)), nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
