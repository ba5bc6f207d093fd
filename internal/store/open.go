package store

import (
	"context"
	"fmt"

	"github.com/ashureev/mentor-labs/internal/config"
)

// Open creates the repository selected by cfg.Driver and verifies it is reachable.
func Open(ctx context.Context, cfg config.StoreConfig) (Repository, error) {
	var repo Repository
	switch cfg.Driver {
	case "sqlite":
		s, err := NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		repo = s
	case "redis":
		opts := []RedisOption{WithTTL(cfg.SessionTTL)}
		if cfg.RedisPrefix != "" {
			opts = append(opts, WithPrefix(cfg.RedisPrefix))
		}
		repo = NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
	case "memory":
		repo = NewMemory()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	return repo, nil
}
