package tradelog

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Options struct {
	Backend     string
	Path        string
	RedisURL    string
	DatabaseURL string
}

// Open builds the configured trade store. The returned close func releases
// connections and is never nil.
func Open(ctx context.Context, opts Options) (interfaces.TradeStore, func(), error) {
	noop := func() {}
	switch strings.ToLower(opts.Backend) {
	case BackendFile, "":
		path := opts.Path
		if path == "" {
			path = "data/trades.json"
		}
		fs, err := NewFileStore(path)
		if err != nil {
			return nil, noop, err
		}
		logger.Info(ctx, "Trade history file store ready", "path", path)
		return fs, noop, nil

	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, noop, fmt.Errorf("redis backend needs REDIS_URL")
		}
		ropts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(ropts)
		return NewRedisStore(ctx, client), func() { _ = client.Close() }, nil

	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, noop, fmt.Errorf("postgres backend needs DATABASE_URL")
		}
		pool, err := NewPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		ps, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		logger.Info(ctx, "Trade history postgres store ready")
		return ps, pool.Close, nil

	case BackendMemory:
		return NewMemoryStore(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown trade store backend %q", opts.Backend)
}
