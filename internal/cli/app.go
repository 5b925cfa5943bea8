package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/cache"
	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

// openDB opens the configured note store.
func openDB(ctx context.Context, c *config.Config) (*store.DB, error) {
	switch c.Database.Driver {
	case "postgres":
		return store.OpenPostgres(ctx, c.Database.DSN)
	default:
		path := c.Database.Path
		if path == "" {
			var err error
			path, err = store.DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("resolve db path: %w", err)
			}
		}
		return store.Open(path)
	}
}

// openRedis returns nil when no cache backend is configured. An unreachable
// server is logged and kept; the cache and rate limiter treat errors as
// misses and pass-throughs.
func openRedis(ctx context.Context, c *config.Config, log *zap.Logger) redis.UniversalClient {
	if !c.Cache.Enabled || c.Cache.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{c.Cache.RedisAddr},
		Password: c.Cache.RedisPassword,
		DB:       c.Cache.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, cache will miss until it recovers",
			zap.String("addr", c.Cache.RedisAddr), zap.Error(err))
	}
	return rdb
}

// newLLM builds the configured generation backend, wrapped in a circuit
// breaker when enabled. Provider "none" yields nil.
func newLLM(c *config.Config, log *zap.Logger) (llm.Client, error) {
	client, err := llm.NewClient(c.LLM)
	if err != nil || client == nil {
		return nil, err
	}
	if !c.LLM.Breaker.Enabled {
		return client, nil
	}
	return llm.NewBreaker(c.LLM.Provider, client, llm.BreakerSettings{
		MaxFailures: c.LLM.Breaker.MaxFailures,
		OpenTimeout: c.LLM.Breaker.OpenTimeout,
	}, log), nil
}

// newEngine wires the answer pipeline from configuration.
func newEngine(c *config.Config, db *store.DB, rdb redis.UniversalClient, log *zap.Logger, m *metrics.Collector) (*engine.Engine, error) {
	semantic := cache.New(rdb, cache.Config{
		Enabled:       c.Cache.Enabled,
		Threshold:     c.Cache.Threshold,
		TTL:           c.Cache.TTL,
		L1Size:        c.Cache.L1Size,
		MaxCandidates: c.Cache.MaxCandidates,
	}, log)
	semantic.SetMetrics(m)

	client, err := newLLM(c, log)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	return engine.New(db, db, client, semantic, engine.Options{
		Strategy:        c.Retrieval.Strategy,
		Limit:           c.Retrieval.Limit,
		ExpansionScore:  c.Retrieval.ExpansionScore,
		IntentExpansion: c.Retrieval.IntentExpansion,
		Policy: llm.Policy{
			MaxAttempts:    c.Generation.MaxAttempts,
			InitialBackoff: c.Generation.InitialBackoff,
		},
		Logger:  log,
		Metrics: m,
	})
}
