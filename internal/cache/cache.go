// Package cache implements a two-tier semantic cache for question answering.
//
// Entries are keyed by the normalized keyword set of the question that
// produced them. A lookup finds candidates through per-token inverted
// indexes in Redis, scores them by Jaccard similarity and returns the best
// candidate at or above the similarity threshold. An in-process LRU sits in
// front of Redis for entry bodies.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/metrics"
)

const (
	keyPrefix      = "semantic"
	scanBatch      = 100
	cleanupTimeout = 5 * time.Second
)

// Config controls cache behavior.
type Config struct {
	Enabled       bool
	Threshold     float64
	TTL           time.Duration
	L1Size        int
	MaxCandidates int
}

// DefaultConfig returns the stock cache settings.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Threshold:     0.70,
		TTL:           time.Hour,
		L1Size:        1000,
		MaxCandidates: 500,
	}
}

// Entry is the JSON document stored under an entry key.
type Entry struct {
	OriginalQuestion string    `json:"original_question"`
	Keywords         []string  `json:"keywords"`
	Value            string    `json:"value"`
	CreatedAt        time.Time `json:"created_at"`
	RelevanceScore   float64   `json:"relevance_score"`
}

// Result is the outcome of a lookup.
type Result struct {
	Hit        bool
	Value      string
	Similarity float64
	Entry      *Entry
}

// Stats describes one namespace.
type Stats struct {
	Namespace  string  `json:"namespace"`
	Enabled    bool    `json:"enabled"`
	EntryCount int64   `json:"entry_count"`
	L1Size     int     `json:"l1_size"`
	L1HitRate  float64 `json:"l1_hit_rate"`
	Threshold  float64 `json:"threshold"`
}

// Cache is safe for concurrent use.
type Cache struct {
	rdb     redis.UniversalClient
	cfg     Config
	l1      *expirable.LRU[string, Entry]
	log     *zap.Logger
	metrics *metrics.Collector

	l1Hits   atomic.Int64
	l1Misses atomic.Int64

	wg sync.WaitGroup
}

// New creates a cache backed by rdb. A nil rdb or cfg.Enabled=false yields a
// disabled cache whose lookups always miss and whose writes are no-ops.
func New(rdb redis.UniversalClient, cfg Config, log *zap.Logger) *Cache {
	def := DefaultConfig()
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = def.Threshold
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.L1Size <= 0 {
		cfg.L1Size = def.L1Size
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		rdb: rdb,
		cfg: cfg,
		l1:  expirable.NewLRU[string, Entry](cfg.L1Size, nil, cfg.TTL),
		log: log.Named("cache"),
	}
}

// SetMetrics attaches a metrics collector.
func (c *Cache) SetMetrics(m *metrics.Collector) { c.metrics = m }

// Enabled reports whether the cache talks to a backend at all.
func (c *Cache) Enabled() bool { return c.cfg.Enabled && c.rdb != nil }

// Threshold returns the similarity threshold for a hit.
func (c *Cache) Threshold() float64 { return c.cfg.Threshold }

// Close waits for background index cleanups to finish. It does not close the
// Redis client, which the caller owns.
func (c *Cache) Close() error {
	c.wg.Wait()
	return nil
}

func entryPrefix(ns string) string { return keyPrefix + ":entry:" + ns + ":" }
func indexPrefix(ns string) string { return keyPrefix + ":inverted:" + ns + ":" }

func entryKey(ns string, tokens []string) string {
	return entryPrefix(ns) + strings.Join(tokens, "_")
}

func postingKey(ns, token string) string { return indexPrefix(ns) + token }

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }

func (c *Cache) warn(op string, err error, fields ...zap.Field) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.log.Warn("cache backend error", append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...)
}
