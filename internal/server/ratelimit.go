package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitPrefix = "rate-limit:"

// RateLimiter enforces a fixed per-owner request window in Redis.
// A nil *RateLimiter allows everything.
type RateLimiter struct {
	rdb    redis.UniversalClient
	limit  int
	window time.Duration
	log    *zap.Logger
}

// NewRateLimiter returns nil when rdb is nil or limit is not positive.
func NewRateLimiter(rdb redis.UniversalClient, limit int, log *zap.Logger) *RateLimiter {
	if rdb == nil || limit <= 0 {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: time.Minute, log: log.Named("ratelimit")}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// Allow counts one request for owner against the current window.
func (l *RateLimiter) Allow(ctx context.Context, owner string) (Decision, error) {
	key := rateLimitPrefix + owner
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr %s: %w", key, err)
	}
	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ttl %s: %w", key, err)
	}
	// First hit of a window, or a counter whose EXPIRE never landed.
	if n == 1 || ttl < 0 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire %s: %w", key, err)
		}
		ttl = l.window
	}

	return Decision{
		Allowed:   n <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(0, l.limit-int(n)),
		Reset:     ttl,
	}, nil
}

// Middleware rejects over-limit owners with 429. Backend errors let the
// request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r.Context())
		d, err := l.Allow(r.Context(), owner)
		if err != nil {
			l.log.Warn("rate limiter unavailable, allowing request", zap.String("owner", owner), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		reset := strconv.Itoa(int(math.Ceil(d.Reset.Seconds())))
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", reset)
		if !d.Allowed {
			h.Set("Retry-After", reset)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
