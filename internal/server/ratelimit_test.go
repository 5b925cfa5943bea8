package server

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func strconvI(id int64) string { return strconv.FormatInt(id, 10) }

func TestRateLimiterAllow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewRateLimiter(rdb, 2, nil)
	ctx := context.Background()

	for i, wantRemaining := range []int{1, 0} {
		d, err := l.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !d.Allowed || d.Remaining != wantRemaining {
			t.Errorf("Allow #%d = %+v, want allowed with %d remaining", i, d, wantRemaining)
		}
	}

	d, err := l.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Error("third request in window allowed")
	}
	if d.Reset <= 0 || d.Reset > time.Minute {
		t.Errorf("reset = %v, want within a minute", d.Reset)
	}

	if d, _ := l.Allow(ctx, "bob"); !d.Allowed {
		t.Error("owners share a window")
	}

	mr.FastForward(time.Minute + time.Second)
	if d, _ := l.Allow(ctx, "alice"); !d.Allowed {
		t.Error("window did not reset")
	}
}

func TestNewRateLimiterDisabled(t *testing.T) {
	if NewRateLimiter(nil, 60, nil) != nil {
		t.Error("limiter without redis should be nil")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	if NewRateLimiter(rdb, 0, nil) != nil {
		t.Error("limit 0 should disable the limiter")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	f := testServer(t, 2)

	for i := 0; i < 2; i++ {
		w := f.do(t, "GET", "/api/cache/answers/stats", "alice", "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("X-RateLimit-Limit = %q, want 2", got)
		}
	}

	w := f.do(t, "GET", "/api/cache/answers/stats", "alice", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" || w.Header().Get("Retry-After") == "" {
		t.Errorf("headers = %v", w.Header())
	}

	if w := f.do(t, "GET", "/api/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("health is rate limited: %d", w.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	f := testServer(t, 1)
	f.mr.Close()

	for i := 0; i < 3; i++ {
		w := f.do(t, "GET", "/api/cache/answers/stats", "alice", "")
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d rejected with redis down", i)
		}
	}
}
