package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterFailures(t *testing.T) {
	mock := &MockClient{Err: ErrUnavailable}
	b := NewBreaker("test", mock, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.Complete(ctx, "q"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	_, err := b.Complete(ctx, "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("open breaker err = %v, want ErrUnavailable", err)
	}
	if mock.CallCount() != 2 {
		t.Errorf("calls = %d, open breaker should not reach the client", mock.CallCount())
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	mock := &MockClient{Response: &Response{Content: "fine"}}
	b := NewBreaker("test", mock, BreakerSettings{}, nil)

	resp, err := b.Complete(context.Background(), "q")
	if err != nil || resp.Content != "fine" {
		t.Errorf("resp = %v, err = %v", resp, err)
	}
	if b.State() != "closed" {
		t.Errorf("state = %s", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	mock := &MockClient{Err: context.Canceled}
	b := NewBreaker("test", mock, BreakerSettings{MaxFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		_, _ = b.Complete(context.Background(), "q")
	}
	if b.State() != "closed" {
		t.Errorf("state = %s, cancellations should not trip", b.State())
	}
}
