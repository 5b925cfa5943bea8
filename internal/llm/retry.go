package llm

import (
	"context"
	"errors"
	"time"
)

// Policy bounds retries of overload and throttling failures.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	// OnRetry, when set, is called before each backoff.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy is three attempts starting at one second, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialBackoff: time.Second}
}

// CompleteWithRetry calls c.Complete, retrying errors that wrap ErrUnavailable
// or ErrRateLimited with exponential backoff. Other errors return at once.
// There is no wait after the final attempt. If ctx ends during a backoff the
// last provider error is returned joined with ctx.Err().
func CompleteWithRetry(ctx context.Context, c Client, prompt string, p Policy) (*Response, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	wait := p.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		resp, err := c.Complete(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		if !Retryable(err) {
			return nil, err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
	return nil, lastErr
}
