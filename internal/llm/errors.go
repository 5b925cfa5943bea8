package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable means the provider is overloaded or down. Retryable.
	ErrUnavailable = errors.New("llm provider unavailable")
	// ErrRateLimited means the provider throttled the request. Retryable.
	ErrRateLimited = errors.New("llm provider rate limited")
)

// StatusError is a non-200 reply from an HTTP provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api status %d: %s", e.Provider, e.Code, e.Body)
}

// Unwrap maps overload and throttling statuses onto the retryable sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, 529:
		return ErrUnavailable
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

func statusError(provider string, code int, body []byte) error {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &StatusError{Provider: provider, Code: code, Body: string(body)}
}
