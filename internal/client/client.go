// Package client talks to a running recall server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/cache"
	"github.com/lazypower/recall/internal/engine"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	healthTimeout    = 2 * time.Second
	// Asks may sit through generation retries.
	httpTimeout = 65 * time.Second

	ownerHeader = "X-User-Id"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server: %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("server: %d: %s", e.Status, e.Message)
}

// Client talks to the recall server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to the
// RECALL_URL env var, then http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("RECALL_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.serverURL }

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Ask posts a question on behalf of req.OwnerID.
func (c *Client) Ask(ctx context.Context, req engine.AskRequest) (*engine.AnswerResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var res engine.AnswerResult
	if err := c.do(ctx, http.MethodPost, "/api/ask", req.OwnerID, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Search runs retrieval only.
func (c *Client) Search(ctx context.Context, req engine.SearchRequest) (*engine.SearchResult, error) {
	q := url.Values{"q": {req.Query}}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	var res engine.SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/search?"+q.Encode(), req.OwnerID, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CacheStats fetches stats for the owner's namespace base ("answers" or
// "search-terms").
func (c *Client) CacheStats(ctx context.Context, owner, base string) (*cache.Stats, error) {
	var st cache.Stats
	if err := c.do(ctx, http.MethodGet, "/api/cache/"+url.PathEscape(base)+"/stats", owner, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ClearCache clears the owner's namespace base and returns the number of
// entries removed.
func (c *Client) ClearCache(ctx context.Context, owner, base string) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/cache/"+url.PathEscape(base), owner, nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) do(ctx context.Context, method, path, owner string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(ownerHeader, owner)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var msg struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Error != "" {
			apiErr.Message, apiErr.Field = msg.Error, msg.Field
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
