package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for the LLM Client interface.
//
// When Script is non-empty, each call consumes the next step; once the script
// runs out the final step repeats. Otherwise every call returns Response, Err.
type MockClient struct {
	Response *Response
	Err      error
	Script   []MockStep

	mu    sync.Mutex
	Calls []string // records prompts sent
}

// MockStep is one scripted reply.
type MockStep struct {
	Response *Response
	Err      error
}

// Complete records the call and returns the next mocked reply.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, prompt)
	if len(m.Script) == 0 {
		return m.Response, m.Err
	}
	i := len(m.Calls) - 1
	if i >= len(m.Script) {
		i = len(m.Script) - 1
	}
	step := m.Script[i]
	return step.Response, step.Err
}

// CallCount returns the number of Complete calls so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
