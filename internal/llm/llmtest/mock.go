// Package llmtest provides a deterministic in-memory Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/orchd-dev/orchd/internal/llm"
)

var _ llm.Provider = (*Mock)(nil)

// Mock is a scriptable Provider. Responses are returned in order; when the
// script is exhausted the last entry repeats. A nil script echoes prompts.
type Mock struct {
	mu        sync.Mutex
	script    []Reply
	callIndex int
	requests  []*llm.Request
}

// Reply is one scripted response.
type Reply struct {
	Content string
	Err     error
}

// New creates a Mock with the given scripted replies.
func New(script ...Reply) *Mock {
	return &Mock{script: script}
}

// Name returns the provider name.
func (m *Mock) Name() string { return "mock" }

// Generate returns the next scripted reply and records the request.
func (m *Mock) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.script) == 0 {
		var content string
		for _, msg := range req.Messages {
			content += msg.Content
		}
		return &llm.Response{Content: content, Model: req.Model}, nil
	}

	idx := m.callIndex
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.callIndex++

	reply := m.script[idx]
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llm.Response{Content: reply.Content, Model: req.Model}, nil
}

// Calls returns the number of Generate invocations.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIndex
}

// Requests returns all recorded requests.
func (m *Mock) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}
