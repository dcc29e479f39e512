// Package llm defines the provider abstraction the daemon uses to call
// large-language models. The core consumes a single capability: generate
// text from a prompt. Providers register themselves by type; model
// identifiers are provider-qualified strings in the form "provider:model".
package llm

import "context"

// Role of a message in a generation request.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one prompt message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a text generation request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Response is the provider's generation result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Provider generates text. Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider name, e.g. "anthropic".
	Name() string
	// Generate sends the request and returns the complete response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}
