// Package openai provides an LLM provider implementation for the OpenAI
// chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orchd-dev/orchd/internal/llm"
)

const (
	providerName    = "openai"
	completionsPath = "/chat/completions"
)

func init() {
	llm.RegisterProvider(llm.ProviderOpenAI, New)
}

var _ llm.Provider = (*Provider)(nil)

type Provider struct {
	name       string
	config     llm.Config
	httpClient *llm.HTTPClient
}

// New creates a new OpenAI provider.
func New(cfg llm.Config) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrNoAPIKey
	}
	return NewCompatible(providerName, cfg), nil
}

// NewCompatible creates a provider speaking the OpenAI-compatible chat
// completions protocol under a different name. The local provider reuses it.
func NewCompatible(name string, cfg llm.Config) llm.Provider {
	return &Provider{
		name:       name,
		config:     cfg,
		httpClient: llm.NewHTTPClient(cfg),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// Generate sends the request and returns the complete response.
func (p *Provider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body, err := json.Marshal(completionsRequest{
		Model:       req.Model,
		Messages:    toChatMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, llm.WrapError(p.name, fmt.Errorf("failed to encode request: %w", err))
	}

	headers := map[string]string{}
	if p.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.config.APIKey
	}

	respBody, err := p.httpClient.Post(ctx, p.config.BaseURL+completionsPath, body, headers)
	if err != nil {
		return nil, err
	}
	defer func() { _ = respBody.Close() }()

	var resp completionsResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, llm.WrapError(p.name, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, llm.WrapError(p.name, fmt.Errorf("response contained no choices"))
	}

	return &llm.Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type completionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func toChatMessages(messages []llm.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
