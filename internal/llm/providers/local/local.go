// Package local provides an LLM provider for local OpenAI-compatible
// servers such as Ollama or vLLM. No API key is required.
package local

import (
	"github.com/orchd-dev/orchd/internal/llm"
	"github.com/orchd-dev/orchd/internal/llm/providers/openai"
)

const providerName = "local"

func init() {
	llm.RegisterProvider(llm.ProviderLocal, New)
}

// New creates a new local provider.
func New(cfg llm.Config) (llm.Provider, error) {
	return openai.NewCompatible(providerName, cfg), nil
}
