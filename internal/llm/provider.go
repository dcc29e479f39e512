package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ProviderType identifies a provider implementation.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderLocal     ProviderType = "local"
)

var (
	// ErrInvalidProvider is returned for unknown provider names.
	ErrInvalidProvider = errors.New("invalid provider")
	// ErrNoAPIKey is returned when a provider requires an API key and none
	// was configured.
	ErrNoAPIKey = errors.New("no API key configured")
	// ErrInvalidModelID is returned for model strings that are not
	// provider-qualified.
	ErrInvalidModelID = errors.New("model id must be in provider:model form")
)

// ParseProviderType parses a provider name, accepting common aliases.
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "anthropic":
		return ProviderAnthropic, nil
	case "openai":
		return ProviderOpenAI, nil
	case "local", "ollama", "vllm", "llama":
		return ProviderLocal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProvider, s)
	}
}

// ParseModelID splits a provider-qualified model identifier.
func ParseModelID(id string) (ProviderType, string, error) {
	provider, model, ok := strings.Cut(id, ":")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidModelID, id)
	}
	typ, err := ParseProviderType(provider)
	if err != nil {
		return "", "", err
	}
	return typ, model, nil
}

// DefaultAPIKeyEnvVar returns the conventional environment variable holding
// the provider's API key.
func DefaultAPIKeyEnvVar(typ ProviderType) string {
	switch typ {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// GetAPIKeyFromEnv reads the provider's API key from the environment.
func GetAPIKeyFromEnv(typ ProviderType) string {
	envVar := DefaultAPIKeyEnvVar(typ)
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultBaseURL returns the provider's default endpoint.
func DefaultBaseURL(typ ProviderType) string {
	switch typ {
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderLocal:
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}

// Config holds provider construction settings.
type Config struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultConfig returns the default provider configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         120 * time.Second,
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// ProviderFactory constructs a Provider from a Config.
type ProviderFactory func(Config) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[ProviderType]ProviderFactory)
)

// RegisterProvider registers a provider factory. Providers call this from
// their init function; import the providers package for its side effect.
func RegisterProvider(typ ProviderType, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typ] = factory
}

// NewProvider creates a provider of the given type. The config is completed
// with defaults: base URL and API key from the environment when unset.
func NewProvider(typ ProviderType, cfg Config) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[typ]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrInvalidProvider, typ)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL(typ)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = GetAPIKeyFromEnv(typ)
	}
	return factory(cfg)
}

// ProviderForModel resolves a provider-qualified model id and returns the
// provider plus the bare model name.
func ProviderForModel(id string, cfg Config) (Provider, string, error) {
	typ, model, err := ParseModelID(id)
	if err != nil {
		return nil, "", err
	}
	provider, err := NewProvider(typ, cfg)
	if err != nil {
		return nil, "", err
	}
	return provider, model, nil
}
