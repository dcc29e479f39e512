package llm

import (
	"fmt"

	"github.com/orchd-dev/orchd/internal/backoff"
)

// APIError is returned for non-2xx provider responses.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// NewAPIError builds an APIError, classified so the retry fabric treats
// rate limiting and server errors as transient.
func NewAPIError(provider string, statusCode int, body string) error {
	err := &APIError{Provider: provider, StatusCode: statusCode, Body: body}
	if statusCode == 429 || (statusCode >= 500 && statusCode <= 504) {
		return backoff.NewTransientError(err)
	}
	return backoff.NewFatalError(err)
}

// WrapError annotates a provider-internal error with the provider name.
func WrapError(provider string, err error) error {
	return fmt.Errorf("%s: %w", provider, err)
}
