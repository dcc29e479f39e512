package backoff

import (
	"context"
	"errors"
	"strings"
)

// TransientError marks an error as retryable regardless of its message.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError marks an error as permanent; it is never retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// retryablePatterns are matched case-insensitively against error messages
// when no typed classification is present.
var retryablePatterns = []string{
	"rate limit",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"socket hang up",
	"429",
	"503",
	"network",
	"service unavailable",
	"temporarily unavailable",
}

// IsRetryable classifies an error as retryable. Typed wrappers win over
// message patterns; context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
