package backoff

import (
	"context"
	"time"
)

// Profile configures the retry executor. The zero value is not usable; use
// DefaultProfile as a starting point.
type Profile struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// BackoffFactor multiplies the delay after each retry.
	BackoffFactor float64
	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration
	// JitterFactor in [0,1] spreads delays multiplicatively.
	JitterFactor float64
	// TemperatureIncrement is added to the sampling temperature on each
	// retry, as a diversity hint for model-call retries.
	TemperatureIncrement float64
	// MaxTemperature caps the escalated temperature.
	MaxTemperature float64
}

// DefaultProfile returns the default retry profile: 3 retries, 1s initial
// delay, factor 2, 30s cap, no jitter, no temperature escalation.
func DefaultProfile() Profile {
	return Profile{
		MaxRetries:      3,
		InitialInterval: time.Second,
		BackoffFactor:   2.0,
		MaxInterval:     30 * time.Second,
	}
}

func (p Profile) policy() *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		InitialInterval: p.InitialInterval,
		BackoffFactor:   p.BackoffFactor,
		MaxInterval:     p.MaxInterval,
		MaxRetries:      p.MaxRetries,
		JitterFactor:    p.JitterFactor,
	}
}

// Attempt describes one execution attempt, passed to the operation.
type Attempt struct {
	// Number of the attempt, starting at 1.
	Number int
	// Temperature is the escalated sampling temperature for this attempt.
	Temperature float64
}

// RetryEvent records one scheduled retry.
type RetryEvent struct {
	Attempt     int
	Err         error
	Delay       time.Duration
	Temperature float64
}

// Result carries the outcome of Execute.
type Result[T any] struct {
	Value         T
	TotalAttempts int
	History       []RetryEvent
}

// ExecuteOptions configure a single Execute call.
type ExecuteOptions struct {
	// BaseTemperature is the starting temperature for the first attempt.
	BaseTemperature float64
	// OnRetry fires before each delay.
	OnRetry func(RetryEvent)
	// IsRetryable overrides the default classification.
	IsRetryable IsRetriableFunc
}

// ExecuteOption is a functional option for Execute.
type ExecuteOption func(*ExecuteOptions)

// WithBaseTemperature sets the starting temperature.
func WithBaseTemperature(t float64) ExecuteOption {
	return func(o *ExecuteOptions) { o.BaseTemperature = t }
}

// WithOnRetry sets a callback invoked before each retry delay.
func WithOnRetry(fn func(RetryEvent)) ExecuteOption {
	return func(o *ExecuteOptions) { o.OnRetry = fn }
}

// WithIsRetryable overrides the retryable-error classification.
func WithIsRetryable(fn IsRetriableFunc) ExecuteOption {
	return func(o *ExecuteOptions) { o.IsRetryable = fn }
}

// Execute runs op under the profile's retry policy. Each attempt receives
// its number and the escalated temperature. Non-retryable errors fail
// immediately; context cancellation between attempts returns ErrAborted.
func Execute[T any](ctx context.Context, profile Profile, op func(context.Context, Attempt) (T, error), opts ...ExecuteOption) (*Result[T], error) {
	var options ExecuteOptions
	for _, opt := range opts {
		opt(&options)
	}
	isRetryable := options.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	retrier := NewRetrier(profile.policy())
	result := &Result[T]{}
	temperature := options.BaseTemperature

	for {
		if ctx.Err() != nil {
			return result, ErrAborted
		}

		result.TotalAttempts++
		value, err := op(ctx, Attempt{Number: result.TotalAttempts, Temperature: temperature})
		if err == nil {
			result.Value = value
			return result, nil
		}

		if !isRetryable(err) {
			return result, err
		}

		delay, retryErr := retrier.Next(err)
		if retryErr != nil {
			return result, err
		}

		temperature = escalate(temperature, profile)
		event := RetryEvent{
			Attempt:     result.TotalAttempts,
			Err:         err,
			Delay:       delay,
			Temperature: temperature,
		}
		result.History = append(result.History, event)
		if options.OnRetry != nil {
			options.OnRetry(event)
		}

		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return result, ErrAborted
		}
	}
}

func escalate(current float64, profile Profile) float64 {
	if profile.TemperatureIncrement <= 0 {
		return current
	}
	next := current + profile.TemperatureIncrement
	if profile.MaxTemperature > 0 && next > profile.MaxTemperature {
		next = profile.MaxTemperature
	}
	return next
}
