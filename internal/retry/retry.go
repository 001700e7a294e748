// Package retry provides the orchestrator's retry policy for transient
// downstream failures: exponential backoff min(500ms*2^n, 8s) plus additive
// jitter in [0, 1s), with permanent-error marking to stop early.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration
	// MaxDelay is the maximum backoff (jitter excluded).
	MaxDelay time.Duration
	// Factor is the multiplier for exponential backoff.
	Factor float64
	// JitterMax is the upper bound of the additive jitter (0 disables).
	JitterMax time.Duration
}

// DefaultConfig returns the orchestrator's transient-failure policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Factor:       2.0,
		JitterMax:    time.Second,
	}
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent retrying.
	Duration time.Duration
}

// Do executes the operation with retries.
func Do(ctx context.Context, config Config, op func() error) Result {
	return DoWithHealth(ctx, config, nil, op)
}

// DoWithHealth executes op with retries. Before each retry (not the first
// attempt), healthy is consulted; if it reports false the retry is skipped
// and the last error is returned immediately. This is how the orchestrator
// avoids hammering a downstream that a health ping says is down.
func DoWithHealth(ctx context.Context, config Config, healthy func(context.Context) bool, op func() error) Result {
	start := time.Now()
	result := Result{}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 8 * time.Second
	}
	if config.Factor <= 0 {
		config.Factor = 2.0
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		}

		err := op()
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err

		if IsPermanent(err) || attempt >= config.MaxAttempts {
			break
		}

		sleep := Backoff(attempt, config.InitialDelay, config.MaxDelay, config.Factor)
		if config.JitterMax > 0 {
			sleep += time.Duration(rand.Int63n(int64(config.JitterMax))) // #nosec G404 -- jitter does not require cryptographic randomness
		}

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-time.After(sleep):
		}

		if healthy != nil && !healthy(ctx) {
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue executes an operation that returns a value with retries.
func DoWithValue[T any](ctx context.Context, config Config, op func() (T, error)) (T, Result) {
	var value T
	result := Do(ctx, config, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, result
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (shouldn't retry).
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Backoff returns min(initial * factor^(attempt-1), max).
func Backoff(attempt int, initial, max time.Duration, factor float64) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := float64(initial) * math.Pow(factor, float64(attempt-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}
