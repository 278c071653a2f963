package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config holds retry configuration
type Config struct {
	MaxAttempts  int           // Total attempts including the first one
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any single delay
	Multiplier   float64       // Exponential backoff multiplier (typically 2.0)
	Jitter       bool          // Spread delays by up to ±25%

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do runs fn until it succeeds, the error is not retryable, attempts run out
// or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("retry cancelled: %w (last error: %v)", err, lastErr)
			}
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}

		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(cfg, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry cancelled during wait: %w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

// Backoff returns the delay after the given zero-based attempt.
func Backoff(cfg Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter && delay > 0 {
		spread := delay / 4
		delay = delay - spread + rand.Float64()*2*spread
	}

	return time.Duration(delay)
}
