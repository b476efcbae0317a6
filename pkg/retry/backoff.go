// Package retry provides exponential backoff retry logic with jitter.
//
// # Usage
//
//	cfg := retry.BackoffConfig{
//		InitialInterval: 500 * time.Millisecond,
//		MaxInterval:     5 * time.Second,
//		Multiplier:      2.0,
//		Jitter:          true,
//		MaxRetries:      3,
//	}
//
//	err := retry.WithRetryAdvanced(ctx, func() error {
//		conn, err = managesieve.Dial(ctx, host, port, opts)
//		return err
//	}, cfg)
//
// # Jitter
//
// With jitter enabled the actual delay is drawn from [delay/2, delay).
//
// Return Stop(err) from the retried function to give up immediately; the
// wrapped error is returned unchanged.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/migadu/sieveconn/logger"
)

type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          bool
	MaxRetries      int
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		MaxRetries:      3,
	}
}

// ExponentialBackoff returns the delay to wait before the given attempt.
func ExponentialBackoff(config BackoffConfig) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return config.InitialInterval
		}

		interval := float64(config.InitialInterval) * math.Pow(config.Multiplier, float64(attempt-1))
		if config.MaxInterval > 0 && interval > float64(config.MaxInterval) {
			interval = float64(config.MaxInterval)
		}

		duration := time.Duration(interval)
		if config.Jitter && duration >= 2 {
			jitter := time.Duration(rand.Int63n(int64(duration / 2)))
			duration = duration/2 + jitter
		}

		return duration
	}
}

type RetryableFunc func() error

// WithRetry calls fn until it succeeds, MaxRetries retries have been made or
// ctx is done.
func WithRetry(ctx context.Context, fn RetryableFunc, config BackoffConfig) error {
	return run(ctx, fn, config, false)
}

// WithRetryAdvanced is like WithRetry but halts as soon as fn returns a StopError.
func WithRetryAdvanced(ctx context.Context, fn RetryableFunc, config BackoffConfig) error {
	return run(ctx, fn, config, true)
}

func run(ctx context.Context, fn RetryableFunc, config BackoffConfig, honorStop bool) error {
	backoff := ExponentialBackoff(config)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		attempts = attempt + 1
		if attempt > 0 {
			timer := time.NewTimer(backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled by context: %w", ctx.Err())
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if honorStop {
			var stopErr StopError
			if errors.As(err, &stopErr) {
				logger.Debug("Retry stopped", "attempt", attempts, "error", stopErr.Err)
				return stopErr.Err
			}
		}
		if attempt < config.MaxRetries {
			logger.Debug("Retrying after error", "attempt", attempts, "max_attempts", config.MaxRetries+1, "error", err)
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// StopError wraps an error to indicate that retries should stop immediately
type StopError struct {
	Err error
}

func (s StopError) Error() string {
	return s.Err.Error()
}

func (s StopError) Unwrap() error {
	return s.Err
}

// Stop wraps an error to indicate that retries should stop immediately
func Stop(err error) error {
	return StopError{Err: err}
}

// IsStopError checks if an error is a StopError
func IsStopError(err error) bool {
	var stopErr StopError
	return errors.As(err, &stopErr)
}
