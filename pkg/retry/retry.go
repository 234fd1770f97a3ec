package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// ErrAttemptsExhausted wraps the last error once every attempt has failed
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// RetryableFunc defines a function that can be retried
type RetryableFunc func() error

// RetryConfig holds the configuration for retrying operations
type RetryConfig struct {
	MaxAttempts     int
	BackoffStrategy BackoffStrategy
	Logger          logger.Logger
	// RetryableErrors limits retries to errors matching one of these;
	// empty means every error is retried.
	RetryableErrors []error
}

func (c *RetryConfig) normalize() *RetryConfig {
	cfg := *c
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffStrategy == nil {
		cfg.BackoffStrategy = NewDefaultExponentialBackoff()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &cfg
}

// Retry retries the given function according to the provided configuration
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig) error {
	cfg := config.normalize()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled by context: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		if !isRetryable(err, cfg.RetryableErrors) {
			cfg.Logger.Warn("Non-retryable error encountered, giving up",
				"error", err,
				"attempt", attempt)
			return err
		}

		backoff := cfg.BackoffStrategy.NextBackoff(attempt)

		cfg.Logger.Info("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", cfg.MaxAttempts,
			"backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, cfg.MaxAttempts, lastErr)
}

func isRetryable(err error, retryableErrors []error) bool {
	if len(retryableErrors) == 0 {
		return true
	}

	for _, retryableErr := range retryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	return false
}

// RetryWithDiscard retries a function and applies the discard policy if all retries fail
func RetryWithDiscard(ctx context.Context, fn RetryableFunc, config *RetryConfig, discardFn func(error) error) error {
	err := Retry(ctx, fn, config)

	if err != nil {
		config.normalize().Logger.Error("All retries failed, applying discard policy",
			"error", err,
			"maxAttempts", config.MaxAttempts)
		return discardFn(err)
	}
	return nil
}
