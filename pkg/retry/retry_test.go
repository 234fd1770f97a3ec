package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastConfig(attempts int, retryable ...error) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		BackoffStrategy: &ConstantBackoff{Interval: time.Millisecond},
		RetryableErrors: retryable,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errFlaky
	}, fastConfig(3))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return permanent
	}, fastConfig(5, errFlaky))

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func() error { return nil }, fastConfig(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithDiscard(t *testing.T) {
	var discarded error
	err := RetryWithDiscard(context.Background(), func() error { return errFlaky }, fastConfig(2), func(err error) error {
		discarded = err
		return errors.New("discarded")
	})

	assert.EqualError(t, err, "discarded")
	assert.ErrorIs(t, discarded, errFlaky)
}

func TestBackoffStrategies(t *testing.T) {
	exp := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, exp.NextBackoff(1))
	assert.Equal(t, 400*time.Millisecond, exp.NextBackoff(3))
	assert.Equal(t, time.Second, exp.NextBackoff(10))

	lin := &LinearBackoff{InitialInterval: time.Second, Increment: time.Second, MaxInterval: 3 * time.Second}
	assert.Equal(t, time.Second, lin.NextBackoff(1))
	assert.Equal(t, 2*time.Second, lin.NextBackoff(2))
	assert.Equal(t, 3*time.Second, lin.NextBackoff(7))
}
