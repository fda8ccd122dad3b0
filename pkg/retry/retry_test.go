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

func fast(opts ...Option) []Option {
	return append([]Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}, opts...)
}

func TestRetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := New(fast(WithMaxAttempts(5))...).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPlainErrorsAreNotRetriedByDefault(t *testing.T) {
	calls := 0
	err := New(fast()...).Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestPermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := New(fast(WithRetryIf(func(error) bool { return true }))...).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestExhaustedAttemptsUnwrap(t *testing.T) {
	var retries []int
	err := New(fast(WithMaxAttempts(3), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	}))...).Do(context.Background(), func(context.Context) error {
		return Retryable(errFlaky)
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestCanceledContextReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := StartupRetrier(func(int, error, time.Duration) { cancel() }).Do(ctx, func(context.Context) error {
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
}

func TestDelayIsCapped(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(3*time.Second), WithMultiplier(10), WithJitter(0))
	assert.Equal(t, time.Second, r.calculateDelay(1))
	assert.Equal(t, 3*time.Second, r.calculateDelay(4))
}
