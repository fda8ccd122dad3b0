package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestOpensAfterThresholdAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := New("test",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithClock(func() time.Time { return now }),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.True(t, cb.IsClosed())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.True(t, cb.IsOpen())

	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.True(t, cb.IsClosed())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
}

func TestIsFailureFiltersErrors(t *testing.T) {
	benign := errors.New("miss")
	cb := RankingCacheBreaker(func(err error) bool { return !errors.Is(err, benign) }, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return benign })
	}
	assert.True(t, cb.IsClosed())
}

func TestCanceledCallerIsNotAFailure(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.True(t, cb.IsClosed())
}

func TestExecuteWithFallback(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Hour))
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)

	called := false
	err := cb.ExecuteWithFallback(ctx, ok, func(err error) error {
		called = true
		assert.ErrorIs(t, err, ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	// Errors from fn itself bypass the fallback.
	called = false
	cb = New("test", WithFailureThreshold(5))
	err = cb.ExecuteWithFallback(ctx, fail, func(error) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, errDown)
	assert.False(t, called)
}
