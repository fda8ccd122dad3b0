package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/pkg/circuitbreaker"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("UCONNECT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("UCONNECT_TEST_REDIS_ADDR not set")
	}
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "uconnect-test:" + t.Name() + ":"

	c, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Delete(context.Background(), keyRankingGeneration)
		_ = c.Close()
	})
	return c
}

func sampleSnapshot() *leaderboard.Snapshot {
	now := time.Now().UTC().Truncate(time.Second)
	return &leaderboard.Snapshot{
		Window:       7 * 24 * time.Hour,
		Limit:        10,
		Since:        now.Add(-7 * 24 * time.Hour),
		Until:        now,
		ComputedAt:   now,
		Participants: 2,
		Entries: []leaderboard.Standing{
			{Position: 1, UserID: "2", DisplayName: "Luis", XP: 80},
			{Position: 2, UserID: "1", DisplayName: "Ana", XP: 50},
		},
	}
}

func TestRankingCacheRoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	rc := NewRankingCache(newTestCache(t), time.Minute, nil, nil)
	snap := sampleSnapshot()

	gen, err := rc.Generation(ctx)
	require.NoError(t, err)

	_, err = rc.Get(ctx, gen, snap.Key())
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)

	require.NoError(t, rc.Put(ctx, gen, snap))
	got, err := rc.Get(ctx, gen, snap.Key())
	require.NoError(t, err)
	assert.Equal(t, snap.Entries, got.Entries)
	assert.True(t, snap.Until.Equal(got.Until))

	require.NoError(t, rc.Invalidate(ctx))
	next, err := rc.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)

	_, err = rc.Get(ctx, next, snap.Key())
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
}

func TestRankingCacheBreakerOpensOnTransportErrors(t *testing.T) {
	// Nothing listens on this port; every call fails fast.
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	breaker := circuitbreaker.RankingCacheBreaker(IsBreakerFailure, nil)
	rc := NewRankingCache(NewCacheFromClient(client, "t:"), time.Minute, breaker, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rc.Generation(ctx)
		require.Error(t, err)
	}
	_, err := rc.Generation(ctx)
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	assert.True(t, breaker.IsOpen())
}

func TestRankingCacheRemembersDroppedInvalidation(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithTimeout(time.Hour))
	rc := NewRankingCache(NewCacheFromClient(client, "t:"), time.Minute, breaker, nil)
	ctx := context.Background()

	require.Error(t, rc.Invalidate(ctx))
	assert.True(t, rc.stale.Load())

	err := rc.Invalidate(ctx)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.True(t, rc.stale.Load())

	// While the invalidation is pending no generation is handed out.
	_, err = rc.Generation(ctx)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.True(t, rc.stale.Load())
}

func TestRankingCacheReplaysPendingInvalidation(t *testing.T) {
	ctx := context.Background()
	rc := NewRankingCache(newTestCache(t), time.Minute, nil, nil)

	gen, err := rc.Generation(ctx)
	require.NoError(t, err)

	rc.stale.Store(true)
	next, err := rc.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	assert.False(t, rc.stale.Load())
}

func TestIsBreakerFailure(t *testing.T) {
	assert.False(t, IsBreakerFailure(ErrCacheMiss))
	assert.False(t, IsBreakerFailure(leaderboard.ErrCacheMiss))
	assert.True(t, IsBreakerFailure(errors.New("dial tcp: connection refused")))
}
