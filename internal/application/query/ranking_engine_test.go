package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/memory"
)

const week = 7 * 24 * time.Hour

func newEngine(store ledger.Store, cache leaderboard.Cache, rec RankingRecorder) *RankingEngine {
	return NewRankingEngine(RankingEngineConfig{
		Store:   store,
		Cache:   cache,
		Clock:   fixedClock,
		Metrics: rec,
	})
}

func ids(standings []leaderboard.Standing) []string {
	out := make([]string, 0, len(standings))
	for _, s := range standings {
		out = append(out, s.UserID)
	}
	return out
}

func TestComputeRankingOrdersBySumInWindow(t *testing.T) {
	s := newSeed(t).
		user("alice", "Alice").
		user("bob", "Bob").
		user("carol", "Carol").
		record("alice", 100, time.Hour).
		record("alice", 50, 2*time.Hour).
		record("bob", 200, 3*time.Hour).
		record("carol", 120, 24*time.Hour).
		// outside the window, must not count
		record("carol", 1000, week+time.Minute)

	engine := newEngine(s.store, nil, nil)

	got, err := engine.ComputeRanking(context.Background(), week, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"bob", "alice", "carol"}, ids(got))
	assert.Equal(t, int64(200), got[0].XP)
	assert.Equal(t, int64(150), got[1].XP)
	assert.Equal(t, int64(120), got[2].XP)
	assert.Equal(t, "Alice", got[1].DisplayName)
	for i, st := range got {
		assert.Equal(t, shared.Rank(i+1), st.Position)
	}
}

func TestComputeRankingWindowBoundaries(t *testing.T) {
	s := newSeed(t).
		user("a", "A").
		user("b", "B").
		record("a", 10, week). // exactly at since: excluded
		record("b", 10, 0)     // exactly at now: included

	got, err := newEngine(s.store, nil, nil).ComputeRanking(context.Background(), week, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestComputeRankingTieBreak(t *testing.T) {
	s := newSeed(t).
		user("10", "Ten").
		user("2", "Two").
		user("bravo", "Bravo").
		user("alpha", "Alpha").
		record("10", 50, time.Hour).
		record("2", 50, time.Hour).
		record("bravo", 50, time.Hour).
		record("alpha", 50, time.Hour)

	got, err := newEngine(s.store, nil, nil).ComputeRanking(context.Background(), week, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "10", "alpha", "bravo"}, ids(got))
}

func TestComputeRankingIncludesZeroXPParticipants(t *testing.T) {
	s := newSeed(t).
		user("a", "A").
		user("b", "B").
		user("idle", "Idle").
		record("a", 30, time.Hour).
		record("b", 0, time.Hour)

	snap, err := newEngine(s.store, nil, nil).Snapshot(context.Background(), week, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(snap.Entries))
	assert.Equal(t, int64(0), snap.Entries[1].XP)
	assert.Equal(t, 2, snap.Participants)
	assert.Equal(t, baseTime.Add(-week), snap.Since)
	assert.Equal(t, baseTime, snap.Until)
}

func TestComputeRankingEmptyLedger(t *testing.T) {
	s := newSeed(t).user("a", "A")

	got, err := newEngine(s.store, nil, nil).ComputeRanking(context.Background(), week, 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComputeRankingLimit(t *testing.T) {
	s := newSeed(t)
	for i, id := range []string{"1", "2", "3", "4", "5"} {
		s.user(id, "U"+id).record(id, int64(100-i), time.Hour)
	}
	engine := NewRankingEngine(RankingEngineConfig{
		Store:        s.store,
		Clock:        fixedClock,
		DefaultLimit: 2,
		MaxLimit:     3,
	})
	ctx := context.Background()

	got, err := engine.ComputeRanking(ctx, week, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(got))

	got, err = engine.ComputeRanking(ctx, week, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2, "zero limit means the default")

	got, err = engine.ComputeRanking(ctx, week, 50)
	require.NoError(t, err)
	assert.Len(t, got, 3, "limit is clamped")

	_, err = engine.ComputeRanking(ctx, week, -1)
	assert.ErrorIs(t, err, shared.ErrInvalidLimit)

	_, err = engine.ComputeRanking(ctx, -time.Hour, 5)
	assert.ErrorIs(t, err, shared.ErrInvalidWindow)
}

func TestNormalizeDefaults(t *testing.T) {
	engine := NewRankingEngine(RankingEngineConfig{Store: memory.New()})

	window, limit, err := engine.Normalize(0, 0)
	require.NoError(t, err)
	assert.Equal(t, week, window)
	assert.Equal(t, leaderboard.DefaultLimit, limit)

	_, limit, err = engine.Normalize(time.Hour, DefaultMaxLimit+1)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxLimit, limit)
}

func TestComputeRankingMissingUserGetsSentinel(t *testing.T) {
	s := newSeed(t).
		user("a", "A").
		user("ghost", "Ghost").
		record("a", 10, time.Hour).
		record("ghost", 20, time.Hour)
	rec := newRecorderStub()

	got, err := newEngine(hide(s.store, "ghost"), nil, rec).ComputeRanking(context.Background(), week, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ghost", got[0].UserID)
	assert.Equal(t, leaderboard.UnknownUserName, got[0].DisplayName)
	assert.Equal(t, 1, rec.inconsistencies[InconsistencyMissingUser])
}

func TestComputeRankingUsesCacheUntilInvalidated(t *testing.T) {
	s := newSeed(t).
		user("a", "A").
		user("b", "B").
		record("a", 10, time.Hour)
	cache := memory.NewRankingCache(time.Minute)
	rec := newRecorderStub()
	engine := newEngine(s.store, cache, rec)
	ctx := context.Background()

	first, err := engine.ComputeRanking(ctx, week, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(first))

	// Written behind the cache's back: the cached answer is still served.
	s.record("b", 50, time.Hour)
	second, err := engine.ComputeRanking(ctx, week, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(second))
	assert.Equal(t, 1, rec.sources[SourceCache])

	require.NoError(t, cache.Invalidate(ctx))
	third, err := engine.ComputeRanking(ctx, week, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(third))
	assert.Equal(t, 2, rec.computes)
}

func TestComputeRankingReturnsCopies(t *testing.T) {
	s := newSeed(t).user("a", "A").record("a", 10, time.Hour)
	engine := newEngine(s.store, memory.NewRankingCache(time.Minute), nil)
	ctx := context.Background()

	got, err := engine.ComputeRanking(ctx, week, 10)
	require.NoError(t, err)
	got[0].XP = 999

	again, err := engine.ComputeRanking(ctx, week, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), again[0].XP)
}

func TestComputeRankingConcurrentReaders(t *testing.T) {
	s := newSeed(t)
	for _, id := range []string{"1", "2", "3"} {
		s.user(id, "U"+id).record(id, 10, time.Hour)
	}
	engine := newEngine(s.store, memory.NewRankingCache(time.Minute), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.ComputeRanking(context.Background(), week, 10)
			if err == nil && len(got) != 3 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// gatedStore holds the first View until release is closed.
type gatedStore struct {
	ledger.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Store.View(ctx, fn)
}

func TestComputeRankingSharedResultSurvivesCallerCancel(t *testing.T) {
	s := newSeed(t).user("a", "A").record("a", 10, time.Hour)
	store := &gatedStore{Store: s.store, entered: make(chan struct{}), release: make(chan struct{})}
	engine := newEngine(store, nil, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := engine.ComputeRanking(firstCtx, week, 10)
		firstErr <- err
	}()
	<-store.entered

	type result struct {
		got []leaderboard.Standing
		err error
	}
	second := make(chan result, 1)
	go func() {
		got, err := engine.ComputeRanking(context.Background(), week, 10)
		second <- result{got, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting")
	}

	time.Sleep(20 * time.Millisecond)
	close(store.release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []string{"a"}, ids(res.got))
}

func TestPosition(t *testing.T) {
	s := newSeed(t).
		user("a", "A").
		user("b", "B").
		user("c", "C").
		record("a", 10, time.Hour).
		record("b", 30, time.Hour)
	engine := newEngine(s.store, nil, nil)
	ctx := context.Background()

	pos, err := engine.Position(ctx, "a", week)
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(2), pos.Position)
	assert.Equal(t, int64(10), pos.XP)
	assert.Equal(t, 2, pos.Participants)

	pos, err = engine.Position(ctx, "c", week)
	require.NoError(t, err)
	assert.True(t, pos.Position.IsUnranked())

	_, err = engine.Position(ctx, "nobody", week)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}
