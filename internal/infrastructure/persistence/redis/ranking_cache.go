package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/pkg/circuitbreaker"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Key patterns for the ranking cache.
//
//	ranking:gen                     -> INCR counter, bumped on every ledger write
//	ranking:snap:<gen>:<key>        -> JSON leaderboard.Snapshot with TTL
const (
	keyRankingGeneration = "ranking:gen"
	keyRankingSnapshot   = "ranking:snap:"
)

// DefaultRankingTTL bounds how long a window can drift before a snapshot
// is recomputed even without writes.
const DefaultRankingTTL = 30 * time.Second

// RankingCache implements leaderboard.Cache on Redis.
type RankingCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger

	// stale is set when an Invalidate did not reach Redis. Snapshots of the
	// current generation may then predate a committed write.
	stale atomic.Bool
}

var _ leaderboard.Cache = (*RankingCache)(nil)

// NewRankingCache creates a ranking cache. A nil breaker disables circuit
// breaking.
func NewRankingCache(cache *Cache, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) *RankingCache {
	if ttl <= 0 {
		ttl = DefaultRankingTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RankingCache{
		cache:   cache,
		ttl:     ttl,
		breaker: breaker,
		log:     log.With(logger.Component("ranking_cache")),
	}
}

// IsBreakerFailure reports whether err should count against the breaker.
// Misses are normal traffic.
func IsBreakerFailure(err error) bool {
	return !errors.Is(err, ErrCacheMiss) && !errors.Is(err, leaderboard.ErrCacheMiss)
}

func (r *RankingCache) do(ctx context.Context, fn func(context.Context) error) error {
	if r.breaker == nil {
		return fn(ctx)
	}
	return r.breaker.ExecuteWithFallback(ctx, fn, func(err error) error {
		r.log.Debug("ranking cache call rejected", logger.Err(err))
		return fmt.Errorf("ranking cache: %w", err)
	})
}

func snapshotKey(gen int64, key leaderboard.Key) string {
	return keyRankingSnapshot + strconv.FormatInt(gen, 10) + ":" + key.String()
}

// Generation implements leaderboard.Cache. A pending invalidation is
// replayed first; until it succeeds the cache reports itself unavailable.
func (r *RankingCache) Generation(ctx context.Context) (int64, error) {
	if r.stale.Load() {
		if err := r.bump(ctx); err != nil {
			return 0, err
		}
		r.stale.Store(false)
	}

	var gen int64
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		gen, err = r.cache.GetInt64(ctx, keyRankingGeneration)
		return err
	})
	return gen, err
}

// Get implements leaderboard.Cache.
func (r *RankingCache) Get(ctx context.Context, gen int64, key leaderboard.Key) (*leaderboard.Snapshot, error) {
	var snap leaderboard.Snapshot
	err := r.do(ctx, func(ctx context.Context) error {
		return r.cache.Get(ctx, snapshotKey(gen, key), &snap)
	})
	if errors.Is(err, ErrCacheMiss) {
		return nil, leaderboard.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Put implements leaderboard.Cache.
func (r *RankingCache) Put(ctx context.Context, gen int64, snap *leaderboard.Snapshot) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.cache.Set(ctx, snapshotKey(gen, snap.Key()), snap, r.ttl)
	})
}

// Invalidate implements leaderboard.Cache. Old generations expire by TTL.
func (r *RankingCache) Invalidate(ctx context.Context) error {
	if err := r.bump(ctx); err != nil {
		r.stale.Store(true)
		return err
	}
	return nil
}

func (r *RankingCache) bump(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		gen, err := r.cache.Incr(ctx, keyRankingGeneration)
		if err == nil {
			r.log.Debug("ranking cache invalidated", logger.Int64("generation", gen))
		}
		return err
	})
}
