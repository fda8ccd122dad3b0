package memory

import (
	"context"
	"sync"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
)

// RankingCache is a process-local leaderboard.Cache used when Redis is not
// configured. Invalidate drops every snapshot of the previous generation.
type RankingCache struct {
	mu    sync.Mutex
	gen   int64
	snaps map[leaderboard.Key]cachedSnapshot
	ttl   time.Duration
	now   func() time.Time
}

type cachedSnapshot struct {
	gen     int64
	snap    leaderboard.Snapshot
	expires time.Time
}

var _ leaderboard.Cache = (*RankingCache)(nil)

// NewRankingCache creates a cache whose entries live for ttl.
func NewRankingCache(ttl time.Duration) *RankingCache {
	return &RankingCache{
		snaps: make(map[leaderboard.Key]cachedSnapshot),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the clock used for expiry.
func (c *RankingCache) WithClock(now func() time.Time) *RankingCache {
	c.now = now
	return c
}

// Generation implements leaderboard.Cache.
func (c *RankingCache) Generation(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

// Get implements leaderboard.Cache.
func (c *RankingCache) Get(ctx context.Context, gen int64, key leaderboard.Key) (*leaderboard.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.snaps[key]
	if !ok || e.gen != gen || !c.now().Before(e.expires) {
		return nil, leaderboard.ErrCacheMiss
	}
	snap := e.snap
	snap.Entries = append([]leaderboard.Standing(nil), e.snap.Entries...)
	return &snap, nil
}

// Put implements leaderboard.Cache. A snapshot computed under an old
// generation is dropped.
func (c *RankingCache) Put(ctx context.Context, gen int64, snap *leaderboard.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return nil
	}
	cp := *snap
	cp.Entries = append([]leaderboard.Standing(nil), snap.Entries...)
	c.snaps[snap.Key()] = cachedSnapshot{gen: gen, snap: cp, expires: c.now().Add(c.ttl)}
	return nil
}

// Invalidate implements leaderboard.Cache.
func (c *RankingCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	clear(c.snaps)
	return nil
}
