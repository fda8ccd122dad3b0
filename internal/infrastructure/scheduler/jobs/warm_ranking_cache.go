// Package jobs contains the scheduled jobs of the XP ledger.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM RANKING CACHE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Snapshotter computes a ranking snapshot. *query.RankingEngine satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context, window time.Duration, limit int) (*leaderboard.Snapshot, error)
}

// WarmRankingCacheJob recomputes the configured windows so readers of the
// hot rankings hit the cache after a write invalidated it.
type WarmRankingCacheJob struct {
	engine  Snapshotter
	windows []time.Duration
	limit   int
	log     *logger.Logger
}

// NewWarmRankingCacheJob creates the job. limit 0 warms the default limit.
func NewWarmRankingCacheJob(engine Snapshotter, windows []time.Duration, limit int, log *logger.Logger) *WarmRankingCacheJob {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmRankingCacheJob{
		engine:  engine,
		windows: windows,
		limit:   limit,
		log:     log.With(logger.Component("job.warm_ranking_cache")),
	}
}

// Name returns the job name.
func (j *WarmRankingCacheJob) Name() string {
	return "warm_ranking_cache"
}

// Description returns a human-readable description.
func (j *WarmRankingCacheJob) Description() string {
	return "Recomputes hot ranking windows into the cache"
}

// Run warms every window. One failing window does not stop the others.
func (j *WarmRankingCacheJob) Run(ctx context.Context) error {
	var errs []error
	for _, w := range j.windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := j.engine.Snapshot(ctx, w, j.limit)
		if err != nil {
			j.log.Warn("failed to warm window", logger.Window(w), logger.Err(err))
			errs = append(errs, err)
			continue
		}
		j.log.Debug("window warmed",
			logger.Window(w),
			logger.Int("participants", snap.Participants),
		)
	}
	return errors.Join(errs...)
}
