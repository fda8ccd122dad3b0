package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/application/query"
	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

type snapshotterFunc func(ctx context.Context, window time.Duration, limit int) (*leaderboard.Snapshot, error)

func (f snapshotterFunc) Snapshot(ctx context.Context, window time.Duration, limit int) (*leaderboard.Snapshot, error) {
	return f(ctx, window, limit)
}

type reconcilerFunc func(ctx context.Context) (*query.ReconcileReport, error)

func (f reconcilerFunc) Run(ctx context.Context) (*query.ReconcileReport, error) { return f(ctx) }

func TestWarmRankingCacheJob(t *testing.T) {
	var warmed []time.Duration
	bad := 30 * 24 * time.Hour
	engine := snapshotterFunc(func(_ context.Context, w time.Duration, limit int) (*leaderboard.Snapshot, error) {
		warmed = append(warmed, w)
		assert.Equal(t, 10, limit)
		if w == bad {
			return nil, errors.New("store down")
		}
		return &leaderboard.Snapshot{Window: w}, nil
	})

	job := NewWarmRankingCacheJob(engine, []time.Duration{bad, 7 * 24 * time.Hour}, 10, nil)
	err := job.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, []time.Duration{bad, 7 * 24 * time.Hour}, warmed, "a failing window does not stop the rest")
	assert.Equal(t, "warm_ranking_cache", job.Name())
}

func TestReconcileLedgerJob(t *testing.T) {
	report := &query.ReconcileReport{}
	job := NewReconcileLedgerJob(reconcilerFunc(func(context.Context) (*query.ReconcileReport, error) {
		return report, nil
	}), nil)

	require.NoError(t, job.Run(context.Background()))

	report.Mismatches = []query.TotalMismatch{{UserID: "a", Stored: 2, FromLedger: 1}}
	assert.ErrorIs(t, job.Run(context.Background()), shared.ErrDataInconsistency)
}
