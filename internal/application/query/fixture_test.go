package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/league"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/memory"
)

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// seed is a tiny builder over a memory store with explicit timestamps.
type seed struct {
	t     *testing.T
	store *memory.Store
}

func newSeed(t *testing.T) *seed {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	return &seed{t: t, store: s}
}

func (s *seed) user(id, name string) *seed {
	s.t.Helper()
	err := s.store.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.Create(context.Background(), id, name, league.MustDefault().Lowest(), baseTime.Add(-30*24*time.Hour))
		return err
	})
	require.NoError(s.t, err)
	return s
}

// record appends xp for id at baseTime - ago and bumps the total.
func (s *seed) record(id string, xp int64, ago time.Duration) *seed {
	s.t.Helper()
	ctx := context.Background()
	err := s.store.Update(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Append(ctx, activity.Record{
			UserID:     id,
			XPDelta:    xp,
			Kind:       activity.KindStudy,
			RecordedAt: baseTime.Add(-ago),
		}); err != nil {
			return err
		}
		_, err := tx.ApplyXPDelta(ctx, id, xp)
		return err
	})
	require.NoError(s.t, err)
	return s
}

func fixedClock() time.Time { return baseTime }

// hidingStore pretends some users were never registered.
type hidingStore struct {
	ledger.Store
	hidden map[string]bool
}

type hidingTx struct {
	ledger.Tx
	hidden map[string]bool
}

func hide(store ledger.Store, ids ...string) *hidingStore {
	h := &hidingStore{Store: store, hidden: make(map[string]bool)}
	for _, id := range ids {
		h.hidden[id] = true
	}
	return h
}

func (s *hidingStore) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.View(ctx, func(tx ledger.Tx) error {
		return fn(hidingTx{Tx: tx, hidden: s.hidden})
	})
}

func (t hidingTx) Get(ctx context.Context, id string) (*user.Profile, error) {
	if t.hidden[id] {
		return nil, shared.ErrUserNotFound
	}
	return t.Tx.Get(ctx, id)
}

func (t hidingTx) List(ctx context.Context) ([]*user.Profile, error) {
	all, err := t.Tx.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if !t.hidden[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

type recorderStub struct {
	sources         map[string]int
	inconsistencies map[string]int
	computes        int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{sources: map[string]int{}, inconsistencies: map[string]int{}}
}

func (r *recorderStub) ObserveRanking(source string)        { r.sources[source]++ }
func (r *recorderStub) ObserveRankingCompute(time.Duration) { r.computes++ }
func (r *recorderStub) Inconsistency(kind string)           { r.inconsistencies[kind]++ }
