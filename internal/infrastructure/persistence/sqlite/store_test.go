package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	require.NoError(t, err)
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store { return openTestStore(t) })
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 9, 30, 0, 123000, time.UTC)

	s, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Create(ctx, "42", "Zaira", "Novato", at); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, activity.Record{LogID: "l1", UserID: "42", XPDelta: 96, Kind: activity.KindStudy, RecordedAt: at}); err != nil {
			return err
		}
		_, err := tx.ApplyXPDelta(ctx, "42", 96)
		return err
	}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		p, err := tx.Get(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, int64(96), p.XPTotal)

		recs, err := activity.Collect(tx.Scan(ctx, time.Time{}, at))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.True(t, at.Equal(recs[0].RecordedAt))
		return nil
	}))
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "sqlite", s.Name())
}
