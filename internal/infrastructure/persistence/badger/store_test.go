package badger

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		s, err := Open(InMemoryConfig())
		require.NoError(t, err)
		return s
	})
}

func TestEncodeMicrosPreservesOrder(t *testing.T) {
	values := []int64{-1 << 62, -5, -1, 0, 1, 5, 1 << 40}
	for i := 1; i < len(values); i++ {
		a, b := encodeMicros(values[i-1]), encodeMicros(values[i])
		assert.Negative(t, bytes.Compare(a, b), "%d should sort before %d", values[i-1], values[i])
	}
}

func TestPersistentStoreReopens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	cfg := DefaultConfig(dir)
	cfg.GCInterval = time.Hour
	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Create(ctx, "9", "Max", "Novato", at); err != nil {
			return err
		}
		_, err := tx.Append(ctx, activity.Record{UserID: "9", XPDelta: 150, Kind: activity.KindSleep, RecordedAt: at})
		return err
	}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.View(ctx, func(tx ledger.Tx) error {
		p, err := tx.Get(ctx, "9")
		require.NoError(t, err)
		assert.Equal(t, "Max", p.DisplayName)
		recs, err := activity.Collect(tx.Scan(ctx, at.Add(-time.Second), at))
		require.NoError(t, err)
		assert.Len(t, recs, 1)
		return nil
	}))
}
