package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store { return New() })
}

func TestClosedStoreRejectsTransactions(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	err := s.View(context.Background(), func(tx ledger.Tx) error { return nil })
	assert.True(t, shared.IsStorage(err))
	assert.True(t, shared.IsStorage(s.Ping(context.Background())))
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Update(ctx, func(tx ledger.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
