package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/storetest"
)

// testDSN returns the database used by integration tests, skipping when unset.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("UCONNECT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("UCONNECT_TEST_POSTGRES_DSN not set")
	}
	return dsn
}

func openClean(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, DefaultConfig(testDSN(t)), nil)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	_, err = s.Connection().Exec(ctx, "TRUNCATE activity_log, users")
	require.NoError(t, err)
	return s
}

func TestStoreConformance(t *testing.T) {
	testDSN(t)
	storetest.Run(t, func(t *testing.T) ledger.Store {
		return openClean(t)
	})
}

func TestMigratorStatus(t *testing.T) {
	s := openClean(t)
	defer s.Close()

	status, err := s.Migrator().Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, len(GetMigrations()))
	for _, m := range status {
		assert.True(t, m.IsApplied, "migration %d", m.Version)
	}
}

func TestHealth(t *testing.T) {
	s := openClean(t)

	h, err := s.Connection().Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Healthy)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Connection().Ping(context.Background()), ErrConnectionClosed)
}

func TestMigrationsAreOrdered(t *testing.T) {
	migs := GetMigrations()
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}
