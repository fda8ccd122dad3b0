package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/league"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Ranking.DefaultWindow)
	assert.Equal(t, 10, cfg.Ranking.DefaultLimit)
	assert.Equal(t, league.DefaultTiers(), cfg.Leagues)
	assert.Equal(t, activity.DefaultPolicy(), cfg.XP.Policy())
	assert.Equal(t, []time.Duration{7 * 24 * time.Hour, 30 * 24 * time.Hour}, cfg.Scheduler.WarmWindows)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "uconnect-ledger", cfg.App.Name)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
app:
  env: staging
storage:
  driver: badger
  badger:
    path: /var/lib/uconnect
ranking:
  default_window: 336h
  default_limit: 5
leagues:
  - min_xp: 0
    name: Bronce
  - min_xp: 500
    name: Plata
xp:
  attendance:
    punctual_xp: 25
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/uconnect", cfg.Storage.Badger.Path)
	assert.Equal(t, 14*24*time.Hour, cfg.Ranking.DefaultWindow)
	assert.Equal(t, 5, cfg.Ranking.DefaultLimit)
	assert.Equal(t, 100, cfg.Ranking.MaxLimit)

	table, err := cfg.LeagueTable()
	require.NoError(t, err)
	assert.Equal(t, "Plata", table.Resolve(700))

	policy := cfg.XP.Policy()
	assert.Equal(t, int64(125), policy.AttendanceXP(true))
	assert.Equal(t, int64(100), policy.AttendanceXP(false))
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: badger\n")
	t.Setenv("UCONNECT_STORAGE_DRIVER", "memory")
	t.Setenv("UCONNECT_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "mysql"
	cfg.Ranking.DefaultLimit = 0
	cfg.Leagues = []league.Tier{{MinXP: 100, Name: "Novato"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
	assert.Contains(t, err.Error(), "ranking.default_limit")
	assert.Contains(t, err.Error(), "leagues")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = DriverPostgres
	assert.ErrorContains(t, cfg.Validate(), "storage.postgres.url")

	cfg.Storage.Postgres.URL = "postgres://localhost/uconnect"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMemoryInProduction(t *testing.T) {
	cfg := Default()
	cfg.App.Environment = EnvProduction
	cfg.Storage.Driver = DriverMemory
	assert.ErrorContains(t, cfg.Validate(), "not durable")
	assert.True(t, cfg.IsProduction())
}
