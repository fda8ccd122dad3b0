// Package bootstrap wires configuration into the running components shared
// by the API server, the worker and the admin CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/uconnect/uconnect-ledger/config"
	"github.com/uconnect/uconnect-ledger/internal/application/command"
	"github.com/uconnect/uconnect-ledger/internal/application/eventhandler"
	"github.com/uconnect/uconnect-ledger/internal/application/query"
	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/internal/domain/league"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/messaging"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/metrics"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/badger"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/memory"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/postgres"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/redis"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/uconnect/uconnect-ledger/internal/interface/http/handlers"
	"github.com/uconnect/uconnect-ledger/pkg/circuitbreaker"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
	"github.com/uconnect/uconnect-ledger/pkg/retry"
)

// App holds every long-lived component of one process.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	Store   ledger.Store
	Leagues *league.Table
	Bus     *messaging.InMemoryEventBus

	// Cache is Redis when enabled and reachable, in-process otherwise.
	Cache leaderboard.Cache

	Writer     *command.LedgerWriter
	Awarder    *command.Awarder
	Ranking    *query.RankingEngine
	Profiles   *query.ProfileReader
	Reconciler *query.Reconciler

	redis   *redis.Cache
	closers []func() error
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg config.ObservabilityConfig) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	opts.Output = os.Stderr
	return logger.New(opts)
}

// New opens storage and assembles the write and read paths. On error every
// resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (app *App, err error) {
	if log == nil {
		log = NewLogger(cfg.Observability)
	}
	app = &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. League table
	// ─────────────────────────────────────────────────────────────────────────
	app.Leagues, err = cfg.LeagueTable()
	if err != nil {
		return nil, fmt.Errorf("league table: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Storage
	// ─────────────────────────────────────────────────────────────────────────
	app.Store, err = OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Store.Close)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Ranking cache
	// ─────────────────────────────────────────────────────────────────────────
	app.Cache, err = app.openCache(ctx)
	if err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Event bus
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.Recorder = app.Metrics
	app.Bus = messaging.NewInMemoryEventBus(busCfg)
	app.closers = append(app.closers, app.Bus.Close)

	if err := eventhandler.NewOnLedgerChangedHandler(app.Cache, log).Register(app.Bus); err != nil {
		return nil, fmt.Errorf("register cache invalidation: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Application services
	// ─────────────────────────────────────────────────────────────────────────
	app.Writer = command.NewLedgerWriter(command.LedgerWriterConfig{
		Store:   app.Store,
		Leagues: app.Leagues,
		Events:  app.Bus,
		Metrics: app.Metrics,
		Logger:  log,
	})
	app.Awarder = command.NewAwarder(app.Writer, cfg.XP.Policy())

	app.Ranking = query.NewRankingEngine(query.RankingEngineConfig{
		Store:         app.Store,
		Cache:         app.Cache,
		DefaultWindow: cfg.Ranking.DefaultWindow,
		DefaultLimit:  cfg.Ranking.DefaultLimit,
		MaxLimit:      cfg.Ranking.MaxLimit,
		Metrics:       app.Metrics,
		Logger:        log,
	})
	app.Profiles = query.NewProfileReader(app.Store, app.Leagues, log)
	app.Reconciler = query.NewReconciler(app.Store, app.Leagues, app.Bus, app.Metrics, log)

	log.Info("application assembled",
		logger.StorageDriver(app.Store.Name()),
		logger.Bool("redis", app.redis != nil),
	)
	return app, nil
}

// OpenStore opens the configured driver, retrying while the backing service
// comes up, and applies pending migrations.
func OpenStore(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (ledger.Store, error) {
	log = log.With(logger.StorageDriver(cfg.Driver))

	r := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("storage not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}, retry.WithMaxAttempts(cfg.OpenAttempts))

	var store ledger.Store
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		store, err = openDriver(ctx, cfg, log)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if m, ok := store.(ledger.Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
		}
	}
	return store, nil
}

func openDriver(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (ledger.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("memory storage loses the ledger on restart")
		return memory.New(), nil

	case config.DriverSQLite:
		return sqlite.Open(ctx, sqlite.Config{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
			Logger:      log,
		})

	case config.DriverBadger:
		bc := badger.DefaultConfig(cfg.Badger.Path)
		bc.GCInterval = cfg.Badger.GCInterval
		bc.Logger = log
		return badger.Open(bc)

	case config.DriverPostgres:
		pc := postgres.DefaultConfig(cfg.Postgres.URL)
		if cfg.Postgres.MaxConns > 0 {
			pc.MaxConns = cfg.Postgres.MaxConns
		}
		if cfg.Postgres.MinConns > 0 {
			pc.MinConns = cfg.Postgres.MinConns
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			pc.MaxConnLifetime = cfg.Postgres.ConnMaxLifetime
		}
		if cfg.Postgres.ConnMaxIdleTime > 0 {
			pc.MaxConnIdleTime = cfg.Postgres.ConnMaxIdleTime
		}
		return postgres.Open(ctx, pc, log)

	default:
		return nil, retry.Permanent(fmt.Errorf("unknown storage driver %q", cfg.Driver))
	}
}

// openCache connects to Redis when enabled, falling back to the in-process
// cache if Redis cannot be reached.
func (a *App) openCache(ctx context.Context) (leaderboard.Cache, error) {
	cfg := a.Config
	if !cfg.Redis.Enabled {
		return memory.NewRankingCache(cfg.Ranking.CacheTTL), nil
	}

	rc := redis.DefaultConfig()
	rc.Addr = cfg.Redis.Addr
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	if cfg.Redis.Prefix != "" {
		rc.KeyPrefix = cfg.Redis.Prefix
	}
	if cfg.Redis.PoolSize > 0 {
		rc.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		rc.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Redis.DialTimeout > 0 {
		rc.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		rc.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.Redis.WriteTimeout
	}

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		a.Logger.Warn("redis unavailable, using in-process ranking cache", logger.Err(err))
		return memory.NewRankingCache(cfg.Ranking.CacheTTL), nil
	}
	a.redis = cache
	a.closers = append(a.closers, cache.Close)

	breaker := circuitbreaker.RankingCacheBreaker(redis.IsBreakerFailure, func(name string, from, to circuitbreaker.State) {
		a.Metrics.SetBreakerState(name, int(to))
		a.Logger.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	return redis.NewRankingCache(cache, cfg.Ranking.CacheTTL, breaker, a.Logger), nil
}

// SharedCache reports whether the ranking cache is visible to other processes.
func (a *App) SharedCache() bool {
	return a.redis != nil
}

// HealthChecker returns the readiness checks for this process.
func (a *App) HealthChecker() *handlers.CompositeHealthChecker {
	hc := handlers.NewCompositeHealthChecker(a.Config.App.Version)
	if p, ok := a.Store.(ledger.Pinger); ok {
		hc.AddCheck("storage", handlers.NewPingCheck(p))
	}
	if a.redis != nil {
		hc.AddCheck("redis", handlers.NewPingCheck(a.redis))
	}
	return hc
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
