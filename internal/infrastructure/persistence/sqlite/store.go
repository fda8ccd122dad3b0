// Package sqlite is an embedded, file-backed ledger.Store built on gorm and
// the pure-Go glebarez SQLite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// Config configures the SQLite store.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path string

	// BusyTimeout bounds how long a statement waits for a lock.
	BusyTimeout time.Duration

	Logger *logger.Logger
}

// Store implements ledger.Store on top of one SQLite database.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Migrator = (*Store)(nil)
)

// Open connects to the database, applies the durability pragmas and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: underlying handle: %w", err)
	}
	// One connection: the pragmas below are per connection, and an
	// in-memory database only exists on the connection that created it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := configureDB(db, cfg.BusyTimeout); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	s := &Store{db: db, log: log.With(logger.Component("sqlite_store"))}
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	s.log.Info("sqlite store opened", logger.String("path", cfg.Path))
	return s, nil
}

// configureDB sets journaling and durability. synchronous=FULL makes every
// commit durable before it returns.
func configureDB(db *gorm.DB, busy time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds()),
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate implements ledger.Migrator.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &activityRow{}); err != nil {
		return shared.StorageError("Migrate", err)
	}
	return nil
}

// Name implements ledger.Store.
func (s *Store) Name() string { return "sqlite" }

// Ping implements ledger.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return shared.StorageError("Ping", err)
	}
	return shared.StorageError("Ping", sqlDB.PingContext(ctx))
}

// Close implements ledger.Store.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Update implements ledger.Store.
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.run(ctx, "Update", true, fn)
}

// View implements ledger.Store.
func (s *Store) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.run(ctx, "View", false, fn)
}

func (s *Store) run(ctx context.Context, op string, writable bool, fn func(tx ledger.Tx) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		fnErr = fn(&tx{db: db, writable: writable})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil && errors.Is(err, fnErr) {
		return fnErr
	}
	return shared.StorageError(op, err)
}
