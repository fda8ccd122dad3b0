// Package badger is an embedded key-value ledger.Store on BadgerDB.
//
// Key layout:
//
//	u/<user_id>                      -> JSON profile
//	l/<recorded_at BE64><log_id>     -> JSON record, iterates in ledger order
//	i/<log_id>                       -> ledger key of the record
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// Config holds configuration for the Badger store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every commit. Leave enabled outside tests.
	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a rewrite.
	GCDiscardRatio float64

	Logger *logger.Logger
}

// DefaultConfig returns durable production settings.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts logger.Logger to Badger's Logger interface.
type badgerLogger struct {
	log *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// Store implements ledger.Store on a BadgerDB instance.
type Store struct {
	db  *badger.DB
	log *logger.Logger

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

var _ ledger.Store = (*Store)(nil)

// Open opens the database and starts value log GC when configured.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("badger_store"))

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badger: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open database: %w", err)
	}

	s := &Store{db: db, log: log}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, ratio)
	}

	log.Info("badger store opened", logger.String("path", cfg.Path), logger.Bool("in_memory", cfg.InMemory))
	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing worth collecting.
			err := s.db.RunValueLogGC(ratio)
			if err == nil {
				s.log.Debug("badger value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn("badger value log GC error", logger.Err(err))
			}
		}
	}
}

// Name implements ledger.Store.
func (s *Store) Name() string { return "badger" }

// Ping implements ledger.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return shared.StorageError("Ping", errors.New("badger database is closed"))
	}
	return ctx.Err()
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

// Update implements ledger.Store.
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var fnErr error
	err := s.db.Update(func(txn *badger.Txn) error {
		fnErr = fn(&tx{txn: txn, writable: true})
		return fnErr
	})
	return s.mapErr("Update", err, fnErr)
}

// View implements ledger.Store.
func (s *Store) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var fnErr error
	err := s.db.View(func(txn *badger.Txn) error {
		fnErr = fn(&tx{txn: txn})
		return fnErr
	})
	return s.mapErr("View", err, fnErr)
}

func (s *Store) mapErr(op string, err, fnErr error) error {
	if err == nil {
		return nil
	}
	if fnErr != nil && errors.Is(err, fnErr) {
		return fnErr
	}
	if errors.Is(err, badger.ErrConflict) {
		return shared.WrapError("storage", op, shared.ErrStorage, "concurrent transaction conflict", err)
	}
	return shared.StorageError(op, err)
}
