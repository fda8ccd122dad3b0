package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// Store implements ledger.Store on a PostgreSQL pool.
type Store struct {
	conn     *Connection
	migrator *Migrator
	log      *logger.Logger
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Migrator = (*Store)(nil)
	_ ledger.Pinger   = (*Store)(nil)
)

// Open connects to the database. Call Migrate before first use.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{
		conn:     conn,
		migrator: NewMigrator(conn),
		log:      log.With(logger.Component("postgres_store")),
	}
	s.log.Info("postgres store opened")
	return s, nil
}

// Connection exposes the pool for health reporting.
func (s *Store) Connection() *Connection {
	return s.conn
}

// Migrator exposes the schema migrator.
func (s *Store) Migrator() *Migrator {
	return s.migrator
}

// Name implements ledger.Store.
func (s *Store) Name() string { return "postgres" }

// Migrate implements ledger.Migrator.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.migrator.Migrate(ctx); err != nil {
		return shared.StorageError("Migrate", err)
	}
	return nil
}

// Ping implements ledger.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return shared.StorageError("Ping", s.conn.Ping(ctx))
}

// Close implements ledger.Store.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

// Update implements ledger.Store.
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.run(ctx, "Update", DefaultTxOptions(), true, fn)
}

// View implements ledger.Store.
func (s *Store) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.run(ctx, "View", SnapshotTxOptions(), false, fn)
}

func (s *Store) run(ctx context.Context, op string, opts TxOptions, writable bool, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var fnErr error
	err := s.conn.WithTx(ctx, opts, func(ptx pgx.Tx) error {
		fnErr = fn(&tx{tx: ptx, writable: writable})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.StorageError(op, err)
}
