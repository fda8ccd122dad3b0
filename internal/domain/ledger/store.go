// Package ledger ties the user store and the activity ledger into one
// transactional unit. Every write path goes through Store.Update so that a
// record append and the matching total increment commit or fail together.
package ledger

import (
	"context"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
)

// Tx is the view of both tables inside one transaction.
// A Tx and any Scan sequence it returns are valid only until the
// enclosing Update or View callback returns.
type Tx interface {
	user.Store
	activity.Ledger
}

// Store opens transactions over the persisted state.
type Store interface {
	// Update runs fn in a read-write transaction. If fn returns an error
	// nothing it wrote is persisted. Success means the commit is durable.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Name identifies the backend for logs and metrics.
	Name() string

	// Close releases the backend.
	Close() error
}

// Migrator is implemented by stores that need a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
