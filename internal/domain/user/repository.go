package user

import (
	"context"
	"time"
)

// Store is the durable mapping of user id to profile.
// Implementations live in infrastructure/persistence; a Store is normally
// obtained from a ledger transaction so that profile and ledger writes commit together.
type Store interface {
	// Get returns the profile or shared.ErrUserNotFound.
	Get(ctx context.Context, id string) (*Profile, error)

	// Create inserts a profile with XPTotal 0 and the given league.
	// Returns shared.ErrUserAlreadyExists when the id is taken.
	Create(ctx context.Context, id, displayName, league string, createdAt time.Time) (*Profile, error)

	// ApplyXPDelta adds delta to the user's total and returns the new total.
	// Negative deltas are rejected with shared.ErrNegativeDelta.
	ApplyXPDelta(ctx context.Context, id string, delta int64) (int64, error)

	// SetLeague stores the league label computed for the current total.
	SetLeague(ctx context.Context, id, league string) error

	// List returns every profile ordered by id.
	List(ctx context.Context) ([]*Profile, error)
}
