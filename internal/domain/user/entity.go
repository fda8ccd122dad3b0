// Package user holds the user profile aggregate: identity, display name,
// cumulative XP and the league derived from it.
package user

import (
	"strings"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

// Profile is one registered user. XPTotal always equals the sum of the
// user's ledger deltas; League is a cached label, readers recompute it.
type Profile struct {
	ID          string
	DisplayName string
	XPTotal     int64
	League      string
	CreatedAt   time.Time
}

// Clone returns a copy safe to hand out of a store.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// MaxDisplayNameLength bounds the stored display name in runes.
const MaxDisplayNameLength = 128

// ValidateRegistration checks the inputs of a registration.
func ValidateRegistration(id, displayName string) error {
	if strings.TrimSpace(id) == "" {
		return shared.ErrInvalidUserID
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		return shared.NewDomainError("user", "Validate", shared.ErrEmptyValue, "display name must not be empty")
	}
	if len([]rune(name)) > MaxDisplayNameLength {
		return shared.NewDomainError("user", "Validate", shared.ErrValueOutOfRange, "display name is too long")
	}
	return nil
}
