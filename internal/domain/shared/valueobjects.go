package shared

import (
	"math/big"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// User IDs
// ═══════════════════════════════════════════════════════════════════════════

// CompareUserIDs orders two ids ascending. Ids that parse as base-10
// integers come first and compare numerically; the rest compare as text.
// Equal numbers with different spellings ("7", "007") fall back to text
// so distinct ids never compare equal.
func CompareUserIDs(a, b string) int {
	if a == b {
		return 0
	}
	na, okA := new(big.Int).SetString(a, 10)
	nb, okB := new(big.Int).SetString(b, 10)
	switch {
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	case okA && okB:
		if c := na.Cmp(nb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a user's position in a ranking.
type Rank int

const (
	MinRank  Rank = 1
	Unranked Rank = 0 // no XP inside the window
)

// IsValid checks if the rank is valid.
func (r Rank) IsValid() bool {
	return r >= MinRank
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsUnranked checks if the user has no position.
func (r Rank) IsUnranked() bool {
	return r == Unranked
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange is the half-open window (From, To]: From is excluded, To included.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether tm lies in (From, To].
func (t TimeRange) Contains(tm time.Time) bool {
	return tm.After(t.From) && !tm.After(t.To)
}
