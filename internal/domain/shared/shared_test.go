package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorMatching(t *testing.T) {
	assert.ErrorIs(t, ErrUserNotFound, ErrNotFound)
	assert.True(t, IsNotFound(ErrUserNotFound))
	assert.True(t, IsAlreadyExists(ErrDuplicateLogID))
	assert.True(t, IsValidation(ErrInvalidAmount))
	assert.True(t, IsValidation(ErrInvalidWindow))
	assert.False(t, IsValidation(ErrUserNotFound))

	wrapped := fmt.Errorf("handler: %w", ErrUserAlreadyExists)
	assert.True(t, IsAlreadyExists(wrapped))
	assert.ErrorIs(t, wrapped, ErrUserAlreadyExists)
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError("activity", "Append", ErrStorage, "append failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "activity.Append: append failed: disk full", err.Error())
	assert.Equal(t, "user.Get: user not found", ErrUserNotFound.Error())
}

func TestStorageError(t *testing.T) {
	assert.NoError(t, StorageError("Get", nil))

	err := StorageError("Get", errors.New("connection reset"))
	assert.True(t, IsStorage(err))

	// Domain errors pass through untouched.
	assert.Same(t, ErrUserNotFound, StorageError("Get", ErrUserNotFound))
}

func TestCompareUserIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"007", "7", -1},
		{"7", "007", 1},
		{"7", "7", 0},
		{"9", "10", -1},
		{"10", "1a", -1},
		{"1a", "9", 1},
		{"99999999999999999999", "100000000000000000000", -1},
		{"alpha", "bravo", -1},
		{"10", "alpha", -1},
		{"b", "a", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareUserIDs(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestCompareUserIDsIsTotalOrder(t *testing.T) {
	ids := []string{"10", "9", "1a", "007", "7", "-3", "ana", "Bob", "", "0"}
	for _, a := range ids {
		for _, b := range ids {
			ab, ba := CompareUserIDs(a, b), CompareUserIDs(b, a)
			assert.Equal(t, -ab, ba, "%q vs %q", a, b)
			if a != b {
				assert.NotZero(t, ab, "%q vs %q", a, b)
			}
			for _, c := range ids {
				if ab < 0 && CompareUserIDs(b, c) < 0 {
					assert.Negative(t, CompareUserIDs(a, c), "%q < %q < %q", a, b, c)
				}
			}
		}
	}
}

func TestRank(t *testing.T) {
	assert.True(t, Unranked.IsUnranked())
	assert.False(t, Unranked.IsValid())
	assert.True(t, Rank(3).IsValid())
	assert.Equal(t, 3, Rank(3).Int())
}

func TestTimeRangeIsHalfOpen(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	r := TimeRange{From: from, To: to}

	assert.False(t, r.Contains(from))
	assert.True(t, r.Contains(from.Add(time.Nanosecond)))
	assert.True(t, r.Contains(to))
	assert.False(t, r.Contains(to.Add(time.Nanosecond)))
}

func TestEvents(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e := NewXPGainedEvent("u1", "log-1", "study", 40, 140, "Novato", at)
	assert.Equal(t, EventXPGained, e.EventType())
	assert.Equal(t, "u1", e.AggregateID())
	assert.Equal(t, at, e.OccurredAt())
	assert.Equal(t, int64(40), e.Payload()["amount"])

	lc := NewLeagueChangedEvent("u1", "Novato", "Aprendiz (Bronce)", 1000, at)
	assert.Equal(t, EventLeagueChanged, lc.EventType())
}
