package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/league"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

func newReader(s *seed) *ProfileReader {
	r := NewProfileReader(s.store, league.MustDefault(), nil)
	r.now = fixedClock
	return r
}

func TestGetProfile(t *testing.T) {
	s := newSeed(t).
		user("42", "Ana").
		record("42", 700, time.Hour).
		record("42", 450, 2*time.Hour)

	p, err := newReader(s).GetProfile(context.Background(), " 42 ")
	require.NoError(t, err)

	assert.Equal(t, "42", p.UserID)
	assert.Equal(t, "Ana", p.DisplayName)
	assert.Equal(t, int64(1150), p.XPTotal)
	// Seeded without SetLeague: the league is resolved from the total.
	assert.Equal(t, "Aprendiz (Bronce)", p.League)
	assert.Equal(t, "Aprendiz (Plata)", p.NextLeague)
	assert.Equal(t, int64(1850), p.XPToNextLeague)
}

func TestGetProfileTopLeague(t *testing.T) {
	s := newSeed(t).user("u", "U").record("u", 50000, time.Hour)

	p, err := newReader(s).GetProfile(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "Maestro", p.League)
	assert.Empty(t, p.NextLeague)
	assert.Zero(t, p.XPToNextLeague)
}

func TestGetProfileErrors(t *testing.T) {
	r := newReader(newSeed(t))

	_, err := r.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = r.GetProfile(context.Background(), "  ")
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestHistory(t *testing.T) {
	s := newSeed(t).
		user("a", "A").
		user("b", "B").
		record("a", 10, 3*time.Hour).
		record("b", 99, 2*time.Hour).
		record("a", 20, 2*time.Hour).
		record("a", 30, time.Hour).
		record("a", 500, 2*week)
	r := newReader(s)
	ctx := context.Background()

	h, err := r.History(ctx, "a", week, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Count)
	assert.Equal(t, int64(60), h.XPInWindow)
	require.Len(t, h.Activities, 3)
	assert.Equal(t, int64(30), h.Activities[0].XP, "newest first")
	assert.Equal(t, int64(10), h.Activities[2].XP)
	assert.Equal(t, "study", h.Activities[0].Kind)
	assert.Equal(t, baseTime, h.Until)

	h, err = r.History(ctx, "a", week, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Count)
	assert.Equal(t, int64(60), h.XPInWindow)
	assert.Len(t, h.Activities, 2)
}

func TestHistoryValidation(t *testing.T) {
	r := newReader(newSeed(t).user("a", "A"))
	ctx := context.Background()

	_, err := r.History(ctx, "a", 0, 10)
	assert.ErrorIs(t, err, shared.ErrInvalidWindow)

	_, err = r.History(ctx, "a", week, -1)
	assert.ErrorIs(t, err, shared.ErrInvalidLimit)

	_, err = r.History(ctx, "zzz", week, 10)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	h, err := r.History(ctx, "a", week, 10)
	require.NoError(t, err)
	assert.NotNil(t, h.Activities)
	assert.Empty(t, h.Activities)
}
