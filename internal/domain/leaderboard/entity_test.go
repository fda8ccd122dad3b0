package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

func TestTallyRankedOrder(t *testing.T) {
	tally := NewTally()
	tally.Add("10", 50)
	tally.Add("9", 80)
	tally.Add("10", 30)
	tally.Add("ana", 80)
	tally.Add("zero", 0)

	ranked := tally.Ranked()
	require.Len(t, ranked, 4)

	ids := make([]string, len(ranked))
	for i, s := range ranked {
		ids[i] = s.UserID
		assert.Equal(t, shared.Rank(i+1), s.Position)
	}
	// Integer ids come first: "9" < "10" < "ana".
	assert.Equal(t, []string{"9", "10", "ana", "zero"}, ids)
	assert.Equal(t, int64(80), ranked[0].XP)
	assert.Equal(t, int64(240), tally.Total())
}

func TestTallyNumericTieBreak(t *testing.T) {
	tally := NewTally()
	tally.Add("100", 5)
	tally.Add("20", 5)
	tally.Add("3", 5)

	ranked := tally.Ranked()
	assert.Equal(t, "3", ranked[0].UserID)
	assert.Equal(t, "20", ranked[1].UserID)
	assert.Equal(t, "100", ranked[2].UserID)
}

func TestTallyRankedIsDeterministicForMixedIDs(t *testing.T) {
	tally := NewTally()
	for _, id := range []string{"10", "9", "1a", "007", "7", "ana"} {
		tally.Add(id, 50)
	}
	want := []string{"007", "7", "9", "10", "1a", "ana"}

	for range 200 {
		ranked := tally.Ranked()
		got := make([]string, len(ranked))
		for i, s := range ranked {
			got[i] = s.UserID
		}
		require.Equal(t, want, got)
		for _, s := range ranked {
			pos, _ := tally.Position(s.UserID)
			require.Equal(t, s.Position, pos, s.UserID)
		}
	}
}

func TestTallyPositionMatchesRanked(t *testing.T) {
	tally := NewTally()
	for i, xp := range []int64{5, 90, 90, 12, 0, 40} {
		tally.Add(string(rune('a'+i)), xp)
	}
	for _, s := range tally.Ranked() {
		pos, xp := tally.Position(s.UserID)
		assert.Equal(t, s.Position, pos, s.UserID)
		assert.Equal(t, s.XP, xp)
	}

	pos, xp := tally.Position("ghost")
	assert.True(t, pos.IsUnranked())
	assert.Zero(t, xp)
}

func TestTop(t *testing.T) {
	ranked := []Standing{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}
	assert.Len(t, Top(ranked, 2), 2)
	assert.Len(t, Top(ranked, 10), 3)
	assert.Empty(t, Top(ranked, 0))
	assert.Empty(t, Top(nil, 5))
}

func TestKeyString(t *testing.T) {
	k := Key{Window: 7 * 24 * time.Hour, Limit: 10}
	assert.Equal(t, "w604800:l10", k.String())

	snap := &Snapshot{Window: k.Window, Limit: k.Limit, ComputedAt: time.Unix(100, 0)}
	assert.Equal(t, k, snap.Key())
	assert.Equal(t, 5*time.Second, snap.Age(time.Unix(105, 0)))
}
