// Package storetest is a conformance suite every ledger.Store implementation runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) ledger.Store

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s ledger.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"DuplicateCreate", testDuplicateCreate},
		{"GetMissing", testGetMissing},
		{"ApplyXPDelta", testApplyXPDelta},
		{"SetLeague", testSetLeague},
		{"List", testList},
		{"AppendAssignsDefaults", testAppendAssignsDefaults},
		{"AppendRejectsInvalid", testAppendRejectsInvalid},
		{"AppendRejectsDuplicateLogID", testAppendRejectsDuplicateLogID},
		{"AppendUnknownUser", testAppendUnknownUser},
		{"ScanWindowBounds", testScanWindowBounds},
		{"ScanOrderAndTies", testScanOrderAndTies},
		{"ScanRestartable", testScanRestartable},
		{"ScanEarlyBreak", testScanEarlyBreak},
		{"ScanSeesOwnWrites", testScanSeesOwnWrites},
		{"UpdateRollsBack", testUpdateRollsBack},
		{"ViewIsReadOnly", testViewIsReadOnly},
		{"ConcurrentDeltas", testConcurrentDeltas},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func mustCreate(t *testing.T, s ledger.Store, id, name string) {
	t.Helper()
	err := s.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.Create(context.Background(), id, name, "Novato", base)
		return err
	})
	require.NoError(t, err)
}

func mustAppend(t *testing.T, s ledger.Store, recs ...activity.Record) {
	t.Helper()
	err := s.Update(context.Background(), func(tx ledger.Tx) error {
		for _, r := range recs {
			if _, err := tx.Append(context.Background(), r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func scanAll(t *testing.T, s ledger.Store, since, until time.Time) []activity.Record {
	t.Helper()
	var out []activity.Record
	err := s.View(context.Background(), func(tx ledger.Tx) error {
		var err error
		out, err = activity.Collect(tx.Scan(context.Background(), since, until))
		return err
	})
	require.NoError(t, err)
	return out
}

func getProfile(t *testing.T, s ledger.Store, id string) (*user.Profile, error) {
	t.Helper()
	var p *user.Profile
	err := s.View(context.Background(), func(tx ledger.Tx) error {
		var err error
		p, err = tx.Get(context.Background(), id)
		return err
	})
	return p, err
}

func rec(logID, userID string, delta int64, at time.Time) activity.Record {
	return activity.Record{LogID: logID, UserID: userID, XPDelta: delta, Kind: activity.KindStudy, RecordedAt: at}
}

func logIDs(recs []activity.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.LogID
	}
	return out
}

func testCreateAndGet(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1001", "Ana")

	p, err := getProfile(t, s, "1001")
	require.NoError(t, err)
	assert.Equal(t, "1001", p.ID)
	assert.Equal(t, "Ana", p.DisplayName)
	assert.Equal(t, int64(0), p.XPTotal)
	assert.Equal(t, "Novato", p.League)
	assert.True(t, base.Equal(p.CreatedAt), "created_at %v", p.CreatedAt)
}

func testDuplicateCreate(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1001", "Ana")

	err := s.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.Create(context.Background(), "1001", "Other", "Novato", base)
		return err
	})
	assert.True(t, shared.IsAlreadyExists(err), "got %v", err)

	p, err := getProfile(t, s, "1001")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.DisplayName)
}

func testGetMissing(t *testing.T, s ledger.Store) {
	_, err := getProfile(t, s, "nobody")
	assert.True(t, shared.IsNotFound(err), "got %v", err)
}

func testApplyXPDelta(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "7", "Ben")
	ctx := context.Background()

	var total int64
	err := s.Update(ctx, func(tx ledger.Tx) error {
		if _, err := tx.ApplyXPDelta(ctx, "7", 40); err != nil {
			return err
		}
		var err error
		total, err = tx.ApplyXPDelta(ctx, "7", 2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)

	err = s.Update(ctx, func(tx ledger.Tx) error {
		_, err := tx.ApplyXPDelta(ctx, "7", -1)
		return err
	})
	assert.True(t, shared.IsValidation(err), "got %v", err)

	err = s.Update(ctx, func(tx ledger.Tx) error {
		_, err := tx.ApplyXPDelta(ctx, "8", 1)
		return err
	})
	assert.True(t, shared.IsNotFound(err), "got %v", err)

	p, err := getProfile(t, s, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.XPTotal)
}

func testSetLeague(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "7", "Ben")
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		return tx.SetLeague(ctx, "7", "Experto")
	}))
	p, err := getProfile(t, s, "7")
	require.NoError(t, err)
	assert.Equal(t, "Experto", p.League)

	err = s.Update(ctx, func(tx ledger.Tx) error {
		return tx.SetLeague(ctx, "missing", "Experto")
	})
	assert.True(t, shared.IsNotFound(err), "got %v", err)
}

func testList(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "b", "Bea")
	mustCreate(t, s, "a", "Ada")
	mustCreate(t, s, "c", "Cid")

	var list []*user.Profile
	require.NoError(t, s.View(context.Background(), func(tx ledger.Tx) error {
		var err error
		list, err = tx.List(context.Background())
		return err
	}))
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func testAppendAssignsDefaults(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	before := time.Now().Add(-time.Second)

	var logID string
	require.NoError(t, s.Update(context.Background(), func(tx ledger.Tx) error {
		var err error
		logID, err = tx.Append(context.Background(), activity.Record{UserID: "1", XPDelta: 5, Kind: activity.KindSleep})
		return err
	}))
	assert.NotEmpty(t, logID)

	recs := scanAll(t, s, time.Time{}, time.Now().Add(time.Hour))
	require.Len(t, recs, 1)
	assert.Equal(t, logID, recs[0].LogID)
	assert.Equal(t, "1", recs[0].UserID)
	assert.Equal(t, int64(5), recs[0].XPDelta)
	assert.Equal(t, activity.KindSleep, recs[0].Kind)
	assert.True(t, recs[0].RecordedAt.After(before), "recorded_at %v", recs[0].RecordedAt)
}

func testAppendRejectsInvalid(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	for name, r := range map[string]activity.Record{
		"empty user":     {UserID: "", XPDelta: 1, Kind: activity.KindStudy},
		"negative delta": {UserID: "1", XPDelta: -3, Kind: activity.KindStudy},
	} {
		err := s.Update(ctx, func(tx ledger.Tx) error {
			_, err := tx.Append(ctx, r)
			return err
		})
		assert.True(t, errors.Is(err, shared.ErrInvalidRecord) || shared.IsValidation(err), "%s: got %v", name, err)
	}
	assert.Empty(t, scanAll(t, s, time.Time{}, time.Now().Add(time.Hour)))
}

func testAppendRejectsDuplicateLogID(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	mustAppend(t, s, rec("log-1", "1", 10, base.Add(time.Minute)))

	err := s.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.Append(context.Background(), rec("log-1", "1", 99, base.Add(2*time.Minute)))
		return err
	})
	assert.True(t, shared.IsAlreadyExists(err), "got %v", err)

	recs := scanAll(t, s, time.Time{}, base.Add(time.Hour))
	require.Len(t, recs, 1)
	assert.Equal(t, int64(10), recs[0].XPDelta)
}

func testAppendUnknownUser(t *testing.T, s ledger.Store) {
	err := s.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.Append(context.Background(), rec("orphan", "ghost", 10, base.Add(time.Minute)))
		return err
	})
	assert.True(t, shared.IsNotFound(err), "got %v", err)
	assert.Empty(t, scanAll(t, s, time.Time{}, base.Add(time.Hour)))
}

func testScanWindowBounds(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	mustAppend(t, s,
		rec("a", "1", 1, base),
		rec("b", "1", 2, base.Add(time.Minute)),
		rec("c", "1", 3, base.Add(2*time.Minute)),
		rec("d", "1", 4, base.Add(3*time.Minute)),
	)

	// since is exclusive, until inclusive
	recs := scanAll(t, s, base, base.Add(2*time.Minute))
	assert.Equal(t, []string{"b", "c"}, logIDs(recs))

	assert.Empty(t, scanAll(t, s, base.Add(3*time.Minute), base.Add(time.Hour)))
	assert.Len(t, scanAll(t, s, time.Time{}, base.Add(time.Hour)), 4)
}

func testScanOrderAndTies(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	mustCreate(t, s, "2", "Ben")
	at := base.Add(time.Minute)
	mustAppend(t, s,
		rec("z", "1", 1, base.Add(5*time.Minute)),
		rec("m", "2", 1, at),
		rec("b", "1", 1, at),
		rec("q", "2", 1, base.Add(2*time.Minute)),
	)

	recs := scanAll(t, s, time.Time{}, base.Add(time.Hour))
	assert.Equal(t, []string{"b", "m", "q", "z"}, logIDs(recs))
}

func testScanRestartable(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	mustAppend(t, s, rec("a", "1", 1, base.Add(time.Second)), rec("b", "1", 2, base.Add(2*time.Second)))

	require.NoError(t, s.View(context.Background(), func(tx ledger.Tx) error {
		seq := tx.Scan(context.Background(), base, base.Add(time.Minute))
		first, err := activity.Collect(seq)
		require.NoError(t, err)
		second, err := activity.Collect(seq)
		require.NoError(t, err)
		assert.Equal(t, logIDs(first), logIDs(second))
		assert.Len(t, first, 2)
		return nil
	}))
}

func testScanEarlyBreak(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	for i := 0; i < 5; i++ {
		mustAppend(t, s, rec(fmt.Sprintf("r%d", i), "1", 1, base.Add(time.Duration(i+1)*time.Second)))
	}

	require.NoError(t, s.View(context.Background(), func(tx ledger.Tx) error {
		n := 0
		for _, err := range tx.Scan(context.Background(), base, base.Add(time.Minute)) {
			require.NoError(t, err)
			n++
			if n == 2 {
				break
			}
		}
		assert.Equal(t, 2, n)
		return nil
	}))
}

func testScanSeesOwnWrites(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	mustAppend(t, s, rec("a", "1", 1, base.Add(time.Second)))
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Append(ctx, rec("b", "1", 2, base.Add(2*time.Second))); err != nil {
			return err
		}
		recs, err := activity.Collect(tx.Scan(ctx, base, base.Add(time.Minute)))
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"a", "b"}, logIDs(recs))
		return nil
	}))
}

func testUpdateRollsBack(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Append(ctx, rec("x", "1", 50, base.Add(time.Second))); err != nil {
			return err
		}
		if _, err := tx.ApplyXPDelta(ctx, "1", 50); err != nil {
			return err
		}
		if _, err := tx.Create(ctx, "2", "Ben", "Novato", base); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := getProfile(t, s, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.XPTotal)
	_, err = getProfile(t, s, "2")
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, scanAll(t, s, time.Time{}, base.Add(time.Hour)))
}

func testViewIsReadOnly(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	ctx := context.Background()

	_ = s.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.ApplyXPDelta(ctx, "1", 10)
		return err
	})

	p, err := getProfile(t, s, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.XPTotal)
}

func testConcurrentDeltas(t *testing.T, s ledger.Store) {
	mustCreate(t, s, "1", "Ana")
	ctx := context.Background()

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				errs <- s.Update(ctx, func(tx ledger.Tx) error {
					if _, err := tx.Append(ctx, activity.Record{UserID: "1", XPDelta: 1, Kind: activity.KindStudy}); err != nil {
						return err
					}
					_, err := tx.ApplyXPDelta(ctx, "1", 1)
					return err
				})
			}
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			failed++
		}
	}

	p, err := getProfile(t, s, "1")
	require.NoError(t, err)
	recs := scanAll(t, s, time.Time{}, time.Now().Add(time.Hour))
	assert.Equal(t, int64(len(recs)), p.XPTotal)
	assert.Equal(t, workers*perWorker-failed, len(recs))
}
