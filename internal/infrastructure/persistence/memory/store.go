// Package memory is a process-local ledger.Store for tests and development.
// Nothing survives a restart.
package memory

import (
	"context"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
)

// Store keeps both tables in maps guarded by one RWMutex. Writers stage
// their changes and apply them only when the callback succeeds.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*user.Profile
	records []activity.Record // sorted by activity.Less
	logIDs  map[string]struct{}
	now     func() time.Time
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:  make(map[string]*user.Profile),
		logIDs: make(map[string]struct{}),
		now:    activity.Now,
	}
}

var _ ledger.Store = (*Store)(nil)

// Name implements ledger.Store.
func (s *Store) Name() string { return "memory" }

// Close implements ledger.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping implements ledger.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return shared.StorageError("Ping", errClosed)
	}
	return ctx.Err()
}

// Update implements ledger.Store.
func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return shared.StorageError("Update", errClosed)
	}

	tx := newTx(s, true)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View implements ledger.Store.
func (s *Store) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return shared.StorageError("View", errClosed)
	}
	return fn(newTx(s, false))
}

type closedError struct{}

func (closedError) Error() string { return "memory store is closed" }

var errClosed = closedError{}

// tx overlays staged writes on the committed state.
type tx struct {
	s        *Store
	writable bool

	created  map[string]*user.Profile
	totals   map[string]int64
	leagues  map[string]string
	appended []activity.Record
	ids      map[string]struct{}
}

func newTx(s *Store, writable bool) *tx {
	return &tx{
		s:        s,
		writable: writable,
		created:  make(map[string]*user.Profile),
		totals:   make(map[string]int64),
		leagues:  make(map[string]string),
		ids:      make(map[string]struct{}),
	}
}

func (t *tx) commit() {
	for id, p := range t.created {
		t.s.users[id] = p
	}
	for id, total := range t.totals {
		t.s.users[id].XPTotal = total
	}
	for id, l := range t.leagues {
		t.s.users[id].League = l
	}
	for _, rec := range t.appended {
		i := sort.Search(len(t.s.records), func(i int) bool { return activity.Less(rec, t.s.records[i]) })
		t.s.records = slices.Insert(t.s.records, i, rec)
		t.s.logIDs[rec.LogID] = struct{}{}
	}
}

func (t *tx) lookup(id string) (*user.Profile, bool) {
	var p *user.Profile
	if c, ok := t.created[id]; ok {
		p = c.Clone()
	} else if b, ok := t.s.users[id]; ok {
		p = b.Clone()
	} else {
		return nil, false
	}
	if total, ok := t.totals[id]; ok {
		p.XPTotal = total
	}
	if l, ok := t.leagues[id]; ok {
		p.League = l
	}
	return p, true
}

func (t *tx) readOnly(op string) error {
	return shared.NewDomainError("storage", op, shared.ErrStorage, "write attempted in read-only transaction")
}

// Get implements user.Store.
func (t *tx) Get(ctx context.Context, id string) (*user.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := t.lookup(id)
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return p, nil
}

// Create implements user.Store.
func (t *tx) Create(ctx context.Context, id, displayName, league string, createdAt time.Time) (*user.Profile, error) {
	if !t.writable {
		return nil, t.readOnly("Create")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, shared.ErrInvalidUserID
	}
	if _, ok := t.lookup(id); ok {
		return nil, shared.ErrUserAlreadyExists
	}
	p := &user.Profile{
		ID:          id,
		DisplayName: displayName,
		XPTotal:     0,
		League:      league,
		CreatedAt:   createdAt.UTC(),
	}
	t.created[id] = p
	return p.Clone(), nil
}

// ApplyXPDelta implements user.Store.
func (t *tx) ApplyXPDelta(ctx context.Context, id string, delta int64) (int64, error) {
	if !t.writable {
		return 0, t.readOnly("ApplyXPDelta")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if delta < 0 {
		return 0, shared.ErrNegativeDelta
	}
	p, ok := t.lookup(id)
	if !ok {
		return 0, shared.ErrUserNotFound
	}
	total := p.XPTotal + delta
	t.totals[id] = total
	return total, nil
}

// SetLeague implements user.Store.
func (t *tx) SetLeague(ctx context.Context, id, league string) error {
	if !t.writable {
		return t.readOnly("SetLeague")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.lookup(id); !ok {
		return shared.ErrUserNotFound
	}
	t.leagues[id] = league
	return nil
}

// List implements user.Store.
func (t *tx) List(ctx context.Context) ([]*user.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*user.Profile, 0, len(t.s.users)+len(t.created))
	for id := range t.s.users {
		p, _ := t.lookup(id)
		out = append(out, p)
	}
	for id := range t.created {
		p, _ := t.lookup(id)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Append implements activity.Ledger.
func (t *tx) Append(ctx context.Context, rec activity.Record) (string, error) {
	if !t.writable {
		return "", t.readOnly("Append")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if _, ok := t.lookup(rec.UserID); !ok {
		return "", shared.ErrUserNotFound
	}
	rec, err := rec.WithDefaults(t.s.now)
	if err != nil {
		return "", err
	}
	if _, dup := t.s.logIDs[rec.LogID]; dup {
		return "", shared.ErrDuplicateLogID
	}
	if _, dup := t.ids[rec.LogID]; dup {
		return "", shared.ErrDuplicateLogID
	}
	t.ids[rec.LogID] = struct{}{}
	t.appended = append(t.appended, rec)
	return rec.LogID, nil
}

// Scan implements activity.Ledger.
func (t *tx) Scan(ctx context.Context, since, until time.Time) iter.Seq2[activity.Record, error] {
	return func(yield func(activity.Record, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(activity.Record{}, err)
			return
		}
		window := shared.TimeRange{From: since, To: until}

		var staged []activity.Record
		for _, rec := range t.appended {
			if window.Contains(rec.RecordedAt) {
				staged = append(staged, rec)
			}
		}
		sort.Slice(staged, func(i, j int) bool { return activity.Less(staged[i], staged[j]) })

		base := t.s.records
		i := sort.Search(len(base), func(i int) bool { return base[i].RecordedAt.After(since) })
		j := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(activity.Record{}, err)
				return
			}
			var next activity.Record
			switch {
			case i < len(base) && window.Contains(base[i].RecordedAt) &&
				(j >= len(staged) || activity.Less(base[i], staged[j])):
				next = base[i]
				i++
			case j < len(staged):
				next = staged[j]
				j++
			default:
				return
			}
			if !yield(next, nil) {
				return
			}
		}
	}
}
