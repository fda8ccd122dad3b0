package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
)

var (
	userPrefix  = []byte("u/")
	logPrefix   = []byte("l/")
	indexPrefix = []byte("i/")
)

type profileValue struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	XPTotal     int64  `json:"xp_total"`
	League      string `json:"league"`
	CreatedAt   int64  `json:"created_at"`
}

type recordValue struct {
	LogID      string `json:"log_id"`
	UserID     string `json:"user_id"`
	XPDelta    int64  `json:"xp_delta"`
	Kind       string `json:"activity_kind"`
	RecordedAt int64  `json:"recorded_at"`
}

func userKey(id string) []byte {
	return append(append([]byte{}, userPrefix...), id...)
}

func indexKey(logID string) []byte {
	return append(append([]byte{}, indexPrefix...), logID...)
}

// encodeMicros maps a signed timestamp onto bytes that sort in time order.
func encodeMicros(us int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(us)^(1<<63))
	return b[:]
}

func logKey(recordedAt time.Time, logID string) []byte {
	k := make([]byte, 0, len(logPrefix)+8+len(logID))
	k = append(k, logPrefix...)
	k = append(k, encodeMicros(recordedAt.UnixMicro())...)
	return append(k, logID...)
}

type tx struct {
	txn      *badger.Txn
	writable bool
}

func (t *tx) readOnly(op string) error {
	return shared.NewDomainError("storage", op, shared.ErrStorage, "write attempted in read-only transaction")
}

func (t *tx) loadProfile(id string) (*profileValue, error) {
	item, err := t.txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, shared.StorageError("Get", err)
	}
	var v profileValue
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
		return nil, shared.StorageError("Get", err)
	}
	return &v, nil
}

func (t *tx) storeProfile(op string, v *profileValue) error {
	data, err := json.Marshal(v)
	if err != nil {
		return shared.StorageError(op, err)
	}
	return shared.StorageError(op, t.txn.Set(userKey(v.ID), data))
}

func (v *profileValue) toDomain() *user.Profile {
	return &user.Profile{
		ID:          v.ID,
		DisplayName: v.DisplayName,
		XPTotal:     v.XPTotal,
		League:      v.League,
		CreatedAt:   time.UnixMicro(v.CreatedAt).UTC(),
	}
}

// Get implements user.Store.
func (t *tx) Get(ctx context.Context, id string) (*user.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := t.loadProfile(id)
	if err != nil {
		return nil, err
	}
	return v.toDomain(), nil
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
	_, err := t.loadProfile(id)
	switch {
	case err == nil:
		return nil, shared.ErrUserAlreadyExists
	case !shared.IsNotFound(err):
		return nil, err
	}
	v := &profileValue{
		ID:          id,
		DisplayName: displayName,
		League:      league,
		CreatedAt:   createdAt.UnixMicro(),
	}
	if err := t.storeProfile("Create", v); err != nil {
		return nil, err
	}
	return v.toDomain(), nil
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
	v, err := t.loadProfile(id)
	if err != nil {
		return 0, err
	}
	v.XPTotal += delta
	if err := t.storeProfile("ApplyXPDelta", v); err != nil {
		return 0, err
	}
	return v.XPTotal, nil
}

// SetLeague implements user.Store.
func (t *tx) SetLeague(ctx context.Context, id, league string) error {
	if !t.writable {
		return t.readOnly("SetLeague")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := t.loadProfile(id)
	if err != nil {
		return err
	}
	v.League = league
	return t.storeProfile("SetLeague", v)
}

// List implements user.Store.
func (t *tx) List(ctx context.Context) ([]*user.Profile, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = userPrefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out []*user.Profile
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var v profileValue
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
			return nil, shared.StorageError("List", err)
		}
		out = append(out, v.toDomain())
	}
	// Keys are byte-ordered, which matches string order; sort anyway for
	// the pending writes a read-write iterator merges in.
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
	if _, err := t.loadProfile(rec.UserID); err != nil {
		return "", err
	}
	rec, err := rec.WithDefaults(activity.Now)
	if err != nil {
		return "", err
	}

	idx := indexKey(rec.LogID)
	if _, err := t.txn.Get(idx); err == nil {
		return "", shared.ErrDuplicateLogID
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return "", shared.StorageError("Append", err)
	}

	data, err := json.Marshal(recordValue{
		LogID:      rec.LogID,
		UserID:     rec.UserID,
		XPDelta:    rec.XPDelta,
		Kind:       rec.Kind.String(),
		RecordedAt: rec.RecordedAt.UnixMicro(),
	})
	if err != nil {
		return "", shared.StorageError("Append", err)
	}
	key := logKey(rec.RecordedAt, rec.LogID)
	if err := t.txn.Set(key, data); err != nil {
		return "", shared.StorageError("Append", err)
	}
	if err := t.txn.Set(idx, key); err != nil {
		return "", shared.StorageError("Append", err)
	}
	return rec.LogID, nil
}

// Scan implements activity.Ledger.
func (t *tx) Scan(ctx context.Context, since, until time.Time) iter.Seq2[activity.Record, error] {
	return func(yield func(activity.Record, error) bool) {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = logPrefix
		it := t.txn.NewIterator(opts)
		defer it.Close()

		sinceUs, untilUs := since.UnixMicro(), until.UnixMicro()
		seek := append(append([]byte{}, logPrefix...), encodeMicros(sinceUs)...)
		upper := append(append([]byte{}, logPrefix...), encodeMicros(untilUs)...)

		for it.Seek(seek); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				yield(activity.Record{}, err)
				return
			}
			key := it.Item().Key()
			if bytes.Compare(key[:len(upper)], upper) > 0 {
				return
			}
			var v recordValue
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
				yield(activity.Record{}, shared.StorageError("Scan", err))
				return
			}
			if v.RecordedAt <= sinceUs {
				continue
			}
			r := activity.Record{
				LogID:      v.LogID,
				UserID:     v.UserID,
				XPDelta:    v.XPDelta,
				Kind:       activity.Kind(v.Kind),
				RecordedAt: time.UnixMicro(v.RecordedAt).UTC(),
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
