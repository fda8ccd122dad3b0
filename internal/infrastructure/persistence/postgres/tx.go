package postgres

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
)

const (
	selectUser = `
		SELECT user_id, display_name, xp_total, league, created_at
		FROM users WHERE user_id = $1`

	insertUser = `
		INSERT INTO users (user_id, display_name, xp_total, league, created_at)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`

	addXP = `
		UPDATE users SET xp_total = xp_total + $2
		WHERE user_id = $1
		RETURNING xp_total`

	updateLeague = `UPDATE users SET league = $2 WHERE user_id = $1`

	listUsers = `
		SELECT user_id, display_name, xp_total, league, created_at
		FROM users ORDER BY user_id`

	lockUser = `SELECT 1 FROM users WHERE user_id = $1 FOR SHARE`

	insertRecord = `
		INSERT INTO activity_log (log_id, user_id, xp_delta, activity_kind, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (log_id) DO NOTHING`

	scanWindow = `
		SELECT log_id, user_id, xp_delta, activity_kind, recorded_at
		FROM activity_log
		WHERE recorded_at > $1 AND recorded_at <= $2
		ORDER BY recorded_at, log_id`
)

// tx adapts a pgx transaction to ledger.Tx.
type tx struct {
	tx       pgx.Tx
	writable bool
}

func (t *tx) readOnly(op string) error {
	return shared.NewDomainError("storage", op, shared.ErrStorage, "write attempted in read-only transaction")
}

func scanProfile(row pgx.Row) (*user.Profile, error) {
	var p user.Profile
	if err := row.Scan(&p.ID, &p.DisplayName, &p.XPTotal, &p.League, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// Get implements user.Store.
func (t *tx) Get(ctx context.Context, id string) (*user.Profile, error) {
	p, err := scanProfile(t.tx.QueryRow(ctx, selectUser, id))
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, shared.StorageError("Get", err)
	}
	return p, nil
}

// Create implements user.Store.
func (t *tx) Create(ctx context.Context, id, displayName, league string, createdAt time.Time) (*user.Profile, error) {
	if !t.writable {
		return nil, t.readOnly("Create")
	}
	if strings.TrimSpace(id) == "" {
		return nil, shared.ErrInvalidUserID
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	tag, err := t.tx.Exec(ctx, insertUser, id, displayName, league, createdAt)
	if err != nil {
		return nil, shared.StorageError("Create", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrUserAlreadyExists
	}
	return &user.Profile{
		ID:          id,
		DisplayName: displayName,
		League:      league,
		CreatedAt:   createdAt,
	}, nil
}

// ApplyXPDelta implements user.Store. The UPDATE takes the row lock, so
// concurrent writers of the same user queue behind each other.
func (t *tx) ApplyXPDelta(ctx context.Context, id string, delta int64) (int64, error) {
	if !t.writable {
		return 0, t.readOnly("ApplyXPDelta")
	}
	if delta < 0 {
		return 0, shared.ErrNegativeDelta
	}
	var total int64
	err := t.tx.QueryRow(ctx, addXP, id, delta).Scan(&total)
	if IsNoRows(err) {
		return 0, shared.ErrUserNotFound
	}
	if err != nil {
		return 0, shared.StorageError("ApplyXPDelta", err)
	}
	return total, nil
}

// SetLeague implements user.Store.
func (t *tx) SetLeague(ctx context.Context, id, league string) error {
	if !t.writable {
		return t.readOnly("SetLeague")
	}
	tag, err := t.tx.Exec(ctx, updateLeague, id, league)
	if err != nil {
		return shared.StorageError("SetLeague", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// List implements user.Store.
func (t *tx) List(ctx context.Context) ([]*user.Profile, error) {
	rows, err := t.tx.Query(ctx, listUsers)
	if err != nil {
		return nil, shared.StorageError("List", err)
	}
	defer rows.Close()

	var out []*user.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, shared.StorageError("List", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageError("List", err)
	}
	return out, nil
}

// Append implements activity.Ledger.
func (t *tx) Append(ctx context.Context, rec activity.Record) (string, error) {
	if !t.writable {
		return "", t.readOnly("Append")
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	rec, err := rec.WithDefaults(activity.Now)
	if err != nil {
		return "", err
	}
	rec.RecordedAt = rec.RecordedAt.Truncate(time.Microsecond)

	var one int
	if err := t.tx.QueryRow(ctx, lockUser, rec.UserID).Scan(&one); err != nil {
		if IsNoRows(err) {
			return "", shared.ErrUserNotFound
		}
		return "", shared.StorageError("Append", err)
	}

	tag, err := t.tx.Exec(ctx, insertRecord, rec.LogID, rec.UserID, rec.XPDelta, rec.Kind.String(), rec.RecordedAt)
	switch {
	case IsForeignKeyViolation(err):
		return "", shared.ErrUserNotFound
	case err != nil:
		return "", shared.StorageError("Append", err)
	case tag.RowsAffected() == 0:
		return "", shared.ErrDuplicateLogID
	}
	return rec.LogID, nil
}

// Scan implements activity.Ledger. Each range issues a fresh query.
func (t *tx) Scan(ctx context.Context, since, until time.Time) iter.Seq2[activity.Record, error] {
	return func(yield func(activity.Record, error) bool) {
		rows, err := t.tx.Query(ctx, scanWindow, since.UTC(), until.UTC())
		if err != nil {
			yield(activity.Record{}, shared.StorageError("Scan", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r activity.Record
			var kind string
			if err := rows.Scan(&r.LogID, &r.UserID, &r.XPDelta, &kind, &r.RecordedAt); err != nil {
				yield(activity.Record{}, shared.StorageError("Scan", err))
				return
			}
			r.Kind = activity.Kind(kind)
			r.RecordedAt = r.RecordedAt.UTC()
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(activity.Record{}, shared.StorageError("Scan", err))
		}
	}
}
