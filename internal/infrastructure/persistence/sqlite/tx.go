package sqlite

import (
	"context"
	"iter"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
)

// Timestamps are stored as unix microseconds so that ordering is numeric.

type userRow struct {
	UserID         string `gorm:"column:user_id;primaryKey"`
	DisplayName    string `gorm:"column:display_name;not null"`
	XPTotal        int64  `gorm:"column:xp_total;not null;default:0"`
	League         string `gorm:"column:league;not null"`
	CreatedAtMicro int64  `gorm:"column:created_at;not null"`
}

func (userRow) TableName() string { return "users" }

func (r userRow) toDomain() *user.Profile {
	return &user.Profile{
		ID:          r.UserID,
		DisplayName: r.DisplayName,
		XPTotal:     r.XPTotal,
		League:      r.League,
		CreatedAt:   time.UnixMicro(r.CreatedAtMicro).UTC(),
	}
}

type activityRow struct {
	LogID           string   `gorm:"column:log_id;primaryKey"`
	UserID          string   `gorm:"column:user_id;not null;index:idx_activity_user"`
	User            *userRow `gorm:"foreignKey:UserID;references:UserID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	XPDelta         int64    `gorm:"column:xp_delta;not null"`
	ActivityKind    string   `gorm:"column:activity_kind;not null"`
	RecordedAtMicro int64    `gorm:"column:recorded_at;not null;index:idx_activity_recorded"`
}

func (activityRow) TableName() string { return "activity_log" }

func (r activityRow) toDomain() activity.Record {
	return activity.Record{
		LogID:      r.LogID,
		UserID:     r.UserID,
		XPDelta:    r.XPDelta,
		Kind:       activity.Kind(r.ActivityKind),
		RecordedAt: time.UnixMicro(r.RecordedAtMicro).UTC(),
	}
}

type tx struct {
	db       *gorm.DB
	writable bool
}

func (t *tx) readOnly(op string) error {
	return shared.NewDomainError("storage", op, shared.ErrStorage, "write attempted in read-only transaction")
}

// Get implements user.Store.
func (t *tx) Get(ctx context.Context, id string) (*user.Profile, error) {
	var rows []userRow
	if err := t.db.WithContext(ctx).Where("user_id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, shared.StorageError("Get", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrUserNotFound
	}
	return rows[0].toDomain(), nil
}

// Create implements user.Store.
func (t *tx) Create(ctx context.Context, id, displayName, league string, createdAt time.Time) (*user.Profile, error) {
	if !t.writable {
		return nil, t.readOnly("Create")
	}
	if strings.TrimSpace(id) == "" {
		return nil, shared.ErrInvalidUserID
	}
	row := userRow{
		UserID:         id,
		DisplayName:    displayName,
		League:         league,
		CreatedAtMicro: createdAt.UnixMicro(),
	}
	res := t.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, shared.StorageError("Create", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, shared.ErrUserAlreadyExists
	}
	return row.toDomain(), nil
}

// ApplyXPDelta implements user.Store.
func (t *tx) ApplyXPDelta(ctx context.Context, id string, delta int64) (int64, error) {
	if !t.writable {
		return 0, t.readOnly("ApplyXPDelta")
	}
	if delta < 0 {
		return 0, shared.ErrNegativeDelta
	}
	res := t.db.WithContext(ctx).Model(&userRow{}).
		Where("user_id = ?", id).
		UpdateColumn("xp_total", gorm.Expr("xp_total + ?", delta))
	if res.Error != nil {
		return 0, shared.StorageError("ApplyXPDelta", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, shared.ErrUserNotFound
	}

	var total int64
	if err := t.db.WithContext(ctx).Model(&userRow{}).
		Where("user_id = ?", id).
		Select("xp_total").
		Scan(&total).Error; err != nil {
		return 0, shared.StorageError("ApplyXPDelta", err)
	}
	return total, nil
}

// SetLeague implements user.Store.
func (t *tx) SetLeague(ctx context.Context, id, league string) error {
	if !t.writable {
		return t.readOnly("SetLeague")
	}
	res := t.db.WithContext(ctx).Model(&userRow{}).
		Where("user_id = ?", id).
		UpdateColumn("league", league)
	if res.Error != nil {
		return shared.StorageError("SetLeague", res.Error)
	}
	if res.RowsAffected == 0 {
		// SQLite counts matched rows, so zero means the user is absent.
		return shared.ErrUserNotFound
	}
	return nil
}

// List implements user.Store.
func (t *tx) List(ctx context.Context) ([]*user.Profile, error) {
	var rows []userRow
	if err := t.db.WithContext(ctx).Order("user_id ASC").Find(&rows).Error; err != nil {
		return nil, shared.StorageError("List", err)
	}
	out := make([]*user.Profile, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
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

	var exists int64
	if err := t.db.WithContext(ctx).Model(&userRow{}).Where("user_id = ?", rec.UserID).Count(&exists).Error; err != nil {
		return "", shared.StorageError("Append", err)
	}
	if exists == 0 {
		return "", shared.ErrUserNotFound
	}

	row := activityRow{
		LogID:           rec.LogID,
		UserID:          rec.UserID,
		XPDelta:         rec.XPDelta,
		ActivityKind:    rec.Kind.String(),
		RecordedAtMicro: rec.RecordedAt.UnixMicro(),
	}
	res := t.db.WithContext(ctx).Omit("User").Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return "", shared.StorageError("Append", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", shared.ErrDuplicateLogID
	}
	return rec.LogID, nil
}

// Scan implements activity.Ledger.
func (t *tx) Scan(ctx context.Context, since, until time.Time) iter.Seq2[activity.Record, error] {
	return func(yield func(activity.Record, error) bool) {
		rows, err := t.db.WithContext(ctx).Model(&activityRow{}).
			Where("recorded_at > ? AND recorded_at <= ?", since.UnixMicro(), until.UnixMicro()).
			Order("recorded_at ASC, log_id ASC").
			Rows()
		if err != nil {
			yield(activity.Record{}, shared.StorageError("Scan", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row activityRow
			if err := t.db.ScanRows(rows, &row); err != nil {
				yield(activity.Record{}, shared.StorageError("Scan", err))
				return
			}
			if !yield(row.toDomain(), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(activity.Record{}, shared.StorageError("Scan", err))
		}
	}
}
