package query

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/league"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Профиль пользователя для бота и HTML-страницы: XP, лига и сколько
// осталось до следующей.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileDTO - профиль пользователя.
type ProfileDTO struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	XPTotal     int64     `json:"xp_total"`
	League      string    `json:"league"`
	CreatedAt   time.Time `json:"created_at"`

	// NextLeague пуст на последней лиге.
	NextLeague     string `json:"next_league,omitempty"`
	XPToNextLeague int64  `json:"xp_to_next_league,omitempty"`
}

// ActivityDTO - одна запись журнала в истории пользователя.
type ActivityDTO struct {
	LogID      string    `json:"log_id"`
	Kind       string    `json:"activity_kind"`
	XP         int64     `json:"xp_delta"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ActivityHistoryDTO - история пользователя за окно.
type ActivityHistoryDTO struct {
	UserID     string        `json:"user_id"`
	Since      time.Time     `json:"since"`
	Until      time.Time     `json:"until"`
	XPInWindow int64         `json:"xp_in_window"`
	Count      int           `json:"count"`
	Activities []ActivityDTO `json:"activities"`
}

// ProfileReader отвечает на запросы о пользователе.
type ProfileReader struct {
	store   ledger.Store
	leagues *league.Table
	now     func() time.Time
	log     *logger.Logger
}

// NewProfileReader создаёт ProfileReader.
func NewProfileReader(store ledger.Store, leagues *league.Table, log *logger.Logger) *ProfileReader {
	if log == nil {
		log = logger.Nop()
	}
	return &ProfileReader{
		store:   store,
		leagues: leagues,
		now:     activity.Now,
		log:     log.With(logger.Component("profile_reader")),
	}
}

// GetProfile возвращает профиль. Лига пересчитывается по XPTotal:
// сохранённое значение - только кеш последней записи.
func (r *ProfileReader) GetProfile(ctx context.Context, userID string) (*ProfileDTO, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}

	var dto *ProfileDTO
	err := r.store.View(ctx, func(tx ledger.Tx) error {
		p, err := tx.Get(ctx, userID)
		if err != nil {
			return err
		}
		dto = &ProfileDTO{
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			XPTotal:     p.XPTotal,
			League:      r.leagues.Resolve(p.XPTotal),
			CreatedAt:   p.CreatedAt,
		}
		if dto.League != p.League {
			r.log.Debug("stored league is stale",
				logger.UserID(userID),
				logger.String("stored", p.League),
				logger.String("resolved", dto.League),
			)
		}
		if next, missing, ok := r.leagues.Next(p.XPTotal); ok {
			dto.NextLeague = next.Name
			dto.XPToNextLeague = missing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// History возвращает записи пользователя за окно (now - window, now],
// новые первыми, не более limit штук. XPInWindow считается по всем записям окна.
func (r *ProfileReader) History(ctx context.Context, userID string, window time.Duration, limit int) (*ActivityHistoryDTO, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	if window <= 0 {
		return nil, shared.ErrInvalidWindow
	}
	if limit < 0 {
		return nil, shared.ErrInvalidLimit
	}

	now := r.now()
	out := &ActivityHistoryDTO{
		UserID:     userID,
		Since:      now.Add(-window),
		Until:      now,
		Activities: []ActivityDTO{},
	}

	err := r.store.View(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Get(ctx, userID); err != nil {
			return err
		}
		for rec, err := range tx.Scan(ctx, out.Since, out.Until) {
			if err != nil {
				return err
			}
			if rec.UserID != userID {
				continue
			}
			out.XPInWindow += rec.XPDelta
			out.Activities = append(out.Activities, ActivityDTO{
				LogID:      rec.LogID,
				Kind:       rec.Kind.String(),
				XP:         rec.XPDelta,
				RecordedAt: rec.RecordedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Count = len(out.Activities)
	// Scan отдаёт записи по возрастанию времени.
	slices.Reverse(out.Activities)
	if limit > 0 && len(out.Activities) > limit {
		out.Activities = out.Activities[:limit]
	}
	return out, nil
}
