// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
	"github.com/uconnect/uconnect-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING ENGINE
// Считает рейтинг за скользящее окно (now - window, now] прямо по журналу.
// Кеш и singleflight только ускоряют ответ, результат от них не зависит.
// ══════════════════════════════════════════════════════════════════════════════

// Источники ответа для метрик.
const (
	SourceCache    = "cache"
	SourceComputed = "computed"
	SourceShared   = "shared"
)

// Виды несогласованности данных.
const (
	InconsistencyMissingUser  = "missing_user"
	InconsistencyTotal        = "total_mismatch"
	InconsistencyStaleLeague  = "stale_league"
	InconsistencyOrphanRecord = "orphan_record"
)

// DefaultMaxLimit - верхняя граница лимита рейтинга.
const DefaultMaxLimit = 100

// RankingRecorder принимает метрики чтения. *metrics.Metrics подходит.
type RankingRecorder interface {
	ObserveRanking(source string)
	ObserveRankingCompute(d time.Duration)
	Inconsistency(kind string)
}

// RankingEngineConfig - зависимости и настройки движка.
type RankingEngineConfig struct {
	Store ledger.Store

	// Cache - необязательный кеш снапшотов.
	Cache leaderboard.Cache

	// DefaultWindow используется при window == 0.
	DefaultWindow time.Duration

	// DefaultLimit используется при limit == 0, MaxLimit ограничивает сверху.
	DefaultLimit int
	MaxLimit     int

	Clock   timeutil.Clock
	Metrics RankingRecorder
	Logger  *logger.Logger
}

// RankingEngine вычисляет оконный рейтинг.
type RankingEngine struct {
	store         ledger.Store
	cache         leaderboard.Cache
	defaultWindow time.Duration
	defaultLimit  int
	maxLimit      int
	now           timeutil.Clock
	metrics       RankingRecorder
	log           *logger.Logger
	group         singleflight.Group
}

// NewRankingEngine создаёт движок рейтинга.
func NewRankingEngine(cfg RankingEngineConfig) *RankingEngine {
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = timeutil.Periods[timeutil.PeriodWeekly]
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = leaderboard.DefaultLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = max(DefaultMaxLimit, cfg.DefaultLimit)
	}
	if cfg.Clock == nil {
		cfg.Clock = activity.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &RankingEngine{
		store:         cfg.Store,
		cache:         cfg.Cache,
		defaultWindow: cfg.DefaultWindow,
		defaultLimit:  cfg.DefaultLimit,
		maxLimit:      cfg.MaxLimit,
		now:           cfg.Clock,
		metrics:       cfg.Metrics,
		log:           cfg.Logger.With(logger.Component("ranking_engine")),
	}
}

// Normalize применяет значения по умолчанию и проверяет параметры.
// Нулевые значения заменяются на значения по умолчанию, отрицательные
// отклоняются, слишком большой лимит обрезается до MaxLimit.
func (e *RankingEngine) Normalize(window time.Duration, limit int) (time.Duration, int, error) {
	if window < 0 {
		return 0, 0, shared.ErrInvalidWindow
	}
	if window == 0 {
		window = e.defaultWindow
	}
	if limit < 0 {
		return 0, 0, shared.ErrInvalidLimit
	}
	if limit == 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	return window, limit, nil
}

// ComputeRanking возвращает не более limit участников с активностью за
// окно: XP по убыванию, при равенстве user_id по возрастанию. Пустой
// журнал даёт пустой срез.
func (e *RankingEngine) ComputeRanking(ctx context.Context, window time.Duration, limit int) ([]leaderboard.Standing, error) {
	snap, err := e.Snapshot(ctx, window, limit)
	if err != nil {
		return nil, err
	}
	return snap.Entries, nil
}

// Snapshot возвращает рейтинг вместе с границами окна.
func (e *RankingEngine) Snapshot(ctx context.Context, window time.Duration, limit int) (*leaderboard.Snapshot, error) {
	window, limit, err := e.Normalize(window, limit)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := leaderboard.Key{Window: window, Limit: limit}

	gen, cached := e.cachedGeneration(ctx)
	if cached {
		snap, err := e.cache.Get(ctx, gen, key)
		switch {
		case err == nil:
			e.observe(SourceCache)
			return snap, nil
		case !errors.Is(err, leaderboard.ErrCacheMiss):
			e.log.Warn("ranking cache read failed", logger.Err(err))
		}
	}

	flightKey := fmt.Sprintf("%d/%s", gen, key)
	if !cached {
		flightKey = "nocache/" + key.String()
	}

	// Вычисление общее для всех ожидающих, поэтому отвязано от отмены
	// первого вызова. Каждый вызывающий ждёт только свой ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(flightKey, func() (interface{}, error) {
		snap, err := e.compute(flightCtx, window, limit)
		if err != nil {
			return nil, err
		}
		if cached {
			if err := e.cache.Put(flightCtx, gen, snap); err != nil {
				e.log.Warn("ranking cache write failed", logger.Err(err))
			}
		}
		return snap, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	if res.Shared {
		e.observe(SourceShared)
	} else {
		e.observe(SourceComputed)
	}

	// Снапшот общий для всех ожидавших, отдаём копию.
	snap := *res.Val.(*leaderboard.Snapshot)
	snap.Entries = append([]leaderboard.Standing{}, snap.Entries...)
	return &snap, nil
}

// cachedGeneration возвращает поколение кеша. false - кеш не используется.
func (e *RankingEngine) cachedGeneration(ctx context.Context) (int64, bool) {
	if e.cache == nil {
		return 0, false
	}
	gen, err := e.cache.Generation(ctx)
	if err != nil {
		e.log.Debug("ranking cache unavailable", logger.Err(err))
		return 0, false
	}
	return gen, true
}

func (e *RankingEngine) compute(ctx context.Context, window time.Duration, limit int) (*leaderboard.Snapshot, error) {
	start := time.Now()
	now := e.now()
	since := now.Add(-window)

	snap := &leaderboard.Snapshot{
		Window:     window,
		Limit:      limit,
		Since:      since,
		Until:      now,
		ComputedAt: now,
		Entries:    []leaderboard.Standing{},
	}

	err := e.store.View(ctx, func(tx ledger.Tx) error {
		tally, err := tallyWindow(ctx, tx, since, now)
		if err != nil {
			return err
		}
		snap.Participants = tally.Len()

		top := leaderboard.Top(tally.Ranked(), limit)
		for i := range top {
			name, err := e.displayName(ctx, tx, top[i].UserID)
			if err != nil {
				return err
			}
			top[i].DisplayName = name
		}
		snap.Entries = top
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.ObserveRankingCompute(time.Since(start))
	}
	e.log.Debug("ranking computed",
		logger.Window(window),
		logger.Int("participants", snap.Participants),
		logger.Latency(time.Since(start)),
	)
	return snap, nil
}

// displayName подставляет UnknownUserName, если пользователя нет.
func (e *RankingEngine) displayName(ctx context.Context, tx ledger.Tx, userID string) (string, error) {
	p, err := tx.Get(ctx, userID)
	if shared.IsNotFound(err) {
		e.inconsistency(InconsistencyMissingUser,
			shared.WrapError("ranking", "ComputeRanking", shared.ErrDataInconsistency, "ledger record references unknown user", err),
			logger.UserID(userID),
		)
		return leaderboard.UnknownUserName, nil
	}
	if err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK POSITION
// ══════════════════════════════════════════════════════════════════════════════

// RankPosition - место одного пользователя в окне.
type RankPosition struct {
	UserID string `json:"user_id"`

	// Position - 1..N, 0 если активности в окне нет.
	Position     shared.Rank   `json:"position"`
	XP           int64         `json:"xp_in_window"`
	Participants int           `json:"participants"`
	Window       time.Duration `json:"-"`
}

// Position возвращает место пользователя в рейтинге за окно.
// Незарегистрированный пользователь даёт shared.ErrUserNotFound.
func (e *RankingEngine) Position(ctx context.Context, userID string, window time.Duration) (*RankPosition, error) {
	window, _, err := e.Normalize(window, 0)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var pos *RankPosition
	err = e.store.View(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Get(ctx, userID); err != nil {
			return err
		}
		tally, err := tallyWindow(ctx, tx, now.Add(-window), now)
		if err != nil {
			return err
		}
		rank, xp := tally.Position(userID)
		pos = &RankPosition{
			UserID:       userID,
			Position:     rank,
			XP:           xp,
			Participants: tally.Len(),
			Window:       window,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("rank position", logger.UserID(userID), logger.RankPosition(pos.Position.Int()))
	return pos, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// tallyWindow суммирует XP за (since, until]. Журнал вычитывается целиком
// до следующих запросов в той же транзакции.
func tallyWindow(ctx context.Context, tx ledger.Tx, since, until time.Time) (*leaderboard.Tally, error) {
	tally := leaderboard.NewTally()
	for rec, err := range tx.Scan(ctx, since, until) {
		if err != nil {
			return nil, err
		}
		tally.Add(rec.UserID, rec.XPDelta)
	}
	return tally, nil
}

func (e *RankingEngine) observe(source string) {
	if e.metrics != nil {
		e.metrics.ObserveRanking(source)
	}
}

func (e *RankingEngine) inconsistency(kind string, err error, fields ...logger.Field) {
	if e.metrics != nil {
		e.metrics.Inconsistency(kind)
	}
	e.log.Warn("data inconsistency", append(fields, logger.String("kind", kind), logger.Err(err))...)
}
