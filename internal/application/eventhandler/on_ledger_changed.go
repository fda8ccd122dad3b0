// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже закоммиченные изменения леджера и запускают
// побочные эффекты, такие как сброс кеша рейтинга.
package eventhandler

import (
	"context"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/leaderboard"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEDGER CHANGED HANDLER
// Сбрасывает кеш рейтинга после каждой записи в леджер.
// ═══════════════════════════════════════════════════════════════════════════

// DefaultInvalidateTimeout ограничивает время сброса кеша.
// Медленный Redis не должен задерживать ответ на запись.
const DefaultInvalidateTimeout = time.Second

// OnLedgerChangedHandler инвалидирует снимки рейтинга.
type OnLedgerChangedHandler struct {
	cache   leaderboard.Cache
	timeout time.Duration
	log     *logger.Logger
}

// NewOnLedgerChangedHandler создаёт обработчик. cache может быть nil,
// тогда обработчик только логирует события.
func NewOnLedgerChangedHandler(cache leaderboard.Cache, log *logger.Logger) *OnLedgerChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnLedgerChangedHandler{
		cache:   cache,
		timeout: DefaultInvalidateTimeout,
		log:     log.With(logger.String("handler", "on_ledger_changed")),
	}
}

// Register подписывает обработчик на события леджера.
func (h *OnLedgerChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventXPGained, shared.EventUserRegistered} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return bus.Subscribe(shared.EventLeagueChanged, h.HandleLeagueChanged)
}

// Handle реализует shared.EventHandler.
// Ошибка сброса не откатывает запись: снимок доживёт максимум до своего TTL.
func (h *OnLedgerChangedHandler) Handle(event shared.Event) error {
	if h.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx); err != nil {
		h.log.Warn("ranking cache invalidation failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
		return err
	}
	return nil
}

// HandleLeagueChanged логирует переход пользователя в другую лигу.
func (h *OnLedgerChangedHandler) HandleLeagueChanged(event shared.Event) error {
	e, ok := event.(shared.LeagueChangedEvent)
	if !ok {
		h.log.Warn("received non-LeagueChangedEvent",
			logger.String("event_type", string(event.EventType())),
		)
		return nil
	}

	h.log.Info("user changed league",
		logger.UserID(e.UserID),
		logger.String("old_league", e.OldLeague),
		logger.String("new_league", e.NewLeague),
		logger.Int64("xp_total", e.XPTotal),
	)
	return nil
}
