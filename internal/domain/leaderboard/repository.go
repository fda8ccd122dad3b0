package leaderboard

import (
	"context"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

// ErrCacheMiss возвращается кешем, если снапшота нет или он устарел.
var ErrCacheMiss = shared.NewDomainError("ranking", "Cache", shared.ErrNotFound, "ranking not cached")

// ══════════════════════════════════════════════════════════════════════════════
// RANKING CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Cache хранит готовые снапшоты рейтинга. Реализация в infrastructure
// (Redis). Кеш - только ускорение: при любой ошибке рейтинг считается
// по журналу.
//
// Снапшоты привязаны к поколению. Читатель берёт поколение до расчёта и
// сохраняет результат под ним же, поэтому снапшот, посчитанный во время
// конкурентной записи, попадает в уже устаревшее поколение и не читается.
type Cache interface {
	// Generation возвращает текущее поколение.
	Generation(ctx context.Context) (int64, error)

	// Get возвращает снапшот поколения gen или ErrCacheMiss.
	Get(ctx context.Context, gen int64, key Key) (*Snapshot, error)

	// Put сохраняет снапшот под поколением gen с TTL реализации.
	Put(ctx context.Context, gen int64, snap *Snapshot) error

	// Invalidate начинает новое поколение. Вызывается после каждой
	// зафиксированной записи в журнал.
	Invalidate(ctx context.Context) error
}
