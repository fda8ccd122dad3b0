// Package leaderboard содержит доменную модель оконного рейтинга:
// подсчёт XP за скользящее окно и детерминированный порядок участников.
package leaderboard

import (
	"slices"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

// UnknownUserName подставляется вместо имени, если запись журнала
// ссылается на отсутствующего пользователя.
const UnknownUserName = "Usuario Desconocido"

// DefaultLimit - размер рейтинга, если лимит не указан.
const DefaultLimit = 10

// ══════════════════════════════════════════════════════════════════════════════
// STANDING
// ══════════════════════════════════════════════════════════════════════════════

// Standing - позиция пользователя в рейтинге за окно.
type Standing struct {
	// Position начинается с 1.
	Position shared.Rank `json:"position"`

	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`

	// XP - сумма xp_delta за окно.
	XP int64 `json:"xp_in_window"`
}

// Less задаёт порядок рейтинга: XP по убыванию, при равенстве - user_id
// по возрастанию (см. shared.CompareUserIDs). Порядок строгий: два разных
// пользователя никогда не равны.
func Less(a, b Standing) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	return shared.CompareUserIDs(a.UserID, b.UserID) < 0
}

func compare(a, b Standing) int {
	if a.XP != b.XP {
		if a.XP > b.XP {
			return -1
		}
		return 1
	}
	return shared.CompareUserIDs(a.UserID, b.UserID)
}

// ══════════════════════════════════════════════════════════════════════════════
// TALLY
// ══════════════════════════════════════════════════════════════════════════════

// Tally накапливает суммы XP по пользователям. Только целочисленная
// арифметика. Не потокобезопасен.
type Tally struct {
	sums  map[string]int64
	total int64
}

// NewTally создаёт пустой Tally.
func NewTally() *Tally {
	return &Tally{sums: make(map[string]int64)}
}

// Add учитывает одну запись журнала. Пользователь с нулевой суммой
// всё равно попадает в рейтинг: у него есть активность в окне.
func (t *Tally) Add(userID string, xp int64) {
	t.sums[userID] += xp
	t.total += xp
}

// Len возвращает число пользователей с активностью в окне.
func (t *Tally) Len() int {
	return len(t.sums)
}

// Total возвращает сумму XP по всем пользователям.
func (t *Tally) Total() int64 {
	return t.total
}

// Sum возвращает сумму пользователя и признак наличия активности.
func (t *Tally) Sum(userID string) (int64, bool) {
	xp, ok := t.sums[userID]
	return xp, ok
}

// Ranked возвращает всех пользователей в порядке рейтинга с проставленными
// позициями. DisplayName не заполняется.
func (t *Tally) Ranked() []Standing {
	out := make([]Standing, 0, len(t.sums))
	for id, xp := range t.sums {
		out = append(out, Standing{UserID: id, XP: xp})
	}
	slices.SortFunc(out, compare)
	for i := range out {
		out[i].Position = shared.Rank(i + 1)
	}
	return out
}

// Position возвращает место пользователя без полной сортировки:
// 1 + число пользователей, стоящих выше. Unranked, если активности нет.
func (t *Tally) Position(userID string) (shared.Rank, int64) {
	xp, ok := t.sums[userID]
	if !ok {
		return shared.Unranked, 0
	}
	me := Standing{UserID: userID, XP: xp}
	ahead := 0
	for id, other := range t.sums {
		if id != userID && Less(Standing{UserID: id, XP: other}, me) {
			ahead++
		}
	}
	return shared.Rank(ahead + 1), xp
}

// Top обрезает отсортированный рейтинг до limit записей.
func Top(ranked []Standing, limit int) []Standing {
	if limit >= 0 && len(ranked) > limit {
		return ranked[:limit]
	}
	return ranked
}
