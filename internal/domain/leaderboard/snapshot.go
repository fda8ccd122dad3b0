package leaderboard

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Key идентифицирует вычисленный рейтинг: длину окна и лимит.
type Key struct {
	Window time.Duration
	Limit  int
}

// String возвращает стабильное представление для ключей кеша.
func (k Key) String() string {
	return fmt.Sprintf("w%d:l%d", int64(k.Window/time.Second), k.Limit)
}

// Snapshot - рейтинг, вычисленный на момент Until по окну (Since, Until].
type Snapshot struct {
	Window     time.Duration `json:"window"`
	Limit      int           `json:"limit"`
	Since      time.Time     `json:"since"`
	Until      time.Time     `json:"until"`
	ComputedAt time.Time     `json:"computed_at"`

	// Participants - число пользователей с активностью в окне до обрезки.
	Participants int        `json:"participants"`
	Entries      []Standing `json:"entries"`
}

// Key возвращает ключ снапшота.
func (s *Snapshot) Key() Key {
	return Key{Window: s.Window, Limit: s.Limit}
}

// Age возвращает возраст снапшота относительно now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ComputedAt)
}
