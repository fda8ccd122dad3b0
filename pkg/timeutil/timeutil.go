// Package timeutil parses ranking windows and provides the clocks used by
// the ledger. No external dependencies.
package timeutil

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Day is a 24-hour window unit. Windows are trailing durations, not calendar days.
const Day = 24 * time.Hour

// Named ranking periods.
const (
	PeriodWeekly   = "weekly"
	PeriodMonthly  = "monthly"
	PeriodSemester = "semester"
)

// Periods maps period names to window lengths.
var Periods = map[string]time.Duration{
	PeriodWeekly:   7 * Day,
	PeriodMonthly:  30 * Day,
	PeriodSemester: 182 * Day,
}

// maxWindowDays keeps n*Day inside time.Duration.
const maxWindowDays = math.MaxInt64 / int64(Day)

// ErrInvalidWindow is returned for unparseable or non-positive windows.
var ErrInvalidWindow = errors.New("invalid window")

// ParseWindow accepts a period name ("weekly"), a day count ("7d") or a Go
// duration ("36h"). Spanish period names from the chat bot are accepted too.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidWindow)
	}
	switch s {
	case "semanal":
		s = PeriodWeekly
	case "mensual":
		s = PeriodMonthly
	case "semestral":
		s = PeriodSemester
	}
	if d, ok := Periods[s]; ok {
		return d, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil || n <= 0 || n > maxWindowDays {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
		}
		return time.Duration(n) * Day, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	return d, nil
}

// FormatWindow renders a window the way ParseWindow reads it back:
// whole days as "Nd", anything else as a Go duration.
func FormatWindow(d time.Duration) string {
	if d > 0 && d%Day == 0 {
		return strconv.FormatInt(int64(d/Day), 10) + "d"
	}
	return d.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOCKS
// ══════════════════════════════════════════════════════════════════════════════

// Clock returns the current time.
type Clock func() time.Time

// SystemClock returns UTC wall time at microsecond precision.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// MonotonicClock hands out strictly increasing UTC timestamps at
// microsecond precision. If the wall clock stalls or steps back, it
// advances the last value by one microsecond instead.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  Clock
}

// NewMonotonicClock wraps source, or SystemClock when source is nil.
func NewMonotonicClock(source Clock) *MonotonicClock {
	if source == nil {
		source = SystemClock
	}
	return &MonotonicClock{now: source}
}

// Now returns the next timestamp.
func (c *MonotonicClock) Now() time.Time {
	t := c.now().UTC().Truncate(time.Microsecond)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
