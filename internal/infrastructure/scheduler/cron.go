package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Fields accept *, */n, n, n-m, n-m/s and comma lists.
//
//	"*/5 * * * *"  every 5 minutes
//	"0 3 * * *"    every day at 03:00
//	"0 0 * * 1"    every Monday at midnight
type CronSchedule struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
	loc      *time.Location
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCron parses expr. Times are matched in loc (UTC when nil).
func ParseCron(expr string, loc *time.Location) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidSchedule, len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	var sets [5]uint64
	for i, f := range cronFields {
		set, err := parseCronField(fields[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field: %v", ErrInvalidSchedule, f.name, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		raw:      expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
		loc:      loc,
	}, nil
}

// parseCronField returns the matching values as a bit set.
func parseCronField(field string, min, max int) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step %q", s)
			}
			step = n
			part = base
		}

		lo, hi := min, max
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if lo, err = strconv.Atoi(a); err != nil {
				return 0, fmt.Errorf("invalid range start %q", a)
			}
			if hi, err = strconv.Atoi(b); err != nil {
				return 0, fmt.Errorf("invalid range end %q", b)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", part)
			}
			lo = v
			if step == 1 {
				hi = v
			}
		}

		if lo < min || hi > max || lo > hi {
			return 0, fmt.Errorf("value out of range [%d-%d]: %s", min, max, part)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// Next returns the first matching minute strictly after t.
// A zero time means the expression never matches within a year.
func (c *CronSchedule) Next(t time.Time) time.Time {
	next := t.In(c.loc).Truncate(time.Minute).Add(time.Minute)
	for range 366 * 24 * 60 {
		if c.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (c *CronSchedule) matches(t time.Time) bool {
	return c.minutes&(1<<uint(t.Minute())) != 0 &&
		c.hours&(1<<uint(t.Hour())) != 0 &&
		c.days&(1<<uint(t.Day())) != 0 &&
		c.months&(1<<uint(t.Month())) != 0 &&
		c.weekdays&(1<<uint(t.Weekday())) != 0
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.raw
}

// ParseSchedule accepts "@every <duration>" or a cron expression.
func ParseSchedule(spec string, loc *time.Location) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if d, ok := strings.CutPrefix(spec, "@every "); ok {
		interval, err := time.ParseDuration(strings.TrimSpace(d))
		if err != nil || interval <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
		}
		return NewIntervalSchedule(interval), nil
	}
	return ParseCron(spec, loc)
}
