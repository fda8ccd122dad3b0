package activity

import (
	"math"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

// StudyRule awards XP per studied minute with a bonus for long sessions.
type StudyRule struct {
	XPPerMinute  float64
	BonusMinutes int
	BonusXP      int64
	MinMinutes   int
	MaxMinutes   int
}

// SleepRule awards a fixed amount per night, more inside the optimal band.
type SleepRule struct {
	MinHours        float64
	MaxHours        float64
	OptimalMinHours float64
	OptimalMaxHours float64
	OptimalXP       int64
	BaseXP          int64
}

// AttendanceRule awards a fixed amount per class, with a punctuality bonus.
type AttendanceRule struct {
	BaseXP     int64
	PunctualXP int64
}

// Policy converts raw activity measurements into XP amounts.
// It is a pure function of its configuration.
type Policy struct {
	Study      StudyRule
	Sleep      SleepRule
	Attendance AttendanceRule
}

// DefaultPolicy returns the award rules used by the chat bot.
func DefaultPolicy() Policy {
	return Policy{
		Study: StudyRule{
			XPPerMinute:  1.6,
			BonusMinutes: 120,
			BonusXP:      50,
			MinMinutes:   1,
			MaxMinutes:   720,
		},
		Sleep: SleepRule{
			MinHours:        5,
			MaxHours:        12,
			OptimalMinHours: 7,
			OptimalMaxHours: 9,
			OptimalXP:       150,
			BaseXP:          50,
		},
		Attendance: AttendanceRule{
			BaseXP:     100,
			PunctualXP: 50,
		},
	}
}

// StudyXP returns floor(minutes * rate) plus the long-session bonus.
func (p Policy) StudyXP(minutes int) (int64, error) {
	r := p.Study
	if minutes < r.MinMinutes || minutes > r.MaxMinutes {
		return 0, shared.ErrActivityOutOfRange
	}
	xp := int64(math.Floor(float64(minutes) * r.XPPerMinute))
	if r.BonusMinutes > 0 && minutes >= r.BonusMinutes {
		xp += r.BonusXP
	}
	return xp, nil
}

// SleepXP returns the award for one night of sleep.
func (p Policy) SleepXP(hours float64) (int64, error) {
	r := p.Sleep
	if math.IsNaN(hours) || hours < r.MinHours || hours > r.MaxHours {
		return 0, shared.ErrActivityOutOfRange
	}
	if hours >= r.OptimalMinHours && hours <= r.OptimalMaxHours {
		return r.OptimalXP, nil
	}
	return r.BaseXP, nil
}

// AttendanceXP returns the award for attending one class.
func (p Policy) AttendanceXP(punctual bool) int64 {
	if punctual {
		return p.Attendance.BaseXP + p.Attendance.PunctualXP
	}
	return p.Attendance.BaseXP
}
