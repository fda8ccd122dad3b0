package command

import (
	"context"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD ACTIVITY
// Converts a raw measurement (minutes studied, hours slept, class attended)
// into XP with the configured policy and records it.
// ══════════════════════════════════════════════════════════════════════════════

// Awarder records measured activities.
type Awarder struct {
	writer *LedgerWriter
	policy activity.Policy
}

// NewAwarder creates an Awarder on top of writer.
func NewAwarder(writer *LedgerWriter, policy activity.Policy) *Awarder {
	return &Awarder{writer: writer, policy: policy}
}

// Policy returns the award rules in use.
func (a *Awarder) Policy() activity.Policy {
	return a.policy
}

// RecordStudy awards XP for a study session of the given length.
// Out-of-range durations fail with shared.ErrActivityOutOfRange.
func (a *Awarder) RecordStudy(ctx context.Context, userID string, minutes int) (*RecordActivityResult, error) {
	xp, err := a.policy.StudyXP(minutes)
	if err != nil {
		return nil, err
	}
	return a.writer.RecordActivity(ctx, userID, activity.KindStudy, xp)
}

// RecordSleep awards XP for one night of sleep.
func (a *Awarder) RecordSleep(ctx context.Context, userID string, hours float64) (*RecordActivityResult, error) {
	xp, err := a.policy.SleepXP(hours)
	if err != nil {
		return nil, err
	}
	return a.writer.RecordActivity(ctx, userID, activity.KindSleep, xp)
}

// RecordAttendance awards XP for attending a class.
func (a *Awarder) RecordAttendance(ctx context.Context, userID string, punctual bool) (*RecordActivityResult, error) {
	return a.writer.RecordActivity(ctx, userID, activity.KindAttendance, a.policy.AttendanceXP(punctual))
}
