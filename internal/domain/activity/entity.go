// Package activity contains the append-only XP ledger: one Record per
// logged activity, plus the rules that turn study, sleep and attendance
// into XP amounts.
package activity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

// Kind labels what earned the XP. The ledger treats it as opaque.
type Kind string

const (
	KindStudy      Kind = "study"
	KindSleep      Kind = "sleep"
	KindAttendance Kind = "attendance"
)

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks that the label is non-empty.
func (k Kind) IsValid() bool {
	return strings.TrimSpace(string(k)) != ""
}

// MaxKindLength bounds the stored kind label.
const MaxKindLength = 64

// Record is one immutable ledger entry.
type Record struct {
	LogID      string
	UserID     string
	XPDelta    int64
	Kind       Kind
	RecordedAt time.Time
}

// Validate checks the fields the ledger requires before appending.
// LogID and RecordedAt may be empty; the ledger assigns them.
func (r Record) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return shared.WrapError("activity", "Append", shared.ErrInvalidRecord, "invalid activity record", shared.ErrInvalidUserID)
	}
	if r.XPDelta < 0 {
		return shared.WrapError("activity", "Append", shared.ErrInvalidRecord, "invalid activity record", shared.ErrInvalidAmount)
	}
	if len(r.Kind) > MaxKindLength {
		return shared.WrapError("activity", "Append", shared.ErrInvalidRecord, "invalid activity record", shared.ErrInvalidKind)
	}
	return nil
}

// WithDefaults fills LogID and RecordedAt when unset. Set values are kept.
func (r Record) WithDefaults(now func() time.Time) (Record, error) {
	if r.LogID == "" {
		id, err := NewLogID()
		if err != nil {
			return r, err
		}
		r.LogID = id
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = now()
	}
	r.RecordedAt = r.RecordedAt.UTC()
	return r, nil
}

// Now returns the current UTC time at the microsecond precision every
// backend can store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewLogID returns a time-ordered unique id for a record.
func NewLogID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", shared.WrapError("activity", "NewLogID", shared.ErrStorage, "failed to generate log id", err)
	}
	return id.String(), nil
}

// Less orders records by RecordedAt, then by LogID.
func Less(a, b Record) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.Before(b.RecordedAt)
	}
	return a.LogID < b.LogID
}
