package activity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

func TestStudyXP(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		minutes int
		want    int64
	}{
		{1, 1},
		{45, 72},
		{100, 160},
		{119, 190},
		{120, 242},
		{720, 1202},
	}
	for _, tt := range tests {
		got, err := p.StudyXP(tt.minutes)
		require.NoError(t, err, "minutes=%d", tt.minutes)
		assert.Equal(t, tt.want, got, "minutes=%d", tt.minutes)
	}

	for _, m := range []int{0, -5, 721} {
		_, err := p.StudyXP(m)
		assert.ErrorIs(t, err, shared.ErrActivityOutOfRange, "minutes=%d", m)
	}
}

func TestSleepXP(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		hours float64
		want  int64
	}{
		{5, 50},
		{6.5, 50},
		{7, 150},
		{8, 150},
		{9, 150},
		{10, 50},
		{12, 50},
	}
	for _, tt := range tests {
		got, err := p.SleepXP(tt.hours)
		require.NoError(t, err, "hours=%v", tt.hours)
		assert.Equal(t, tt.want, got, "hours=%v", tt.hours)
	}

	for _, h := range []float64{4.9, 12.5, math.NaN()} {
		_, err := p.SleepXP(h)
		assert.ErrorIs(t, err, shared.ErrActivityOutOfRange, "hours=%v", h)
	}
}

func TestAttendanceXP(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, int64(150), p.AttendanceXP(true))
	assert.Equal(t, int64(100), p.AttendanceXP(false))
}
