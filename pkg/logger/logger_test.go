package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: level, Format: FormatJSON})
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestJSONFields(t *testing.T) {
	l, buf := newBuffered(LevelInfo)

	l.With(Component("ledger_writer")).Info("activity recorded",
		UserID("42"),
		XPAmount(150),
		ActivityKind("attendance"),
		Window(7*24*time.Hour),
		Err(errors.New("boom")),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "activity recorded", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "ledger_writer", entry["component"])
	assert.Equal(t, "42", entry["user_id"])
	assert.EqualValues(t, 150, entry["xp_amount"])
	assert.Equal(t, "attendance", entry["activity_kind"])
	assert.Equal(t, "boom", entry["error"])
	assert.Contains(t, entry, "timestamp")
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBuffered(LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Errorf("shown %d", 2)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "shown 2", lines[1]["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestContext(t *testing.T) {
	l, buf := newBuffered(LevelInfo)
	ctx := WithContext(context.Background(), l.WithRequestID("req-1"))

	FromContext(ctx).Info("handled")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0][RequestIDKey])

	assert.NotNil(t, FromContext(context.Background()))
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With(UserID("1")).Error("ignored", Err(nil))
	})
}
