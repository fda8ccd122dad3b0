package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWrite("record_activity", time.Millisecond, nil)
		m.AddXP("study", 10)
		m.ObserveRanking(SourceCache)
		m.Inconsistency("orphan_record")
		m.ObserveHTTP(http.MethodGet, "/healthz", 200, time.Millisecond)
		m.ObserveJob("reconcile_ledger", time.Second, nil)
	})
	assert.Nil(t, m.Registry())
}

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.ObserveWrite("record_activity", time.Millisecond, nil)
	m.ObserveWrite("record_activity", time.Millisecond, errors.New("boom"))
	m.AddXP("study", 96)
	m.AddXP("study", 50)
	m.AddXP("study", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("record_activity", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("record_activity", ResultError)))
	assert.Equal(t, 146.0, testutil.ToFloat64(m.xpAwarded.WithLabelValues("study")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveRanking(SourceComputed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `uconnect_ranking_requests_total{source="computed"} 1`)
}
