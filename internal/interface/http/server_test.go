package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/application/command"
	"github.com/uconnect/uconnect-ledger/internal/application/eventhandler"
	"github.com/uconnect/uconnect-ledger/internal/application/query"
	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/league"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/messaging"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/metrics"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/memory"
	"github.com/uconnect/uconnect-ledger/internal/interface/http/handlers"
)

type apiFixture struct {
	t       *testing.T
	handler http.Handler
	metrics *metrics.Metrics
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func newAPI(t *testing.T, mutate func(*Config)) *apiFixture {
	t.Helper()

	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	leagues := league.MustDefault()
	m := metrics.New()

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	t.Cleanup(func() { _ = bus.Close() })
	cache := memory.NewRankingCache(time.Minute)
	require.NoError(t, eventhandler.NewOnLedgerChangedHandler(cache, nil).Register(bus))

	writer := command.NewLedgerWriter(command.LedgerWriterConfig{
		Store:   store,
		Leagues: leagues,
		Events:  bus,
		Metrics: m,
	})

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", handlers.NewPingCheck(store))

	cfg := DefaultConfig()
	cfg.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, Dependencies{
		Writer:        writer,
		Awarder:       command.NewAwarder(writer, activity.DefaultPolicy()),
		Ranking:       query.NewRankingEngine(query.RankingEngineConfig{Store: store, Cache: cache, Metrics: m}),
		Profiles:      query.NewProfileReader(store, leagues, nil),
		HealthChecker: health,
		Metrics:       m,
	})
	return &apiFixture{t: t, handler: srv.Handler(), metrics: m}
}

func (f *apiFixture) do(method, path, body string) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestRegisterUserEndpoint(t *testing.T) {
	api := newAPI(t, nil)

	rec, env := api.do(http.MethodPost, "/api/v1/users", `{"user_id": 42, "display_name": "Ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	u := decodeData[UserResponse](t, env)
	assert.Equal(t, "42", u.UserID)
	assert.Equal(t, "Novato", u.League)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, env = api.do(http.MethodPost, "/api/v1/users", `{"user_id": "42", "display_name": "Other"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", env.Error.Code)
}

func TestRegisterUserValidation(t *testing.T) {
	api := newAPI(t, nil)

	for _, body := range []string{
		``,
		`{"user_id": "1"}`,
		`{"user_id": 1.5, "display_name": "x"}`,
		`{"user_id": "1", "display_name": "x", "extra": true}`,
		`not json`,
	} {
		rec, env := api.do(http.MethodPost, "/api/v1/users", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.NotNil(t, env.Error, body)
	}
}

func TestRecordActivityEndpoint(t *testing.T) {
	api := newAPI(t, nil)
	api.do(http.MethodPost, "/api/v1/users", `{"user_id": "7", "display_name": "Bea"}`)

	rec, env := api.do(http.MethodPost, "/api/v1/activities", `{"user_id": "7", "activity_kind": "quiz", "xp_amount": 1200}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeData[ActivityResponse](t, env)
	assert.Equal(t, int64(1200), res.XPAwarded)
	assert.Equal(t, int64(1200), res.XPTotal)
	assert.Equal(t, "Aprendiz (Bronce)", res.League)
	assert.True(t, res.LeagueChanged)
	assert.Equal(t, "Novato", res.PreviousLeague)
	assert.NotEmpty(t, res.LogID)
}

func TestRecordActivityErrors(t *testing.T) {
	api := newAPI(t, nil)
	api.do(http.MethodPost, "/api/v1/users", `{"user_id": "7", "display_name": "Bea"}`)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown user", `{"user_id": "8", "activity_kind": "quiz", "xp_amount": 5}`, http.StatusNotFound},
		{"negative", `{"user_id": "7", "activity_kind": "quiz", "xp_amount": -5}`, http.StatusBadRequest},
		{"fractional", `{"user_id": "7", "activity_kind": "quiz", "xp_amount": 2.5}`, http.StatusBadRequest},
		{"exponent", `{"user_id": "7", "activity_kind": "quiz", "xp_amount": 1e3}`, http.StatusBadRequest},
		{"missing kind", `{"user_id": "7", "xp_amount": 5}`, http.StatusBadRequest},
		{"missing amount", `{"user_id": "7", "activity_kind": "quiz"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := api.do(http.MethodPost, "/api/v1/activities", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	_, env := api.do(http.MethodGet, "/api/v1/users/7", "")
	p := decodeData[query.ProfileDTO](t, env)
	assert.Zero(t, p.XPTotal, "rejected writes leave the total untouched")
}

func TestAwardEndpoints(t *testing.T) {
	api := newAPI(t, nil)
	api.do(http.MethodPost, "/api/v1/users", `{"user_id": "1", "display_name": "A"}`)

	rec, env := api.do(http.MethodPost, "/api/v1/activities/study", `{"user_id": "1", "minutes": 120}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(242), decodeData[ActivityResponse](t, env).XPAwarded)

	rec, env = api.do(http.MethodPost, "/api/v1/activities/sleep", `{"user_id": "1", "hours": 8}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(150), decodeData[ActivityResponse](t, env).XPAwarded)

	rec, env = api.do(http.MethodPost, "/api/v1/activities/attendance", `{"user_id": "1", "punctual": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeData[ActivityResponse](t, env)
	assert.Equal(t, "attendance", res.Kind)
	assert.Equal(t, int64(542), res.XPTotal)

	rec, _ = api.do(http.MethodPost, "/api/v1/activities/sleep", `{"user_id": "1", "hours": 2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "outside the accepted range")
}

func TestRankingEndpoint(t *testing.T) {
	api := newAPI(t, nil)
	for _, u := range []struct{ id, name string }{{"1", "Ana"}, {"2", "Bea"}, {"3", "Cy"}} {
		api.do(http.MethodPost, "/api/v1/users", `{"user_id": "`+u.id+`", "display_name": "`+u.name+`"}`)
	}

	// Warm the cache before writing to prove writes invalidate it.
	rec, env := api.do(http.MethodGet, "/api/v1/ranking", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[RankingResponse](t, env).Entries)

	api.do(http.MethodPost, "/api/v1/activities", `{"user_id": "1", "activity_kind": "quiz", "xp_amount": 10}`)
	api.do(http.MethodPost, "/api/v1/activities", `{"user_id": "2", "activity_kind": "quiz", "xp_amount": 30}`)
	api.do(http.MethodPost, "/api/v1/activities", `{"user_id": "3", "activity_kind": "quiz", "xp_amount": 10}`)

	rec, env = api.do(http.MethodGet, "/api/v1/ranking?window=weekly&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeData[RankingResponse](t, env)
	assert.Equal(t, "7d", got.Window)
	assert.Equal(t, 3, got.Participants)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, RankingEntry{Position: 1, UserID: "2", DisplayName: "Bea", XPInWindow: 30}, got.Entries[0])
	assert.Equal(t, RankingEntry{Position: 2, UserID: "1", DisplayName: "Ana", XPInWindow: 10}, got.Entries[1])

	for _, q := range []string{"?window=abc", "?limit=x", "?limit=-1", "?window=-3d"} {
		rec, _ = api.do(http.MethodGet, "/api/v1/ranking"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestUserReadEndpoints(t *testing.T) {
	api := newAPI(t, nil)
	api.do(http.MethodPost, "/api/v1/users", `{"user_id": "1", "display_name": "Ana"}`)
	api.do(http.MethodPost, "/api/v1/users", `{"user_id": "2", "display_name": "Bea"}`)
	api.do(http.MethodPost, "/api/v1/activities", `{"user_id": "1", "activity_kind": "quiz", "xp_amount": 10}`)
	api.do(http.MethodPost, "/api/v1/activities", `{"user_id": "1", "activity_kind": "study", "xp_amount": 20}`)
	api.do(http.MethodPost, "/api/v1/activities", `{"user_id": "2", "activity_kind": "quiz", "xp_amount": 50}`)

	rec, env := api.do(http.MethodGet, "/api/v1/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeData[query.ProfileDTO](t, env)
	assert.Equal(t, int64(30), p.XPTotal)
	assert.Equal(t, "Aprendiz (Bronce)", p.NextLeague)
	assert.Equal(t, int64(970), p.XPToNextLeague)

	rec, env = api.do(http.MethodGet, "/api/v1/users/1/rank?window=30d", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rank := decodeData[RankResponse](t, env)
	assert.Equal(t, 2, rank.Position)
	assert.True(t, rank.Ranked)
	assert.Equal(t, "30d", rank.Window)

	rec, env = api.do(http.MethodGet, "/api/v1/users/1/activities?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decodeData[query.ActivityHistoryDTO](t, env)
	assert.Equal(t, 2, h.Count)
	require.Len(t, h.Activities, 1)
	assert.Equal(t, "study", h.Activities[0].Kind)

	for _, path := range []string{"/api/v1/users/9", "/api/v1/users/9/rank", "/api/v1/users/9/activities"} {
		rec, env = api.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "not_found", env.Error.Code)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	api := newAPI(t, nil)

	rec, env := api.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[handlers.HealthStatus](t, env).Healthy)

	api.do(http.MethodGet, "/api/v1/ranking", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	api.handler.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), `route="GET /api/v1/ranking"`)
}

func TestRateLimitedRequests(t *testing.T) {
	api := newAPI(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	rec, _ := api.do(http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env := api.do(http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)
}

func TestUserIDUnmarshal(t *testing.T) {
	var req RegisterUserRequest
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(`{"user_id": 12345678901, "display_name": "x"}`)).Decode(&req))
	assert.Equal(t, UserID("12345678901"), req.UserID)

	err := json.Unmarshal([]byte(`{"user_id": true}`), &req)
	assert.Error(t, err)
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.writeError(rec, req, errors.New("pq: connection refused at 10.0.0.3"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")

	rec = httptest.NewRecorder()
	srv.writeError(rec, req.WithContext(context.Background()), context.DeadlineExceeded)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
