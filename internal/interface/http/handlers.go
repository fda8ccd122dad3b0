package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/application/command"
	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
	"github.com/uconnect/uconnect-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "uconnect XP ledger",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":   "/healthz",
			"register": "POST /api/v1/users",
			"record":   "POST /api/v1/activities",
			"ranking":  "/api/v1/ranking?window=7d&limit=10",
			"profile":  "/api/v1/users/{id}",
		},
	})
}

// handleHealth runs the registered checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRegisterUser handles POST /api/v1/users
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.deps.Writer.RegisterUser(r.Context(), string(req.UserID), req.DisplayName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, UserResponse{
		UserID:      p.ID,
		DisplayName: p.DisplayName,
		XPTotal:     p.XPTotal,
		League:      p.League,
		CreatedAt:   p.CreatedAt,
	})
}

// handleRecordActivity handles POST /api/v1/activities
func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req RecordActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.Amount()
	if err != nil {
		s.writeError(w, r, &requestError{msg: err.Error()})
		return
	}

	kind := activity.Kind(req.Kind)
	res, err := s.deps.Writer.RecordActivity(r.Context(), string(req.UserID), kind, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newActivityResponse(kind, res))
}

// handleRecordStudy handles POST /api/v1/activities/study
func (s *Server) handleRecordStudy(w http.ResponseWriter, r *http.Request) {
	var req RecordStudyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.award(w, r, activity.KindStudy, func(ctx context.Context) (*command.RecordActivityResult, error) {
		return s.deps.Awarder.RecordStudy(ctx, string(req.UserID), req.Minutes)
	})
}

// handleRecordSleep handles POST /api/v1/activities/sleep
func (s *Server) handleRecordSleep(w http.ResponseWriter, r *http.Request) {
	var req RecordSleepRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.award(w, r, activity.KindSleep, func(ctx context.Context) (*command.RecordActivityResult, error) {
		return s.deps.Awarder.RecordSleep(ctx, string(req.UserID), req.Hours)
	})
}

// handleRecordAttendance handles POST /api/v1/activities/attendance
func (s *Server) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req RecordAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.award(w, r, activity.KindAttendance, func(ctx context.Context) (*command.RecordActivityResult, error) {
		return s.deps.Awarder.RecordAttendance(ctx, string(req.UserID), req.Punctual)
	})
}

func (s *Server) award(w http.ResponseWriter, r *http.Request, kind activity.Kind, fn func(context.Context) (*command.RecordActivityResult, error)) {
	if s.deps.Awarder == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Activity awards are not configured")
		return
	}
	res, err := fn(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newActivityResponse(kind, res))
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetRanking handles GET /api/v1/ranking?window=7d&limit=10
func (s *Server) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	window, err := windowParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.deps.Ranking.Snapshot(r.Context(), window, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := RankingResponse{
		Window:       timeutil.FormatWindow(snap.Window),
		Since:        snap.Since,
		Until:        snap.Until,
		Limit:        snap.Limit,
		Participants: snap.Participants,
		Entries:      make([]RankingEntry, 0, len(snap.Entries)),
	}
	for _, e := range snap.Entries {
		resp.Entries = append(resp.Entries, RankingEntry{
			Position:    e.Position.Int(),
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			XPInWindow:  e.XP,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleGetProfile handles GET /api/v1/users/{id}
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// handleGetRank handles GET /api/v1/users/{id}/rank?window=30d
func (s *Server) handleGetRank(w http.ResponseWriter, r *http.Request) {
	window, err := windowParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pos, err := s.deps.Ranking.Position(r.Context(), strings.TrimSpace(r.PathValue("id")), window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, RankResponse{
		UserID:       pos.UserID,
		Window:       timeutil.FormatWindow(pos.Window),
		Position:     pos.Position.Int(),
		Ranked:       !pos.Position.IsUnranked(),
		XPInWindow:   pos.XP,
		Participants: pos.Participants,
	})
}

// handleGetHistory handles GET /api/v1/users/{id}/activities?window=7d&limit=50
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	window, err := windowParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Same default window as the ranking.
	window, _, err = s.deps.Ranking.Normalize(window, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	h, err := s.deps.Profiles.History(r.Context(), r.PathValue("id"), window, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h)
}

// ══════════════════════════════════════════════════════════════════════════════
// PARAMETERS & ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// windowParam reads ?window=; absent means the engine default.
func windowParam(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return 0, nil
	}
	d, err := timeutil.ParseWindow(raw)
	if err != nil {
		return 0, &requestError{msg: "invalid window", details: err.Error()}
	}
	return d, nil
}

// intParam reads an integer query parameter; absent means 0.
func intParam(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &requestError{msg: "invalid " + key, details: key + " must be an integer"}
	}
	return n, nil
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError

	switch {
	case errors.As(err, &reqErr):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_request", reqErr.msg, reqErr.details)
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", messageOf(err))
	case shared.IsAlreadyExists(err):
		writeJSONError(w, http.StatusConflict, "already_exists", messageOf(err))
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", messageOf(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusServiceUnavailable, "timeout", "Request was cancelled")
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// messageOf returns the domain message without wrapped driver detail.
func messageOf(err error) string {
	var target *shared.DomainError
	if errors.As(err, &target) && target.Message != "" {
		return target.Message
	}
	return err.Error()
}
