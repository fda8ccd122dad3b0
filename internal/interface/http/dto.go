package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/uconnect/uconnect-ledger/internal/application/command"
	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
)

// validate is shared by every request DTO.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

// UserID accepts both "42" and 42 on the wire; bots send numeric ids.
type UserID string

// UnmarshalJSON implements json.Unmarshaler.
func (u *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user_id must be a string or an integer")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("user_id must be a string or an integer")
	}
	*u = UserID(n.String())
	return nil
}

// RegisterUserRequest is the body of POST /api/v1/users.
type RegisterUserRequest struct {
	UserID      UserID `json:"user_id" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=128"`
}

// RecordActivityRequest is the body of POST /api/v1/activities.
// XPAmount is a json.Number so fractional amounts are rejected instead
// of truncated.
type RecordActivityRequest struct {
	UserID   UserID      `json:"user_id" validate:"required,max=64"`
	Kind     string      `json:"activity_kind" validate:"required,max=64"`
	XPAmount json.Number `json:"xp_amount" validate:"required"`
}

// Amount parses XPAmount as a base-10 integer.
func (r RecordActivityRequest) Amount() (int64, error) {
	n, err := strconv.ParseInt(r.XPAmount.String(), 10, 64)
	if err != nil {
		return 0, errNonIntegerAmount
	}
	return n, nil
}

var errNonIntegerAmount = errors.New("xp_amount must be an integer")

// RecordStudyRequest is the body of POST /api/v1/activities/study.
type RecordStudyRequest struct {
	UserID  UserID `json:"user_id" validate:"required,max=64"`
	Minutes int    `json:"minutes" validate:"required,gt=0"`
}

// RecordSleepRequest is the body of POST /api/v1/activities/sleep.
type RecordSleepRequest struct {
	UserID UserID  `json:"user_id" validate:"required,max=64"`
	Hours  float64 `json:"hours" validate:"required,gt=0"`
}

// RecordAttendanceRequest is the body of POST /api/v1/activities/attendance.
type RecordAttendanceRequest struct {
	UserID   UserID `json:"user_id" validate:"required,max=64"`
	Punctual bool   `json:"punctual"`
}

// decodeJSON reads one JSON object into dst and validates it.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &requestError{msg: "request body is empty"}
		}
		return &requestError{msg: "malformed JSON", details: err.Error()}
	}
	if err := validate.Struct(dst); err != nil {
		return &requestError{msg: "validation failed", details: describeValidation(err)}
	}
	return nil
}

// requestError is a client mistake caught before the domain sees the request.
type requestError struct {
	msg     string
	details string
}

func (e *requestError) Error() string {
	if e.details == "" {
		return e.msg
	}
	return e.msg + ": " + e.details
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// UserResponse is returned by registration.
type UserResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	XPTotal     int64     `json:"xp_total"`
	League      string    `json:"league"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActivityResponse is returned by every activity write.
type ActivityResponse struct {
	LogID          string    `json:"log_id"`
	Kind           string    `json:"activity_kind"`
	XPAwarded      int64     `json:"xp_awarded"`
	XPTotal        int64     `json:"xp_total"`
	League         string    `json:"league"`
	LeagueChanged  bool      `json:"league_changed"`
	PreviousLeague string    `json:"previous_league,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

func newActivityResponse(kind activity.Kind, res *command.RecordActivityResult) ActivityResponse {
	out := ActivityResponse{
		LogID:         res.LogID,
		Kind:          kind.String(),
		XPAwarded:     res.XPAwarded,
		XPTotal:       res.NewTotal,
		League:        res.NewLeague,
		LeagueChanged: res.LeagueChanged(),
		RecordedAt:    res.RecordedAt,
	}
	if out.LeagueChanged {
		out.PreviousLeague = res.PreviousLeague
	}
	return out
}

// RankingEntry is one row of GET /api/v1/ranking.
type RankingEntry struct {
	Position    int    `json:"position"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	XPInWindow  int64  `json:"xp_in_window"`
}

// RankingResponse is the body of GET /api/v1/ranking.
type RankingResponse struct {
	Window       string         `json:"window"`
	Since        time.Time      `json:"since"`
	Until        time.Time      `json:"until"`
	Limit        int            `json:"limit"`
	Participants int            `json:"participants"`
	Entries      []RankingEntry `json:"entries"`
}

// RankResponse is the body of GET /api/v1/users/{id}/rank.
type RankResponse struct {
	UserID       string `json:"user_id"`
	Window       string `json:"window"`
	Position     int    `json:"position"`
	Ranked       bool   `json:"ranked"`
	XPInWindow   int64  `json:"xp_in_window"`
	Participants int    `json:"participants"`
}
