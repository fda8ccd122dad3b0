// Package command contains write operations (CQRS - Commands).
//
// Every write to the XP ledger goes through LedgerWriter: it validates the
// input, serializes writers of one user, and commits the activity record
// together with the new running total in a single store transaction.
package command

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/league"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/domain/user"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
	"github.com/uconnect/uconnect-ledger/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER WRITER
// ══════════════════════════════════════════════════════════════════════════════

// Recorder receives write metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveWrite(op string, d time.Duration, err error)
	AddXP(kind string, amount int64)
}

// Write operations as reported to the Recorder.
const (
	OpRegisterUser   = "register_user"
	OpRecordActivity = "record_activity"
)

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// XPAwarded is the amount appended to the ledger.
	XPAwarded int64

	// NewTotal is the user's running total after the write.
	NewTotal int64

	// NewLeague is the league resolved from NewTotal.
	NewLeague string

	// PreviousLeague is the league before the write.
	PreviousLeague string

	// LogID identifies the appended record.
	LogID string

	// RecordedAt is the timestamp stored on the record.
	RecordedAt time.Time
}

// LeagueChanged reports whether the write moved the user to another tier.
func (r *RecordActivityResult) LeagueChanged() bool {
	return r.PreviousLeague != r.NewLeague
}

// LedgerWriterConfig holds the writer's collaborators. Store and Leagues are
// required.
type LedgerWriterConfig struct {
	Store   ledger.Store
	Leagues *league.Table

	// Events receives UserRegistered, XPGained and LeagueChanged after
	// commit. Optional.
	Events shared.EventPublisher

	// Clock defaults to the system clock.
	Clock timeutil.Clock

	// LockStripes defaults to DefaultLockStripes.
	LockStripes int

	Metrics Recorder
	Logger  *logger.Logger
}

// LedgerWriter is the only component that mutates the ledger.
//
// It does not retry: a failed transaction is reported to the caller, who
// decides whether to submit the activity again.
type LedgerWriter struct {
	store   ledger.Store
	leagues *league.Table
	events  shared.EventPublisher
	clock   *timeutil.MonotonicClock
	locks   *userLocks
	metrics Recorder
	log     *logger.Logger
}

// NewLedgerWriter creates a writer.
func NewLedgerWriter(cfg LedgerWriterConfig) *LedgerWriter {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock
	}
	return &LedgerWriter{
		store:   cfg.Store,
		leagues: cfg.Leagues,
		events:  cfg.Events,
		clock:   timeutil.NewMonotonicClock(cfg.Clock),
		locks:   newUserLocks(cfg.LockStripes),
		metrics: cfg.Metrics,
		log:     cfg.Logger.With(logger.Component("ledger_writer")),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUser creates a profile with 0 XP in the lowest league.
// A taken id fails with shared.ErrUserAlreadyExists and leaves the existing
// profile unchanged.
func (w *LedgerWriter) RegisterUser(ctx context.Context, userID, displayName string) (profile *user.Profile, err error) {
	start := time.Now()
	defer func() { w.observe(OpRegisterUser, start, err) }()

	userID = strings.TrimSpace(userID)
	displayName = strings.TrimSpace(displayName)
	if err := user.ValidateRegistration(userID, displayName); err != nil {
		return nil, err
	}

	unlock := w.locks.lock(userID)
	defer unlock()

	createdAt := w.clock.Now()
	err = w.store.Update(ctx, func(tx ledger.Tx) error {
		var err error
		profile, err = tx.Create(ctx, userID, displayName, w.leagues.Lowest(), createdAt)
		return err
	})
	if err != nil {
		if shared.IsAlreadyExists(err) {
			w.log.Info("duplicate registration rejected", logger.UserID(userID))
		}
		return nil, err
	}

	w.log.Info("user registered", logger.UserID(userID), logger.String("league", profile.League))
	w.publish(shared.NewUserRegisteredEvent(userID, displayName, createdAt))

	return profile, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivity appends one record of amount XP and adds it to the user's
// total. Both writes commit together or not at all.
//
// Errors: shared.ErrUserNotFound for an unregistered user (nothing is
// appended), shared.ErrInvalidAmount for a negative amount,
// shared.ErrInvalidKind for an empty kind, storage errors as reported by
// the store.
func (w *LedgerWriter) RecordActivity(ctx context.Context, userID string, kind activity.Kind, amount int64) (result *RecordActivityResult, err error) {
	start := time.Now()
	defer func() {
		w.observe(OpRecordActivity, start, err)
		if err == nil {
			w.addXP(kind, amount)
		}
	}()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	if amount < 0 {
		return nil, shared.ErrInvalidAmount
	}
	if !kind.IsValid() || len(kind) > activity.MaxKindLength {
		return nil, shared.ErrInvalidKind
	}

	logID, err := activity.NewLogID()
	if err != nil {
		return nil, err
	}

	unlock := w.locks.lock(userID)
	defer unlock()

	rec := activity.Record{
		LogID:      logID,
		UserID:     userID,
		XPDelta:    amount,
		Kind:       kind,
		RecordedAt: w.clock.Now(),
	}

	err = w.store.Update(ctx, func(tx ledger.Tx) error {
		p, err := tx.Get(ctx, userID)
		if err != nil {
			return err
		}
		if p.XPTotal > math.MaxInt64-amount {
			return shared.NewDomainError("ledger", "RecordActivity", shared.ErrValueOutOfRange, "xp total would overflow")
		}

		if _, err := tx.Append(ctx, rec); err != nil {
			return err
		}
		total, err := tx.ApplyXPDelta(ctx, userID, amount)
		if err != nil {
			return err
		}

		newLeague := w.leagues.Resolve(total)
		if newLeague != p.League {
			if err := tx.SetLeague(ctx, userID, newLeague); err != nil {
				return err
			}
		}

		result = &RecordActivityResult{
			XPAwarded:      amount,
			NewTotal:       total,
			NewLeague:      newLeague,
			PreviousLeague: p.League,
			LogID:          rec.LogID,
			RecordedAt:     rec.RecordedAt,
		}
		return nil
	})
	if err != nil {
		if !shared.IsNotFound(err) && !shared.IsValidation(err) {
			w.log.Error("record activity failed",
				logger.UserID(userID),
				logger.ActivityKind(kind.String()),
				logger.XPAmount(amount),
				logger.Err(err),
			)
		}
		return nil, err
	}

	w.log.Info("activity recorded",
		logger.UserID(userID),
		logger.LogID(result.LogID),
		logger.ActivityKind(kind.String()),
		logger.XPAmount(amount),
		logger.Int64("xp_total", result.NewTotal),
	)

	w.publish(shared.NewXPGainedEvent(userID, result.LogID, kind.String(), amount, result.NewTotal, result.NewLeague, result.RecordedAt))
	if result.LeagueChanged() {
		w.publish(shared.NewLeagueChangedEvent(userID, result.PreviousLeague, result.NewLeague, result.NewTotal, result.RecordedAt))
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// publish runs after commit; a failing subscriber cannot undo the write.
func (w *LedgerWriter) publish(event shared.Event) {
	if w.events == nil {
		return
	}
	if err := w.events.Publish(event); err != nil {
		w.log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}

func (w *LedgerWriter) observe(op string, start time.Time, err error) {
	if w.metrics != nil {
		w.metrics.ObserveWrite(op, time.Since(start), err)
	}
}

func (w *LedgerWriter) addXP(kind activity.Kind, amount int64) {
	if w.metrics != nil {
		w.metrics.AddXP(kind.String(), amount)
	}
}
