package query

import (
	"context"
	"time"

	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/ledger"
	"github.com/uconnect/uconnect-ledger/internal/domain/league"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILER
// Сверяет xp_total каждого пользователя с суммой его записей в журнале.
// Только чтение: расхождения логируются и попадают в отчёт, но не чинятся.
// ══════════════════════════════════════════════════════════════════════════════

// TotalMismatch - пользователь, чей xp_total не равен сумме журнала.
type TotalMismatch struct {
	UserID     string `json:"user_id"`
	Stored     int64  `json:"stored_total"`
	FromLedger int64  `json:"ledger_total"`
}

// ReconcileReport - результат одной сверки.
type ReconcileReport struct {
	UsersChecked   int             `json:"users_checked"`
	RecordsScanned int             `json:"records_scanned"`
	Mismatches     []TotalMismatch `json:"mismatches"`
	StaleLeagues   []string        `json:"stale_leagues"`

	// OrphanRecords - записи с user_id, которого нет в users.
	OrphanRecords int           `json:"orphan_records"`
	CheckedAt     time.Time     `json:"checked_at"`
	Duration      time.Duration `json:"-"`
}

// Consistent сообщает, что расхождений нет.
func (r *ReconcileReport) Consistent() bool {
	return len(r.Mismatches) == 0 && r.OrphanRecords == 0
}

// Reconciler проверяет инвариант xp_total == sum(xp_delta).
type Reconciler struct {
	store   ledger.Store
	leagues *league.Table
	events  shared.EventPublisher
	metrics RankingRecorder
	log     *logger.Logger
}

// NewReconciler создаёт Reconciler. events и metrics необязательны.
func NewReconciler(store ledger.Store, leagues *league.Table, events shared.EventPublisher, metrics RankingRecorder, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{
		store:   store,
		leagues: leagues,
		events:  events,
		metrics: metrics,
		log:     log.With(logger.Component("reconciler")),
	}
}

// Run сверяет все профили с журналом в одном снапшоте.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	report := &ReconcileReport{
		Mismatches:   []TotalMismatch{},
		StaleLeagues: []string{},
	}

	err := r.store.View(ctx, func(tx ledger.Tx) error {
		sums := make(map[string]int64)
		counts := make(map[string]int)
		for rec, err := range activity.ScanAll(ctx, tx) {
			if err != nil {
				return err
			}
			sums[rec.UserID] += rec.XPDelta
			counts[rec.UserID]++
			report.RecordsScanned++
		}

		users, err := tx.List(ctx)
		if err != nil {
			return err
		}
		report.UsersChecked = len(users)

		for _, p := range users {
			fromLedger := sums[p.ID]
			delete(sums, p.ID)

			if fromLedger != p.XPTotal {
				report.Mismatches = append(report.Mismatches, TotalMismatch{
					UserID:     p.ID,
					Stored:     p.XPTotal,
					FromLedger: fromLedger,
				})
				r.inconsistency(InconsistencyTotal,
					logger.UserID(p.ID),
					logger.Int64("stored_total", p.XPTotal),
					logger.Int64("ledger_total", fromLedger),
				)
			}
			if r.leagues != nil && r.leagues.Resolve(p.XPTotal) != p.League {
				report.StaleLeagues = append(report.StaleLeagues, p.ID)
				if r.metrics != nil {
					r.metrics.Inconsistency(InconsistencyStaleLeague)
				}
			}
		}

		for userID := range sums {
			report.OrphanRecords += counts[userID]
			r.inconsistency(InconsistencyOrphanRecord,
				logger.UserID(userID),
				logger.Int("records", counts[userID]),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.CheckedAt = time.Now().UTC()
	report.Duration = time.Since(start)

	r.log.Info("reconciliation finished",
		logger.Int("users_checked", report.UsersChecked),
		logger.Int("records_scanned", report.RecordsScanned),
		logger.Int("mismatches", len(report.Mismatches)),
		logger.Int("orphan_records", report.OrphanRecords),
		logger.Latency(report.Duration),
	)

	if r.events != nil {
		evt := shared.NewReconcileCompletedEvent(report.UsersChecked, len(report.Mismatches), report.OrphanRecords, report.CheckedAt)
		if err := r.events.Publish(evt); err != nil {
			r.log.Warn("failed to publish reconcile event", logger.Err(err))
		}
	}
	return report, nil
}

func (r *Reconciler) inconsistency(kind string, fields ...logger.Field) {
	if r.metrics != nil {
		r.metrics.Inconsistency(kind)
	}
	r.log.Warn("data inconsistency", append(fields, logger.String("kind", kind))...)
}
