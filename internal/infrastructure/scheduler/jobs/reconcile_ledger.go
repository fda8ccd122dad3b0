package jobs

import (
	"context"
	"fmt"

	"github.com/uconnect/uconnect-ledger/internal/application/query"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE LEDGER JOB
// ══════════════════════════════════════════════════════════════════════════════

// Reconciler checks stored totals against the ledger. *query.Reconciler
// satisfies it.
type Reconciler interface {
	Run(ctx context.Context) (*query.ReconcileReport, error)
}

// ReconcileLedgerJob runs the reconciler and fails when totals diverge,
// so the failure shows up in job metrics.
type ReconcileLedgerJob struct {
	reconciler Reconciler
	log        *logger.Logger
}

// NewReconcileLedgerJob creates the job.
func NewReconcileLedgerJob(r Reconciler, log *logger.Logger) *ReconcileLedgerJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileLedgerJob{
		reconciler: r,
		log:        log.With(logger.Component("job.reconcile_ledger")),
	}
}

// Name returns the job name.
func (j *ReconcileLedgerJob) Name() string {
	return "reconcile_ledger"
}

// Description returns a human-readable description.
func (j *ReconcileLedgerJob) Description() string {
	return "Checks every xp_total against the sum of its ledger records"
}

// Run executes one reconciliation.
func (j *ReconcileLedgerJob) Run(ctx context.Context) error {
	report, err := j.reconciler.Run(ctx)
	if err != nil {
		return err
	}
	if !report.Consistent() {
		return fmt.Errorf("%w: %d mismatched totals, %d orphan records",
			shared.ErrDataInconsistency, len(report.Mismatches), report.OrphanRecords)
	}
	return nil
}
