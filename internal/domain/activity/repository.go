package activity

import (
	"context"
	"iter"
	"time"
)

// Ledger is the append-only sequence of activity records.
// Implementations live in infrastructure/persistence.
type Ledger interface {
	// Append durably adds rec and returns its LogID. LogID and RecordedAt are
	// assigned when empty. A LogID that is already present fails with
	// shared.ErrDuplicateLogID and the existing record is left untouched.
	Append(ctx context.Context, rec Record) (string, error)

	// Scan yields the records with since < RecordedAt <= until in ascending
	// RecordedAt order, ties broken by LogID. The sequence is lazy and can be
	// ranged over more than once; an error ends it.
	Scan(ctx context.Context, since, until time.Time) iter.Seq2[Record, error]
}

// Collect drains a Scan into a slice.
func Collect(seq iter.Seq2[Record, error]) ([]Record, error) {
	var out []Record
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Horizon is later than any record the ledger will hold.
var Horizon = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// ScanAll yields every record in the ledger.
func ScanAll(ctx context.Context, l Ledger) iter.Seq2[Record, error] {
	return l.Scan(ctx, time.Time{}, Horizon)
}
