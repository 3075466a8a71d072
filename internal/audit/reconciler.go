// Package audit reconciles the aggregate counters record with the donation ledger.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/metrics"
	"github.com/hanizaheer02/impact-tracker/internal/sqlinline"
)

// Report is the outcome of one reconciliation. Counters are expected to equal
// the provisioned baseline plus the ledger totals, and the counters version to
// equal the number of ledger rows.
type Report struct {
	CheckedAt time.Time `json:"checked_at"`

	CountersTotal   decimal.Decimal `json:"counters_total"`
	CountersDonors  int64           `json:"counters_donors"`
	CountersVersion int64           `json:"counters_version"`
	BaselineTotal   decimal.Decimal `json:"baseline_total"`
	BaselineDonors  int64           `json:"baseline_donors"`

	LedgerTotal    decimal.Decimal `json:"ledger_total"`
	LedgerCount    int64           `json:"ledger_count"`
	DistinctDonors int64           `json:"distinct_donors"`
	LastSeq        int64           `json:"last_seq"`

	Drift    bool     `json:"drift"`
	Problems []string `json:"problems,omitempty"`
}

type Reconciler struct {
	db      *sql.DB
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewReconciler(db *sql.DB, logger zerolog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{db: db, logger: logger, metrics: m, now: time.Now}
}

// Check reads the counters and the ledger totals from one read-only snapshot and
// compares them.
func (r *Reconciler) Check(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: r.now().UTC()}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return report, fmt.Errorf("audit: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var countersTotal, baselineTotal string
	err = tx.QueryRowContext(ctx, sqlinline.QAuditCounters, domain.GlobalCountersID).Scan(
		&countersTotal, &report.CountersDonors, &report.CountersVersion, &baselineTotal, &report.BaselineDonors)
	if errors.Is(err, sql.ErrNoRows) {
		return report, domain.ErrAggregateMissing
	}
	if err != nil {
		return report, fmt.Errorf("audit: read counters: %w", err)
	}

	var ledgerTotal string
	err = tx.QueryRowContext(ctx, sqlinline.QLedgerTotals).Scan(
		&ledgerTotal, &report.LedgerCount, &report.DistinctDonors, &report.LastSeq)
	if err != nil {
		return report, fmt.Errorf("audit: read ledger totals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("audit: commit: %w", err)
	}

	if report.CountersTotal, err = decimal.NewFromString(countersTotal); err != nil {
		return report, fmt.Errorf("audit: parse counters total: %w", err)
	}
	if report.BaselineTotal, err = decimal.NewFromString(baselineTotal); err != nil {
		return report, fmt.Errorf("audit: parse baseline total: %w", err)
	}
	if report.LedgerTotal, err = decimal.NewFromString(ledgerTotal); err != nil {
		return report, fmt.Errorf("audit: parse ledger total: %w", err)
	}

	report.compare()
	r.metrics.SetAuditDrift(report.Drift)
	return report, nil
}

func (rep *Report) compare() {
	if want := rep.BaselineTotal.Add(rep.LedgerTotal); !rep.CountersTotal.Equal(want) {
		rep.Problems = append(rep.Problems,
			fmt.Sprintf("total donations %s, ledger implies %s", rep.CountersTotal, want))
	}
	if want := rep.BaselineDonors + rep.LedgerCount; rep.CountersDonors != want {
		rep.Problems = append(rep.Problems,
			fmt.Sprintf("unique donors %d, ledger implies %d", rep.CountersDonors, want))
	}
	if rep.CountersVersion != rep.LedgerCount {
		rep.Problems = append(rep.Problems,
			fmt.Sprintf("counters version %d, ledger holds %d donations", rep.CountersVersion, rep.LedgerCount))
	}
	rep.Drift = len(rep.Problems) > 0
}

// Run checks every interval until ctx ends. Failed checks are logged and retried
// on the next tick.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("audit: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.runOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	report, err := r.Check(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		return
	case err != nil:
		r.logger.Error().Err(err).Msg("ledger audit failed")
	case report.Drift:
		r.logger.Warn().
			Strs("problems", report.Problems).
			Int64("ledger_count", report.LedgerCount).
			Int64("last_seq", report.LastSeq).
			Msg("aggregate counters drifted from ledger")
	default:
		r.logger.Info().
			Str("total", report.CountersTotal.String()).
			Int64("ledger_count", report.LedgerCount).
			Int64("distinct_donors", report.DistinctDonors).
			Msg("ledger audit clean")
	}
}
