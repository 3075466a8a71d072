// Package ledger records donations and keeps the aggregate counters in step with
// them inside one store transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
	"github.com/hanizaheer02/impact-tracker/internal/metrics"
)

// DefaultMaxAttempts bounds how many times a conflicting write is tried.
const DefaultMaxAttempts = 5

type Writer struct {
	store       domain.LedgerStore
	regions     *geo.Directory
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

type Option func(*Writer)

// WithMaxAttempts sets the total number of attempts, including the first one.
func WithMaxAttempts(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithBackOff replaces the delay policy between conflicting attempts.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(w *Writer) {
		if newBackOff != nil {
			w.newBackOff = newBackOff
		}
	}
}

func NewWriter(store domain.LedgerStore, regions *geo.Directory, logger zerolog.Logger, opts ...Option) *Writer {
	if regions == nil {
		regions = geo.DefaultDirectory()
	}
	w := &Writer{
		store:       store,
		regions:     regions,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		newBackOff:  defaultBackOff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// RecordDonation validates and resolves the input, then inserts the donation and
// applies it to the aggregate counters atomically. Conflicts are retried up to the
// configured attempt budget and surface as domain.ErrWriteConflict afterwards.
func (w *Writer) RecordDonation(ctx context.Context, in domain.DonationInput) (*domain.Donation, error) {
	if !domain.ValidAmount(in.Amount) {
		w.metrics.WriteFailure("invalid_amount")
		return nil, domain.ErrInvalidAmount
	}
	draft := w.resolve(in)

	var committed *domain.Donation
	attempt := 0
	op := func() error {
		attempt++
		d := draft
		err := w.store.RunInTx(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
			counters, err := tx.GetCounters(ctx)
			if err != nil {
				return err
			}
			if err := tx.InsertDonation(ctx, &d); err != nil {
				return err
			}
			next := counters.Apply(d.Amount)
			return tx.PutCounters(ctx, &next)
		})
		if err == nil {
			committed = &d
			return nil
		}
		if errors.Is(err, domain.ErrWriteConflict) {
			w.metrics.WriteConflict()
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), uint64(w.maxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		w.logger.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("ledger write conflict, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, w.fail(err, attempt)
	}

	w.metrics.DonationRecorded(committed.Amount)
	w.logger.Info().
		Str("donation_id", committed.ID).
		Str("amount", committed.Amount.String()).
		Str("region", committed.Region).
		Int("attempts", attempt).
		Msg("donation recorded")
	return committed, nil
}

func (w *Writer) fail(err error, attempts int) error {
	switch {
	case errors.Is(err, domain.ErrWriteConflict):
		w.metrics.WriteFailure("write_conflict")
		w.logger.Warn().Err(err).Int("attempts", attempts).Msg("ledger write conflict budget exhausted")
		return fmt.Errorf("record donation after %d attempts: %w", attempts, domain.ErrWriteConflict)
	case errors.Is(err, domain.ErrAggregateMissing):
		w.metrics.WriteFailure("aggregate_missing")
		w.logger.Error().Err(err).Msg("aggregate counters record is not provisioned")
		return domain.ErrAggregateMissing
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		w.metrics.WriteFailure("canceled")
		return err
	default:
		w.metrics.WriteFailure("internal")
		w.logger.Error().Err(err).Msg("record donation failed")
		return fmt.Errorf("record donation: %w", err)
	}
}

// resolve applies the labelling and region rules to a submission.
func (w *Writer) resolve(in domain.DonationInput) domain.Donation {
	region := w.regions.Resolve(in.Region)

	d := domain.Donation{
		Amount:        in.Amount,
		Region:        region.Name,
		ImpactType:    strings.TrimSpace(in.ImpactType),
		Anonymous:     in.Anonymous,
		Status:        domain.StatusVerified,
		OriginCountry: strings.ToUpper(strings.TrimSpace(in.OriginCountry)),
	}
	if d.ImpactType == "" {
		d.ImpactType = domain.DefaultImpactType
	}
	if id := strings.TrimSpace(in.DonorID); id != "" {
		d.DonorID = &id
	}
	switch name := strings.TrimSpace(in.DonorName); {
	case in.Anonymous:
		d.DonorName = domain.AnonymousDonorName
	case name != "":
		d.DonorName = name
	default:
		d.DonorName = domain.DefaultDonorName
	}
	return d
}
