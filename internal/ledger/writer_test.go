package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanizaheer02/impact-tracker/internal/adapter/memory"
	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
	"github.com/hanizaheer02/impact-tracker/internal/metrics"
)

func noDelay() backoff.BackOff { return &backoff.ZeroBackOff{} }

func newTestWriter(store domain.LedgerStore, opts ...Option) *Writer {
	opts = append([]Option{WithBackOff(noDelay)}, opts...)
	return NewWriter(store, geo.DefaultDirectory(), zerolog.Nop(), opts...)
}

func provisionedStore(total int64, donors int64) *memory.Store {
	s := memory.NewStore()
	s.Provision(domain.AggregateCounters{
		TotalDonations: decimal.NewFromInt(total),
		UniqueDonors:   donors,
	})
	return s
}

func TestRecordDonationUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	store := provisionedStore(1000, 10)
	w := newTestWriter(store)

	d, err := w.RecordDonation(ctx, domain.DonationInput{
		Amount:     decimal.NewFromInt(100),
		Region:     "Sudan",
		ImpactType: "Medical Supplies",
		DonorName:  "Alex",
		DonorID:    "user-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "Alex", d.DonorName)
	assert.Equal(t, "Sudan", d.Region)
	assert.Equal(t, domain.StatusVerified, d.Status)
	require.NotNil(t, d.DonorID)
	assert.Equal(t, "user-1", *d.DonorID)

	c, err := store.GetCounters(ctx)
	require.NoError(t, err)
	assert.True(t, c.TotalDonations.Equal(decimal.NewFromInt(1100)))
	assert.EqualValues(t, 11, c.UniqueDonors)
}

func TestRecordDonationRejectsInvalidAmounts(t *testing.T) {
	tests := []struct {
		name   string
		amount decimal.Decimal
	}{
		{name: "zero", amount: decimal.Zero},
		{name: "negative", amount: decimal.NewFromInt(-5)},
		{name: "negative fraction", amount: decimal.RequireFromString("-0.01")},
		{name: "sub-cent", amount: decimal.RequireFromString("0.004")},
		{name: "three decimals", amount: decimal.RequireFromString("12.345")},
		{name: "column bound", amount: decimal.New(1, 12)},
		{name: "above column bound", amount: decimal.RequireFromString("5000000000000")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := provisionedStore(50, 1)
			before, _ := store.GetCounters(ctx)

			_, err := newTestWriter(store).RecordDonation(ctx, domain.DonationInput{Amount: tt.amount, Region: "Sudan"})

			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			assert.Zero(t, store.Len())
			after, _ := store.GetCounters(ctx)
			assert.Equal(t, before, after)
		})
	}
}

func TestRecordDonationAcceptsAmountsAtColumnLimits(t *testing.T) {
	for _, raw := range []string{"0.01", "12.30", "999999999999.99"} {
		store := provisionedStore(0, 0)

		d, err := newTestWriter(store).RecordDonation(context.Background(), domain.DonationInput{
			Amount: decimal.RequireFromString(raw),
			Region: "Sudan",
		})
		require.NoError(t, err, raw)
		assert.True(t, d.Amount.Equal(decimal.RequireFromString(raw)), raw)
	}
}

func TestRecordDonationMissingCountersLeavesNoOrphan(t *testing.T) {
	store := memory.NewStore()

	_, err := newTestWriter(store).RecordDonation(context.Background(), domain.DonationInput{
		Amount: decimal.NewFromInt(10),
		Region: "Syria",
	})

	assert.ErrorIs(t, err, domain.ErrAggregateMissing)
	assert.Zero(t, store.Len())
}

func TestRecordDonationAnonymousHidesName(t *testing.T) {
	store := provisionedStore(0, 0)

	d, err := newTestWriter(store).RecordDonation(context.Background(), domain.DonationInput{
		Amount:    decimal.NewFromInt(100),
		Region:    "Sudan",
		DonorName: "Alex",
		Anonymous: true,
		DonorID:   "user-1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AnonymousDonorName, d.DonorName)
	stored := store.Snapshot()
	require.Len(t, stored, 1)
	assert.Equal(t, domain.AnonymousDonorName, stored[0].DonorName)
	// kept for the donor's own ledger, hidden from public projections
	require.NotNil(t, stored[0].DonorID)
	assert.Nil(t, stored[0].Public().DonorID)
}

func TestRecordDonationResolutionDefaults(t *testing.T) {
	store := provisionedStore(0, 0)

	d, err := newTestWriter(store).RecordDonation(context.Background(), domain.DonationInput{
		Amount:        decimal.NewFromInt(5),
		Region:        "Atlantis",
		OriginCountry: " ca ",
	})
	require.NoError(t, err)

	assert.Equal(t, geo.DefaultRegionName, d.Region)
	assert.Equal(t, domain.DefaultDonorName, d.DonorName)
	assert.Equal(t, domain.DefaultImpactType, d.ImpactType)
	assert.Equal(t, "CA", d.OriginCountry)
	assert.Nil(t, d.DonorID)
}

func TestRecordDonationCanonicalRegionName(t *testing.T) {
	store := provisionedStore(0, 0)

	d, err := newTestWriter(store).RecordDonation(context.Background(), domain.DonationInput{
		Amount: decimal.NewFromInt(5),
		Region: "  sudan ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sudan", d.Region)
}

// conflictingStore fails the first n transactions with a write conflict.
type conflictingStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *conflictingStore) RunInTx(ctx context.Context, fn func(context.Context, domain.LedgerTx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.conflicts
	s.mu.Unlock()
	if fail {
		return domain.ErrWriteConflict
	}
	return s.Store.RunInTx(ctx, fn)
}

func TestRecordDonationRetriesConflicts(t *testing.T) {
	store := &conflictingStore{Store: provisionedStore(0, 0), conflicts: 2}
	reg := prometheus.NewRegistry()
	w := newTestWriter(store, WithMaxAttempts(3), WithMetrics(metrics.New(reg)))

	d, err := w.RecordDonation(context.Background(), domain.DonationInput{Amount: decimal.NewFromInt(7)})
	require.NoError(t, err)

	assert.Equal(t, 3, store.calls)
	assert.EqualValues(t, 1, d.Seq)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 2.0, counterValue(t, reg, "impact_ledger_write_conflicts_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "impact_ledger_donations_recorded_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecordDonationConflictBudgetExhausted(t *testing.T) {
	store := &conflictingStore{Store: provisionedStore(0, 0), conflicts: 100}
	w := newTestWriter(store, WithMaxAttempts(4))

	_, err := w.RecordDonation(context.Background(), domain.DonationInput{Amount: decimal.NewFromInt(7)})

	assert.ErrorIs(t, err, domain.ErrWriteConflict)
	assert.Equal(t, 4, store.calls)
	assert.Zero(t, store.Len())
}

type brokenStore struct {
	*memory.Store
	calls int
}

func (s *brokenStore) RunInTx(context.Context, func(context.Context, domain.LedgerTx) error) error {
	s.calls++
	return errors.New("connection refused")
}

func TestRecordDonationDoesNotRetryOtherErrors(t *testing.T) {
	store := &brokenStore{Store: provisionedStore(0, 0)}

	_, err := newTestWriter(store).RecordDonation(context.Background(), domain.DonationInput{Amount: decimal.NewFromInt(1)})

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrWriteConflict)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, store.calls)
}

func TestRecordDonationConcurrentWritersLoseNothing(t *testing.T) {
	const writers = 16
	ctx := context.Background()
	store := provisionedStore(500, 5)
	// a writer can only lose a race to a commit by one of the other writers
	w := newTestWriter(store, WithMaxAttempts(writers))

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	want := decimal.NewFromInt(500)
	for i := 1; i <= writers; i++ {
		amount := decimal.NewFromInt(int64(i * 10))
		want = want.Add(amount)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.RecordDonation(ctx, domain.DonationInput{Amount: amount, Region: "Congo"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	c, err := store.GetCounters(ctx)
	require.NoError(t, err)
	assert.True(t, c.TotalDonations.Equal(want), "total %s want %s", c.TotalDonations, want)
	assert.EqualValues(t, 5+writers, c.UniqueDonors)
	assert.Equal(t, writers, store.Len())

	sum := decimal.Zero
	for _, d := range store.Snapshot() {
		sum = sum.Add(d.Amount)
	}
	assert.True(t, sum.Add(decimal.NewFromInt(500)).Equal(c.TotalDonations))
}

func TestRecordDonationCanceledContext(t *testing.T) {
	store := provisionedStore(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestWriter(store).RecordDonation(ctx, domain.DonationInput{Amount: decimal.NewFromInt(1)})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Len())
}
