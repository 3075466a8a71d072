// Package memory provides an in-process ledger store with optimistic conflict
// detection and an in-process change feed. It backs local development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
)

// Store keeps the ledger in memory. The counters record carries a version that is
// checked at commit time, so transactions that read stale counters abort with
// domain.ErrWriteConflict.
type Store struct {
	mu        sync.Mutex
	donations []domain.Donation
	counters  *domain.AggregateCounters
	seq       int64
	lastAt    time.Time
	now       func() time.Time

	listeners    map[int]*listener
	nextListener int
}

// NewStore returns an empty store without a counters record.
func NewStore() *Store {
	return &Store{
		now:       time.Now,
		listeners: make(map[int]*listener),
	}
}

// WithClock overrides the commit timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Provision creates or replaces the counters record.
func (s *Store) Provision(counters domain.AggregateCounters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := counters
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now()
	}
	s.counters = &c
}

// DropCounters removes the counters record.
func (s *Store) DropCounters() {
	s.mu.Lock()
	s.counters = nil
	s.mu.Unlock()
}

// Len returns the number of committed donations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.donations)
}

func (s *Store) GetCounters(ctx context.Context) (*domain.AggregateCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		return nil, domain.ErrAggregateMissing
	}
	c := *s.counters
	return &c, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Donation, error) {
	if limit <= 0 {
		return []domain.Donation{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Donation, 0, min(limit, len(s.donations)))
	for i := len(s.donations) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.donations[i])
	}
	return out, nil
}

func (s *Store) ListByDonor(ctx context.Context, donorID string) ([]domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Donation
	for i := len(s.donations) - 1; i >= 0; i-- {
		d := s.donations[i]
		if d.DonorID != nil && *d.DonorID == donorID {
			out = append(out, d)
		}
	}
	return out, nil
}

// RunInTx buffers the writes made through tx and applies them in one step if the
// counters version read by the transaction is still current.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	if tx.counters != nil {
		if s.counters == nil {
			s.mu.Unlock()
			return domain.ErrAggregateMissing
		}
		if !tx.readCounters || s.counters.Version != tx.readVersion {
			s.mu.Unlock()
			return fmt.Errorf("memory: counters changed since read: %w", domain.ErrWriteConflict)
		}
	}

	changes := make([]domain.Change, 0, len(tx.inserts))
	for _, d := range tx.inserts {
		s.seq++
		at := s.now().UTC()
		if at.Before(s.lastAt) {
			at = s.lastAt
		}
		s.lastAt = at
		d.Seq = s.seq
		d.CreatedAt = at
		s.donations = append(s.donations, *d)
		changes = append(changes, domain.Change{Seq: d.Seq, DonationID: d.ID})
	}
	if tx.counters != nil {
		c := *tx.counters
		c.UpdatedAt = s.now().UTC()
		s.counters = &c
	}
	for _, l := range s.listeners {
		l.push(changes)
	}
	s.mu.Unlock()
	return nil
}

type memTx struct {
	store        *Store
	readCounters bool
	readVersion  int64
	inserts      []*domain.Donation
	counters     *domain.AggregateCounters
}

func (t *memTx) GetCounters(ctx context.Context) (*domain.AggregateCounters, error) {
	c, err := t.store.GetCounters(ctx)
	if err != nil {
		return nil, err
	}
	t.readCounters = true
	t.readVersion = c.Version
	return c, nil
}

func (t *memTx) InsertDonation(ctx context.Context, donation *domain.Donation) error {
	if donation == nil {
		return errors.New("memory: donation is required")
	}
	donation.ID = uuid.NewString()
	t.inserts = append(t.inserts, donation)
	return nil
}

func (t *memTx) PutCounters(ctx context.Context, counters *domain.AggregateCounters) error {
	if counters == nil {
		return errors.New("memory: counters are required")
	}
	c := *counters
	t.counters = &c
	return nil
}

// Snapshot returns every committed donation in commit order.
func (s *Store) Snapshot() []domain.Donation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Donation(nil), s.donations...)
}

var _ domain.LedgerStore = (*Store)(nil)
