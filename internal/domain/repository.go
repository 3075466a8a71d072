package domain

import "context"

// LedgerTx is the unit of work handed to LedgerStore.RunInTx. Reads made through it
// participate in the store's conflict detection.
type LedgerTx interface {
	// GetCounters returns ErrAggregateMissing when the record has not been provisioned.
	GetCounters(ctx context.Context) (*AggregateCounters, error)
	// InsertDonation persists the donation and fills in ID, Seq and CreatedAt.
	InsertDonation(ctx context.Context, donation *Donation) error
	PutCounters(ctx context.Context, counters *AggregateCounters) error
}

// LedgerStore is the append-only donation ledger plus its aggregate counters.
type LedgerStore interface {
	// RunInTx runs fn atomically. A detected isolation violation is reported as an
	// error wrapping ErrWriteConflict and nothing fn wrote is kept.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
	GetCounters(ctx context.Context) (*AggregateCounters, error)
	ListRecent(ctx context.Context, limit int) ([]Donation, error)
	ListByDonor(ctx context.Context, donorID string) ([]Donation, error)
}

// Change announces a committed donation. A Resync change carries no donation and
// tells the consumer that earlier notifications may have been missed.
type Change struct {
	Seq        int64
	DonationID string
	Resync     bool
}

// ChangeFeed delivers commit notifications in commit order.
type ChangeFeed interface {
	// Listen blocks until ctx is done or the transport fails. Once the listener is
	// registered it delivers a Resync change before any commit notification.
	// Transport failures are returned wrapped with ErrSubscriptionTransport.
	Listen(ctx context.Context, onChange func(Change)) error
}
