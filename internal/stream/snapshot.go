package stream

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
)

// State describes where a view's data came from.
type State int

const (
	// Loading means nothing has been read from the ledger yet.
	Loading State = iota
	// Live views reflect the ledger as of their version.
	Live
	// TimedOut views gave up waiting for the first read. A later live snapshot
	// supersedes them.
	TimedOut
	// Degraded views are served from fallback data because the change stream failed.
	Degraded
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case TimedOut:
		return "timed_out"
	case Degraded:
		return "degraded"
	default:
		return "loading"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "loading":
		*s = Loading
	case "live":
		*s = Live
	case "timed_out":
		*s = TimedOut
	case "degraded":
		*s = Degraded
	default:
		return fmt.Errorf("unknown view state %q", text)
	}
	return nil
}

// AggregateSnapshot is the global counters view.
type AggregateSnapshot struct {
	Counters domain.AggregateCounters
	State    State
	Version  int64
}

// FeedSnapshot is the recent-activity view, newest first. Donations are public
// projections.
type FeedSnapshot struct {
	Donations []domain.Donation
	State     State
	Version   int64
}

// LedgerSnapshot is one donor's own donations, newest first, with running totals.
type LedgerSnapshot struct {
	DonorID   string
	Donations []domain.Donation
	Total     decimal.Decimal
	Count     int
	State     State
	Version   int64
}

func (s AggregateSnapshot) version() int64 { return s.Version }
func (s FeedSnapshot) version() int64      { return s.Version }
func (s LedgerSnapshot) version() int64    { return s.Version }

type snapshot interface {
	AggregateSnapshot | FeedSnapshot | LedgerSnapshot
	version() int64
}

func newLedgerSnapshot(donorID string, donations []domain.Donation, state State, version int64) LedgerSnapshot {
	total := decimal.Zero
	for _, d := range donations {
		total = total.Add(d.Amount)
	}
	if donations == nil {
		donations = []domain.Donation{}
	}
	return LedgerSnapshot{
		DonorID:   donorID,
		Donations: donations,
		Total:     total,
		Count:     len(donations),
		State:     state,
		Version:   version,
	}
}

// truncate returns a copy of the feed limited to n entries.
func (s FeedSnapshot) truncate(n int) FeedSnapshot {
	items := s.Donations
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	s.Donations = append([]domain.Donation{}, items...)
	return s
}
