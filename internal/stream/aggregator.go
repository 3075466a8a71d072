// Package stream derives live views from the ledger's change feed. One feed
// listener fans out to every subscription. Each change triggers a re-read of the
// ledger, and subscribers receive full snapshots.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/fallback"
	"github.com/hanizaheer02/impact-tracker/internal/metrics"
)

const (
	DefaultFeedWindow      = 50
	DefaultSnapshotTimeout = 5 * time.Second
	DefaultRetryDelay      = 5 * time.Second
)

// Reader is the query side of the ledger.
type Reader interface {
	GetCounters(ctx context.Context) (*domain.AggregateCounters, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Donation, error)
	ListByDonor(ctx context.Context, donorID string) ([]domain.Donation, error)
}

type Config struct {
	// FeedWindow is the largest recent-feed limit served.
	FeedWindow int
	// SnapshotTimeout bounds how long a new subscription waits in Loading.
	SnapshotTimeout time.Duration
	// RetryDelay is the pause before reconnecting a failed change feed. Zero
	// disables reconnection.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.FeedWindow <= 0 {
		c.FeedWindow = DefaultFeedWindow
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = DefaultSnapshotTimeout
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

type Aggregator struct {
	reader  Reader
	feed    domain.ChangeFeed
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	running atomic.Bool
	dirty   chan struct{}

	mu        sync.Mutex
	state     State
	connected bool
	epoch     uint64
	aggregate AggregateSnapshot
	recent    FeedSnapshot
	ledgers   map[string]*ledgerView
	subs      map[*Subscription]*entry
}

type ledgerView struct {
	snap   LedgerSnapshot
	loaded bool
	refs   int
}

// entry is the aggregator's side of a subscription. push runs with a.mu held.
type entry struct {
	view    View
	donorID string
	push    func()
	timer   *time.Timer
}

func NewAggregator(reader Reader, feed domain.ChangeFeed, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		reader:  reader,
		feed:    feed,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
		dirty:   make(chan struct{}, 1),
		recent:  FeedSnapshot{Donations: []domain.Donation{}},
		ledgers: make(map[string]*ledgerView),
		subs:    make(map[*Subscription]*entry),
	}
}

// Run listens to the change feed until ctx is done, reconnecting after transport
// failures. It returns nil on cancellation.
func (a *Aggregator) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("stream: aggregator already running")
	}
	defer a.running.Store(false)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.refreshLoop(ctx)
	}()
	defer wg.Wait()

	loading := time.AfterFunc(a.cfg.SnapshotTimeout, a.loadingTimedOut)
	defer loading.Stop()

	for {
		err := a.feed.Listen(ctx, a.onChange)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("listener returned: %w", domain.ErrSubscriptionTransport)
		}
		a.transportFailed(err)

		if a.cfg.RetryDelay <= 0 {
			<-ctx.Done()
			return nil
		}
		if !waitRetry(ctx, a.cfg.RetryDelay) {
			return nil
		}
		a.logger.Info().Msg("reconnecting ledger change feed")
	}
}

func waitRetry(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (a *Aggregator) onChange(c domain.Change) {
	if c.Resync {
		a.mu.Lock()
		if !a.connected {
			a.connected = true
			a.epoch++
		}
		a.mu.Unlock()
	}
	a.markDirty()
}

func (a *Aggregator) markDirty() {
	select {
	case a.dirty <- struct{}{}:
	default:
	}
}

func (a *Aggregator) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.dirty:
			a.refresh(ctx)
		}
	}
}

// refresh re-reads every view and publishes the results. Results are dropped when
// the feed disconnected while the reads were in flight.
func (a *Aggregator) refresh(ctx context.Context) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return
	}
	epoch := a.epoch
	donors := make([]string, 0, len(a.ledgers))
	for id := range a.ledgers {
		donors = append(donors, id)
	}
	a.mu.Unlock()

	counters, err := a.reader.GetCounters(ctx)
	if err != nil {
		a.readFailed(ctx, epoch, fmt.Errorf("read counters: %w", err))
		return
	}
	recent, err := a.reader.ListRecent(ctx, a.cfg.FeedWindow)
	if err != nil {
		a.readFailed(ctx, epoch, fmt.Errorf("read recent feed: %w", err))
		return
	}
	byDonor := make(map[string][]domain.Donation, len(donors))
	for _, id := range donors {
		items, err := a.reader.ListByDonor(ctx, id)
		if err != nil {
			a.readFailed(ctx, epoch, fmt.Errorf("read donor ledger: %w", err))
			return
		}
		byDonor[id] = items
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected || a.epoch != epoch {
		return
	}
	if a.state != Live {
		a.logger.Info().Str("from", a.state.String()).Msg("live views restored")
		a.metrics.SetDegraded(false)
	}
	a.state = Live

	a.aggregate = AggregateSnapshot{Counters: *counters, State: Live, Version: a.aggregate.Version + 1}
	public := make([]domain.Donation, len(recent))
	for i, d := range recent {
		public[i] = d.Public()
	}
	a.recent = FeedSnapshot{Donations: public, State: Live, Version: a.recent.Version + 1}
	for id, items := range byDonor {
		lv, ok := a.ledgers[id]
		if !ok {
			continue
		}
		lv.snap = newLedgerSnapshot(id, items, Live, lv.snap.Version+1)
		lv.loaded = true
	}
	a.pushAllLocked()
}

func (a *Aggregator) readFailed(ctx context.Context, epoch uint64, err error) {
	if ctx.Err() != nil {
		return
	}
	a.logger.Warn().Err(err).Msg("ledger read failed, serving fallback data")
	a.mu.Lock()
	if a.epoch == epoch {
		a.degradeLocked()
	}
	a.mu.Unlock()
	if a.cfg.RetryDelay > 0 {
		time.AfterFunc(a.cfg.RetryDelay, a.markDirty)
	}
}

func (a *Aggregator) transportFailed(err error) {
	a.logger.Warn().Err(err).Msg("ledger change feed failed, serving fallback data")
	a.metrics.TransportError()
	a.mu.Lock()
	a.connected = false
	a.epoch++
	a.degradeLocked()
	a.mu.Unlock()
}

// degradeLocked swaps the aggregate and feed views to the fallback data set. Donor
// ledgers keep their last known entries.
func (a *Aggregator) degradeLocked() {
	if a.state == Degraded {
		return
	}
	a.state = Degraded
	a.metrics.SetDegraded(true)

	a.aggregate = AggregateSnapshot{Counters: fallback.Counters(), State: Degraded, Version: a.aggregate.Version + 1}
	a.recent = FeedSnapshot{Donations: fallback.Feed(), State: Degraded, Version: a.recent.Version + 1}
	for id, lv := range a.ledgers {
		lv.snap = newLedgerSnapshot(id, lv.snap.Donations, Degraded, lv.snap.Version+1)
	}
	a.pushAllLocked()
}

func (a *Aggregator) loadingTimedOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Loading {
		a.logger.Warn().Dur("after", a.cfg.SnapshotTimeout).Msg("no ledger snapshot yet")
		a.state = TimedOut
		a.aggregate.State = TimedOut
		a.recent.State = TimedOut
	}
}

func (a *Aggregator) pushAllLocked() {
	for _, e := range a.subs {
		e.push()
	}
}

// SubscribeAggregate registers observer for the global counters view.
func (a *Aggregator) SubscribeAggregate(observer func(AggregateSnapshot)) *Subscription {
	sub := a.newSubscription(ViewAggregate)
	box := newMailbox(sub, observer, a.delivered(ViewAggregate))
	e := &entry{view: ViewAggregate}
	e.push = func() {
		if a.aggregate.Version > 0 {
			box.offer(a.aggregate)
		}
	}
	a.register(sub, e, func() {
		box.offer(AggregateSnapshot{State: TimedOut})
	})
	go box.run()
	return sub
}

// SubscribeRecentFeed registers observer for the newest limit donations. The
// limit is clamped to the configured feed window.
func (a *Aggregator) SubscribeRecentFeed(observer func(FeedSnapshot), limit int) *Subscription {
	limit = a.clampLimit(limit)
	sub := a.newSubscription(ViewRecentFeed)
	box := newMailbox(sub, observer, a.delivered(ViewRecentFeed))
	e := &entry{view: ViewRecentFeed}
	e.push = func() {
		if a.recent.Version > 0 {
			box.offer(a.recent.truncate(limit))
		}
	}
	a.register(sub, e, func() {
		box.offer(FeedSnapshot{Donations: []domain.Donation{}, State: TimedOut})
	})
	go box.run()
	return sub
}

// SubscribeUserLedger registers observer for one donor's own donations.
func (a *Aggregator) SubscribeUserLedger(observer func(LedgerSnapshot), donorID string) *Subscription {
	sub := a.newSubscription(ViewUserLedger)
	box := newMailbox(sub, observer, a.delivered(ViewUserLedger))
	e := &entry{view: ViewUserLedger, donorID: donorID}
	e.push = func() {
		if lv, ok := a.ledgers[donorID]; ok && lv.snap.Version > 0 {
			box.offer(lv.snap)
		}
	}

	a.mu.Lock()
	lv, ok := a.ledgers[donorID]
	if !ok {
		lv = &ledgerView{snap: newLedgerSnapshot(donorID, nil, Loading, 0)}
		a.ledgers[donorID] = lv
	}
	lv.refs++
	if !lv.loaded && a.state == Degraded && lv.snap.Version == 0 {
		lv.snap = newLedgerSnapshot(donorID, nil, Degraded, 1)
	}
	a.mu.Unlock()

	a.register(sub, e, func() {
		box.offer(newLedgerSnapshot(donorID, nil, TimedOut, 0))
	})
	go box.run()
	if !ok {
		a.markDirty()
	}
	return sub
}

func (a *Aggregator) newSubscription(view View) *Subscription {
	return &Subscription{view: view, done: make(chan struct{})}
}

func (a *Aggregator) delivered(view View) func() {
	return func() { a.metrics.SnapshotPublished(string(view)) }
}

// register adds the entry, pushes the current state and arms the loading timeout.
func (a *Aggregator) register(sub *Subscription, e *entry, onTimeout func()) {
	a.mu.Lock()
	a.subs[sub] = e
	e.timer = time.AfterFunc(a.cfg.SnapshotTimeout, onTimeout)
	e.push()
	a.mu.Unlock()
	a.metrics.SubscriberAdded(string(e.view))

	sub.release = func() { a.unregister(sub) }
}

func (a *Aggregator) unregister(sub *Subscription) {
	a.mu.Lock()
	e, ok := a.subs[sub]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.subs, sub)
	e.timer.Stop()
	if e.view == ViewUserLedger {
		if lv, ok := a.ledgers[e.donorID]; ok {
			lv.refs--
			if lv.refs <= 0 {
				delete(a.ledgers, e.donorID)
			}
		}
	}
	a.mu.Unlock()
	a.metrics.SubscriberRemoved(string(e.view))
}

func (a *Aggregator) clampLimit(limit int) int {
	if limit <= 0 || limit > a.cfg.FeedWindow {
		return a.cfg.FeedWindow
	}
	return limit
}

// Aggregate returns the current global counters view.
func (a *Aggregator) Aggregate() AggregateSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aggregate
}

// RecentFeed returns the current recent-activity view limited to limit entries.
func (a *Aggregator) RecentFeed(limit int) FeedSnapshot {
	limit = a.clampLimit(limit)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recent.truncate(limit)
}

// UserLedger returns one donor's ledger. A subscribed donor is served from the
// live view; otherwise the ledger is read directly. Read failures are absorbed
// into a degraded, empty snapshot.
func (a *Aggregator) UserLedger(ctx context.Context, donorID string) (LedgerSnapshot, error) {
	if donorID == "" {
		return LedgerSnapshot{}, domain.ErrUnauthorized
	}
	a.mu.Lock()
	if lv, ok := a.ledgers[donorID]; ok && lv.loaded {
		snap := lv.snap
		a.mu.Unlock()
		return snap, nil
	}
	a.mu.Unlock()

	items, err := a.reader.ListByDonor(ctx, donorID)
	if err != nil {
		if ctx.Err() != nil {
			return LedgerSnapshot{}, ctx.Err()
		}
		a.logger.Warn().Err(err).Str("donor_id", donorID).Msg("donor ledger read failed")
		return newLedgerSnapshot(donorID, nil, Degraded, 0), nil
	}
	return newLedgerSnapshot(donorID, items, Live, 0), nil
}
