package stream

import (
	"sync"
	"sync/atomic"
)

// View names a subscribable view.
type View string

const (
	ViewAggregate  View = "aggregate"
	ViewRecentFeed View = "recent_feed"
	ViewUserLedger View = "user_ledger"
)

// Subscription is a handle on one live view. Observers run on a goroutine owned by
// the subscription, one call at a time, in version order.
type Subscription struct {
	view      View
	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once
	release   func()
}

func (s *Subscription) View() View { return s.view }

// Cancel stops the subscription. A call already in progress finishes; no further
// calls follow. Cancelling more than once is a no-op.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// mailbox holds the newest undelivered snapshot for one subscription. Offers that
// are not newer than what the observer has already seen are dropped.
type mailbox[T snapshot] struct {
	sub       *Subscription
	observer  func(T)
	signal    chan struct{}
	onDeliver func()

	mu      sync.Mutex
	pending T
	hasNext bool
	last    int64
}

func newMailbox[T snapshot](sub *Subscription, observer func(T), onDeliver func()) *mailbox[T] {
	return &mailbox[T]{
		sub:       sub,
		observer:  observer,
		signal:    make(chan struct{}, 1),
		onDeliver: onDeliver,
		last:      -1,
	}
}

func (m *mailbox[T]) offer(snap T) {
	m.mu.Lock()
	if snap.version() <= m.last || (m.hasNext && snap.version() <= m.pending.version()) {
		m.mu.Unlock()
		return
	}
	m.pending = snap
	m.hasNext = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) run() {
	for {
		select {
		case <-m.sub.done:
			return
		case <-m.signal:
		}

		m.mu.Lock()
		if !m.hasNext {
			m.mu.Unlock()
			continue
		}
		snap := m.pending
		m.hasNext = false
		m.last = snap.version()
		m.mu.Unlock()

		if m.sub.cancelled.Load() {
			return
		}
		m.observer(snap)
		if m.onDeliver != nil {
			m.onDeliver()
		}
	}
}
