package memory

import (
	"context"
	"fmt"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
)

type listener struct {
	queue  []domain.Change
	signal chan struct{}
	failed chan error
}

// push must be called with the store lock held.
func (l *listener) push(changes []domain.Change) {
	if len(changes) == 0 {
		return
	}
	l.queue = append(l.queue, changes...)
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Listen implements domain.ChangeFeed. Changes are delivered on the calling
// goroutine in commit order.
func (s *Store) Listen(ctx context.Context, onChange func(domain.Change)) error {
	l := &listener{
		signal: make(chan struct{}, 1),
		failed: make(chan error, 1),
	}
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}()

	onChange(domain.Change{Resync: true})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-l.failed:
			return fmt.Errorf("memory: listener closed: %v: %w", err, domain.ErrSubscriptionTransport)
		case <-l.signal:
			s.mu.Lock()
			pending := l.queue
			l.queue = nil
			s.mu.Unlock()
			for _, c := range pending {
				onChange(c)
			}
		}
	}
}

// Disconnect fails every active Listen call with err, the way a dropped
// notification connection would.
func (s *Store) Disconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		select {
		case l.failed <- err:
		default:
		}
	}
}

// Listeners reports how many Listen calls are active.
func (s *Store) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

var _ domain.ChangeFeed = (*Store)(nil)
