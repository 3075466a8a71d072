// Package notify carries ledger commit notifications over Postgres LISTEN/NOTIFY.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
)

const (
	minReconnectInterval = 500 * time.Millisecond
	maxReconnectInterval = 10 * time.Second
	pingInterval         = 30 * time.Second
)

type payload struct {
	Seq        int64  `json:"seq"`
	DonationID string `json:"id"`
}

// Encode renders a change as a notification payload.
func Encode(c domain.Change) (string, error) {
	raw, err := json.Marshal(payload{Seq: c.Seq, DonationID: c.DonationID})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode parses a notification payload.
func Decode(extra string) (domain.Change, error) {
	var p payload
	if err := json.Unmarshal([]byte(extra), &p); err != nil {
		return domain.Change{}, fmt.Errorf("decode ledger notification: %w", err)
	}
	if p.Seq <= 0 || p.DonationID == "" {
		return domain.Change{}, fmt.Errorf("decode ledger notification: incomplete payload %q", extra)
	}
	return domain.Change{Seq: p.Seq, DonationID: p.DonationID}, nil
}

// connection is the part of *pq.Listener the feed uses.
type connection interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Listener implements domain.ChangeFeed with a dedicated lib/pq connection.
type Listener struct {
	channel string
	logger  zerolog.Logger
	dial    func(onEvent pq.EventCallbackType) connection
}

func NewListener(dsn, channel string, logger zerolog.Logger) *Listener {
	return &Listener{
		channel: channel,
		logger:  logger,
		dial: func(onEvent pq.EventCallbackType) connection {
			return pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, onEvent)
		},
	}
}

// Listen delivers ledger changes until ctx ends or the connection cannot be
// re-established. pq reconnects on its own after a drop; since notifications sent
// in the meantime are lost, every reconnect is reported as a Resync.
func (l *Listener) Listen(ctx context.Context, onChange func(domain.Change)) error {
	failed := make(chan error, 1)
	conn := l.dial(func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			select {
			case failed <- err:
			default:
			}
		case pq.ListenerEventDisconnected:
			l.logger.Warn().Err(err).Str("channel", l.channel).Msg("ledger notification connection lost")
		case pq.ListenerEventReconnected:
			l.logger.Info().Str("channel", l.channel).Msg("ledger notification connection restored")
		}
	})
	defer conn.Close()

	if err := conn.Listen(l.channel); err != nil {
		return fmt.Errorf("listen %s: %v: %w", l.channel, err, domain.ErrSubscriptionTransport)
	}
	onChange(domain.Change{Resync: true})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	notifications := conn.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-failed:
			return fmt.Errorf("listen %s: %v: %w", l.channel, err, domain.ErrSubscriptionTransport)
		case n, ok := <-notifications:
			if !ok {
				return fmt.Errorf("listen %s: notification channel closed: %w", l.channel, domain.ErrSubscriptionTransport)
			}
			if n == nil {
				onChange(domain.Change{Resync: true})
				continue
			}
			c, err := Decode(n.Extra)
			if err != nil {
				l.logger.Warn().Err(err).Msg("unreadable ledger notification")
				c = domain.Change{Resync: true}
			}
			onChange(c)
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				l.logger.Debug().Err(err).Msg("ledger notification ping failed")
			}
		}
	}
}

var _ domain.ChangeFeed = (*Listener)(nil)
