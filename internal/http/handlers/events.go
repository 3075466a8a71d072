package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hanizaheer02/impact-tracker/internal/middleware"
	"github.com/hanizaheer02/impact-tracker/internal/stream"
)

// serveEvents streams snapshots as server-sent events until the client leaves.
// Observers never block: a slow client only sees the newest snapshot.
func serveEvents[T any](a *App, w http.ResponseWriter, r *http.Request, event string,
	subscribe func(observer func(T)) *stream.Subscription,
	render func(T) (version int64, payload any),
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	updates := make(chan T, 1)
	sub := subscribe(func(snap T) {
		for {
			select {
			case updates <- snap:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer sub.Cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := a.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			version, payload := render(snap)
			data, err := json.Marshal(payload)
			if err != nil {
				a.Logger.Error().Err(err).Str("event", event).Msg("encode stream event")
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", version, event, data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (a *App) StreamStats(w http.ResponseWriter, r *http.Request) {
	serveEvents(a, w, r, "stats", a.Views.SubscribeAggregate,
		func(s stream.AggregateSnapshot) (int64, any) { return s.Version, toStatsDTO(s) })
}

func (a *App) StreamRecent(w http.ResponseWriter, r *http.Request) {
	limit, ok := a.limitParam(w, r, defaultFeedLimit)
	if !ok {
		return
	}
	serveEvents(a, w, r, "recent",
		func(obs func(stream.FeedSnapshot)) *stream.Subscription { return a.Views.SubscribeRecentFeed(obs, limit) },
		func(s stream.FeedSnapshot) (int64, any) { return s.Version, toFeedDTO(s) })
}

func (a *App) StreamMap(w http.ResponseWriter, r *http.Request) {
	points, ok := a.pointsParam(w, r)
	if !ok {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	serveEvents(a, w, r, "map",
		func(obs func(stream.FeedSnapshot)) *stream.Subscription { return a.Views.SubscribeRecentFeed(obs, a.MapWindow) },
		func(s stream.FeedSnapshot) (int64, any) { return s.Version, a.renderMap(s, locale, points) })
}

func (a *App) StreamMyDonations(w http.ResponseWriter, r *http.Request) {
	donorID := middleware.UserIDFromContext(r.Context())
	if donorID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return
	}
	serveEvents(a, w, r, "ledger",
		func(obs func(stream.LedgerSnapshot)) *stream.Subscription { return a.Views.SubscribeUserLedger(obs, donorID) },
		func(s stream.LedgerSnapshot) (int64, any) { return s.Version, toLedgerDTO(s) })
}
