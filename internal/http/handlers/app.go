package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
	"github.com/hanizaheer02/impact-tracker/internal/mapview"
	"github.com/hanizaheer02/impact-tracker/internal/stream"
)

const defaultHeartbeat = 15 * time.Second

// DonationRecorder commits donations to the ledger.
type DonationRecorder interface {
	RecordDonation(ctx context.Context, in domain.DonationInput) (*domain.Donation, error)
}

// LiveViews serves the aggregate, recent-feed and per-donor views.
type LiveViews interface {
	Aggregate() stream.AggregateSnapshot
	RecentFeed(limit int) stream.FeedSnapshot
	UserLedger(ctx context.Context, donorID string) (stream.LedgerSnapshot, error)
	SubscribeAggregate(observer func(stream.AggregateSnapshot)) *stream.Subscription
	SubscribeRecentFeed(observer func(stream.FeedSnapshot), limit int) *stream.Subscription
	SubscribeUserLedger(observer func(stream.LedgerSnapshot), donorID string) *stream.Subscription
}

type App struct {
	Writer    DonationRecorder
	Views     LiveViews
	Regions   *geo.Directory
	Projector *mapview.Projector
	MapWindow int
	Gatherer  prometheus.Gatherer
	Logger    zerolog.Logger
	Heartbeat time.Duration
}

func NewApp(writer DonationRecorder, views LiveViews, regions *geo.Directory, mapWindow int, gatherer prometheus.Gatherer, logger zerolog.Logger) *App {
	if regions == nil {
		regions = geo.DefaultDirectory()
	}
	if mapWindow <= 0 {
		mapWindow = mapview.DefaultWindow
	}
	return &App{
		Writer:    writer,
		Views:     views,
		Regions:   regions,
		Projector: mapview.NewProjector(regions),
		MapWindow: mapWindow,
		Gatherer:  gatherer,
		Logger:    logger,
		Heartbeat: defaultHeartbeat,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}

// fail maps ledger errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		a.error(w, http.StatusBadRequest, "invalid_amount", "amount must be positive, below 1000000000000, with at most 2 decimal places")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "sign in required")
	case errors.Is(err, domain.ErrAggregateMissing):
		a.error(w, http.StatusServiceUnavailable, "aggregate_missing", "donation ledger is not provisioned")
	case errors.Is(err, domain.ErrWriteConflict):
		a.error(w, http.StatusConflict, "write_conflict", "ledger busy, please retry")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
