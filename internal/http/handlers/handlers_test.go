package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
	"github.com/hanizaheer02/impact-tracker/internal/metrics"
	"github.com/hanizaheer02/impact-tracker/internal/middleware"
	"github.com/hanizaheer02/impact-tracker/internal/stream"
)

type stubRecorder struct {
	got  domain.DonationInput
	resp *domain.Donation
	err  error
}

func (s *stubRecorder) RecordDonation(_ context.Context, in domain.DonationInput) (*domain.Donation, error) {
	s.got = in
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &domain.Donation{
		ID:         "d-1",
		Seq:        1,
		Amount:     in.Amount,
		DonorName:  in.DonorName,
		Region:     in.Region,
		ImpactType: in.ImpactType,
		Anonymous:  in.Anonymous,
		Status:     domain.StatusVerified,
	}, nil
}

// stubViews serves fixed snapshots for point reads.
type stubViews struct {
	aggregate stream.AggregateSnapshot
	feed      stream.FeedSnapshot
	ledger    stream.LedgerSnapshot
	ledgerErr error
	feedLimit int
	donorID   string
}

func (s *stubViews) Aggregate() stream.AggregateSnapshot { return s.aggregate }

func (s *stubViews) RecentFeed(limit int) stream.FeedSnapshot {
	s.feedLimit = limit
	return s.feed
}

func (s *stubViews) UserLedger(_ context.Context, donorID string) (stream.LedgerSnapshot, error) {
	s.donorID = donorID
	if donorID == "" {
		return stream.LedgerSnapshot{}, domain.ErrUnauthorized
	}
	return s.ledger, s.ledgerErr
}

func (s *stubViews) SubscribeAggregate(func(stream.AggregateSnapshot)) *stream.Subscription {
	panic("not used")
}

func (s *stubViews) SubscribeRecentFeed(func(stream.FeedSnapshot), int) *stream.Subscription {
	panic("not used")
}

func (s *stubViews) SubscribeUserLedger(func(stream.LedgerSnapshot), string) *stream.Subscription {
	panic("not used")
}

func newTestApp(rec DonationRecorder, views LiveViews) *App {
	return NewApp(rec, views, geo.DefaultDirectory(), 20, nil, zerolog.Nop())
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func TestDonationsCreateGuest(t *testing.T) {
	rec := &stubRecorder{}
	app := newTestApp(rec, &stubViews{})

	req := httptest.NewRequest(http.MethodPost, "/v1/donations",
		strings.NewReader(`{"amount":"250.5","region":"Sudan","impact_type":"Clean Water","donor_name":"Lee"}`))
	req = req.WithContext(context.WithValue(req.Context(), middleware.CountryKey, "GB"))
	rr := httptest.NewRecorder()

	app.DonationsCreate(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if !rec.got.Amount.Equal(decimal.RequireFromString("250.5")) || rec.got.DonorID != "" || rec.got.OriginCountry != "GB" {
		t.Fatalf("unexpected input: %#v", rec.got)
	}
	var dto donationDTO
	if err := json.NewDecoder(rr.Body).Decode(&dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dto.Amount != "250.50" || dto.Region != "Sudan" || dto.DonorName != "Lee" {
		t.Fatalf("unexpected response: %#v", dto)
	}
}

func TestDonationsCreateSignedInUsesTokenIdentity(t *testing.T) {
	rec := &stubRecorder{}
	app := newTestApp(rec, &stubViews{})

	req := httptest.NewRequest(http.MethodPost, "/v1/donations", strings.NewReader(`{"amount":10}`))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-7"))
	rr := httptest.NewRecorder()

	app.DonationsCreate(rr, req)

	if rr.Code != http.StatusCreated || rec.got.DonorID != "user-7" {
		t.Fatalf("status %d input %#v", rr.Code, rec.got)
	}
}

func TestDonationsCreateAnonymousHidesName(t *testing.T) {
	donor := "user-7"
	rec := &stubRecorder{resp: &domain.Donation{
		ID: "d-9", Amount: decimal.NewFromInt(5), DonorID: &donor, DonorName: "Real Name", Anonymous: true,
	}}
	app := newTestApp(rec, &stubViews{})

	rr := httptest.NewRecorder()
	app.DonationsCreate(rr, httptest.NewRequest(http.MethodPost, "/v1/donations",
		strings.NewReader(`{"amount":5,"anonymous":true,"donor_name":"Real Name"}`)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "Real Name") || strings.Contains(rr.Body.String(), "user-7") {
		t.Fatalf("anonymous donor exposed: %s", rr.Body.String())
	}
}

func TestDonationsCreateErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "malformed json", body: `{"amount":`, wantCode: http.StatusBadRequest, wantErr: "bad_request"},
		{name: "unknown field", body: `{"amount":1,"donor_id":"spoof"}`, wantCode: http.StatusBadRequest, wantErr: "bad_request"},
		{name: "invalid amount", body: `{"amount":0}`, err: domain.ErrInvalidAmount, wantCode: http.StatusBadRequest, wantErr: "invalid_amount"},
		{name: "missing counters", body: `{"amount":1}`, err: domain.ErrAggregateMissing, wantCode: http.StatusServiceUnavailable, wantErr: "aggregate_missing"},
		{name: "conflict", body: `{"amount":1}`, err: fmt.Errorf("record donation after 5 attempts: %w", domain.ErrWriteConflict), wantCode: http.StatusConflict, wantErr: "write_conflict"},
		{name: "store failure", body: `{"amount":1}`, err: errors.New("disk on fire"), wantCode: http.StatusInternalServerError, wantErr: "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(&stubRecorder{err: tc.err}, &stubViews{})
			rr := httptest.NewRecorder()

			app.DonationsCreate(rr, httptest.NewRequest(http.MethodPost, "/v1/donations", strings.NewReader(tc.body)))

			if rr.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantCode)
			}
			if got := decodeError(t, rr); got != tc.wantErr {
				t.Fatalf("error code = %q, want %q", got, tc.wantErr)
			}
		})
	}
}

func TestStatsGet(t *testing.T) {
	views := &stubViews{aggregate: stream.AggregateSnapshot{
		Counters: domain.AggregateCounters{TotalDonations: decimal.NewFromInt(1100), UniqueDonors: 11},
		State:    stream.Live,
		Version:  4,
	}}
	app := newTestApp(&stubRecorder{}, views)
	rr := httptest.NewRecorder()

	app.StatsGet(rr, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	var got map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["total_donations"] != "1100.00" || got["unique_donors"] != float64(11) || got["state"] != "live" || got["version"] != float64(4) {
		t.Fatalf("unexpected stats: %#v", got)
	}
}

func TestDonationsRecentLimit(t *testing.T) {
	views := &stubViews{feed: stream.FeedSnapshot{Donations: []domain.Donation{}, State: stream.Live, Version: 2}}
	app := newTestApp(&stubRecorder{}, views)

	rr := httptest.NewRecorder()
	app.DonationsRecent(rr, httptest.NewRequest(http.MethodGet, "/v1/donations/recent", nil))
	if rr.Code != http.StatusOK || views.feedLimit != defaultFeedLimit {
		t.Fatalf("default limit: status %d limit %d", rr.Code, views.feedLimit)
	}

	rr = httptest.NewRecorder()
	app.DonationsRecent(rr, httptest.NewRequest(http.MethodGet, "/v1/donations/recent?limit=12", nil))
	if views.feedLimit != 12 {
		t.Fatalf("limit = %d", views.feedLimit)
	}
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("empty feed must encode as []: %s", rr.Body.String())
	}

	for _, bad := range []string{"0", "-3", "ten"} {
		rr = httptest.NewRecorder()
		app.DonationsRecent(rr, httptest.NewRequest(http.MethodGet, "/v1/donations/recent?limit="+bad, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: status %d", bad, rr.Code)
		}
	}
}

func TestMyDonations(t *testing.T) {
	donor := "user-1"
	views := &stubViews{ledger: stream.LedgerSnapshot{
		DonorID:   donor,
		Donations: []domain.Donation{{ID: "d-2", Amount: decimal.NewFromInt(40), DonorID: &donor}},
		Total:     decimal.NewFromInt(40),
		Count:     1,
		State:     stream.Live,
	}}
	app := newTestApp(&stubRecorder{}, views)

	rr := httptest.NewRecorder()
	app.MyDonations(rr, httptest.NewRequest(http.MethodGet, "/v1/me/donations", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("guest status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me/donations", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), donor))
	rr = httptest.NewRecorder()
	app.MyDonations(rr, req)

	var got ledgerDTO
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if views.donorID != donor || got.Total != "40.00" || got.Count != 1 || len(got.Items) != 1 {
		t.Fatalf("unexpected ledger: %#v", got)
	}
}

func TestMapGetLive(t *testing.T) {
	feed := []domain.Donation{
		{ID: "d-2", Amount: decimal.NewFromInt(250), DonorName: "Anonymous", Region: "Sudan", ImpactType: "Medical Supplies"},
		{ID: "d-1", Amount: decimal.NewFromInt(100), DonorName: "Sam", Region: "Atlantis", ImpactType: "Food Aid"},
	}
	views := &stubViews{feed: stream.FeedSnapshot{Donations: feed, State: stream.Live, Version: 9}}
	app := newTestApp(&stubRecorder{}, views)
	rr := httptest.NewRecorder()

	app.MapGet(rr, httptest.NewRequest(http.MethodGet, "/v1/map?points=10", nil))

	var got mapDTO
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if views.feedLimit != 20 || len(got.Arcs) != 2 || got.Version != 9 {
		t.Fatalf("unexpected map: limit %d arcs %d version %d", views.feedLimit, len(got.Arcs), got.Version)
	}
	sudan, _ := geo.DefaultDirectory().Lookup("Sudan")
	if got.Arcs[0].To != sudan.Coord {
		t.Fatalf("Sudan arc ends at %#v", got.Arcs[0].To)
	}
	palestine := geo.DefaultDirectory().DefaultRegion()
	if got.Arcs[1].To != palestine.Coord {
		t.Fatalf("unknown region should land on default, got %#v", got.Arcs[1].To)
	}
	if len(got.Scene.Polylines) != 4 || len(got.Scene.Polylines[0].Path) != 11 {
		t.Fatalf("unexpected scene polylines: %d", len(got.Scene.Polylines))
	}
}

func TestMapGetDegradedUsesDemoData(t *testing.T) {
	views := &stubViews{feed: stream.FeedSnapshot{Donations: []domain.Donation{}, State: stream.Degraded, Version: 3}}
	app := newTestApp(&stubRecorder{}, views)
	rr := httptest.NewRecorder()

	app.MapGet(rr, httptest.NewRequest(http.MethodGet, "/v1/map", nil))

	var got mapDTO
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != stream.Degraded || len(got.Arcs) != 3 {
		t.Fatalf("expected three demo arcs, got %d (%s)", len(got.Arcs), got.State)
	}
}

func TestMapGetRejectsBadPoints(t *testing.T) {
	app := newTestApp(&stubRecorder{}, &stubViews{})
	for _, q := range []string{"0", "201", "x"} {
		rr := httptest.NewRecorder()
		app.MapGet(rr, httptest.NewRequest(http.MethodGet, "/v1/map?points="+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("points=%s: status %d", q, rr.Code)
		}
	}
}

func TestRegionsList(t *testing.T) {
	app := newTestApp(&stubRecorder{}, &stubViews{})
	rr := httptest.NewRecorder()

	app.RegionsList(rr, httptest.NewRequest(http.MethodGet, "/v1/regions", nil))

	var got struct {
		Regions       []geo.Region `json:"regions"`
		DefaultRegion string       `json:"default_region"`
		ImpactTypes   []string     `json:"impact_types"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Regions) != 7 || got.DefaultRegion != "Palestine" || len(got.ImpactTypes) != 5 {
		t.Fatalf("unexpected regions: %#v", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).DonationRecorded(decimal.NewFromInt(3))
	app := NewApp(&stubRecorder{}, &stubViews{aggregate: stream.AggregateSnapshot{State: stream.Live}},
		nil, 0, reg, zerolog.Nop())

	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if !strings.Contains(rr.Body.String(), `"stream":"live"`) {
		t.Fatalf("health body: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	app.Metrics(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "impact_ledger_donations_recorded_total 1") {
		t.Fatalf("metrics body missing counter: %s", rr.Body.String())
	}
}

func TestOpenAPIJSON(t *testing.T) {
	app := newTestApp(&stubRecorder{}, &stubViews{})
	rr := httptest.NewRecorder()
	app.OpenAPIJSON(rr, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") == "" {
		t.Fatal("expected Cache-Control header")
	}
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
	if _, ok := doc.Paths["/v1/donations"]; !ok {
		t.Fatal("document does not describe /v1/donations")
	}
}
