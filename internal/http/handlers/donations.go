package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/middleware"
)

const (
	maxDonationBody = 16 << 10
	// defaultFeedLimit matches the dashboard's recent-activity list.
	defaultFeedLimit = 5
)

type donationRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Region     string          `json:"region"`
	ImpactType string          `json:"impact_type"`
	DonorName  string          `json:"donor_name"`
	Anonymous  bool            `json:"anonymous"`
}

// DonationsCreate records one donation. Signed-in callers are attributed by
// token subject; guests donate without a donor identity.
func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDonationBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "bad_request", "payload too large")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	name := req.DonorName
	if strings.TrimSpace(name) == "" {
		name = middleware.UserNameFromContext(r.Context())
	}
	d, err := a.Writer.RecordDonation(r.Context(), domain.DonationInput{
		Amount:        req.Amount,
		Region:        req.Region,
		ImpactType:    req.ImpactType,
		DonorName:     name,
		Anonymous:     req.Anonymous,
		DonorID:       middleware.UserIDFromContext(r.Context()),
		OriginCountry: middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toDonationDTO(d.Public()))
}

// DonationsRecent returns the newest donations as shown to everyone.
func (a *App) DonationsRecent(w http.ResponseWriter, r *http.Request) {
	limit, ok := a.limitParam(w, r, defaultFeedLimit)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toFeedDTO(a.Views.RecentFeed(limit)))
}

// MyDonations returns the caller's own donations with running totals.
func (a *App) MyDonations(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Views.UserLedger(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toLedgerDTO(snap))
}

func (a *App) StatsGet(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, toStatsDTO(a.Views.Aggregate()))
}

type regionsResponse struct {
	Regions       any      `json:"regions"`
	DefaultRegion string   `json:"default_region"`
	ImpactTypes   []string `json:"impact_types"`
}

func (a *App) RegionsList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, regionsResponse{
		Regions:       a.Regions.Regions(),
		DefaultRegion: a.Regions.DefaultRegion().Name,
		ImpactTypes:   domain.ImpactTypes,
	})
}

func (a *App) limitParam(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
