// Package fallback holds the fixed demo data shown when the live ledger subscription
// is unavailable, so the impact map and dashboards never render empty.
package fallback

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
)

var (
	waterloo = domain.LatLng{Lat: 43.46, Lng: -80.52}
	newYork  = domain.LatLng{Lat: 40.71, Lng: -74.01}
	london   = domain.LatLng{Lat: 51.51, Lng: -0.13}

	palestine = domain.LatLng{Lat: 31.5, Lng: 34.47}
	sudan     = domain.LatLng{Lat: 15.5, Lng: 32.56}
	syria     = domain.LatLng{Lat: 34.80, Lng: 38.99}
)

// demoEpoch anchors the demo feed timestamps so the data set is fully deterministic.
var demoEpoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

type demoEntry struct {
	id         string
	from       domain.LatLng
	to         domain.LatLng
	donor      string
	amount     int64
	region     string
	impactType string
	isNew      bool
}

var demo = []demoEntry{
	{id: "demo-1", from: waterloo, to: palestine, donor: "Demo Donor", amount: 100, region: "Palestine", impactType: "Food Aid", isNew: true},
	{id: "demo-2", from: london, to: sudan, donor: domain.AnonymousDonorName, amount: 250, region: "Sudan", impactType: "Medical Supplies"},
	{id: "demo-3", from: newYork, to: syria, donor: "Generous Soul", amount: 500, region: "Syria", impactType: "Shelter"},
}

// ArcsAndSites returns the demo arcs and their per-region rollup. Every call returns
// fresh values that callers may modify.
func ArcsAndSites() ([]domain.DonationArc, map[string]domain.ImpactSite) {
	arcs := make([]domain.DonationArc, 0, len(demo))
	sites := make(map[string]domain.ImpactSite, len(demo))
	for _, e := range demo {
		amount := decimal.NewFromInt(e.amount)
		arcs = append(arcs, domain.DonationArc{
			ID:         e.id,
			From:       e.from,
			To:         e.to,
			DonorName:  e.donor,
			Amount:     amount,
			Region:     e.region,
			ImpactType: e.impactType,
			IsNew:      e.isNew,
		})
		site := sites[e.region]
		if site.Count == 0 {
			site = domain.ImpactSite{Region: e.region, Coord: e.to, Total: decimal.Zero}
		}
		site.Total = site.Total.Add(amount)
		site.Count++
		sites[e.region] = site
	}
	return arcs, sites
}

// Feed returns the demo donations newest first, as the recent-activity view shows them.
func Feed() []domain.Donation {
	feed := make([]domain.Donation, 0, len(demo))
	for i, e := range demo {
		feed = append(feed, domain.Donation{
			ID:         e.id,
			Seq:        int64(len(demo) - i),
			Amount:     decimal.NewFromInt(e.amount),
			DonorName:  e.donor,
			Region:     e.region,
			ImpactType: e.impactType,
			Anonymous:  e.donor == domain.AnonymousDonorName,
			Status:     domain.StatusVerified,
			CreatedAt:  demoEpoch.Add(-time.Duration(i) * time.Minute),
		})
	}
	return feed
}

// Counters returns aggregate counters consistent with Feed.
func Counters() domain.AggregateCounters {
	total := decimal.Zero
	for _, e := range demo {
		total = total.Add(decimal.NewFromInt(e.amount))
	}
	return domain.AggregateCounters{
		TotalDonations:   total,
		UniqueDonors:     int64(len(demo)),
		FundsTransferred: decimal.Zero,
		UpdatedAt:        demoEpoch,
	}
}

// Covers reports whether every demo region resolves in dir, which keeps the demo
// arcs pointing at the same coordinates as live ones.
func Covers(dir *geo.Directory) bool {
	for _, e := range demo {
		r, ok := dir.Lookup(e.region)
		if !ok || r.Coord != e.to {
			return false
		}
	}
	return true
}
