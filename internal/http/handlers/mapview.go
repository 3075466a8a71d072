package handlers

import (
	"net/http"
	"strconv"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/fallback"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
	"github.com/hanizaheer02/impact-tracker/internal/mapview"
	"github.com/hanizaheer02/impact-tracker/internal/middleware"
	"github.com/hanizaheer02/impact-tracker/internal/stream"
)

const maxArcPoints = 200

type arcDTO struct {
	ID         string        `json:"id"`
	DonorName  string        `json:"donor_name"`
	Amount     string        `json:"amount"`
	Region     string        `json:"region"`
	ImpactType string        `json:"impact_type"`
	IsNew      bool          `json:"is_new"`
	From       domain.LatLng `json:"from"`
	To         domain.LatLng `json:"to"`
	Curvature  float64       `json:"curvature"`
}

type mapDTO struct {
	Arcs    []arcDTO      `json:"arcs"`
	Scene   mapview.Scene `json:"scene"`
	State   stream.State  `json:"state"`
	Version int64         `json:"version"`
}

// project builds the map for a feed snapshot. A degraded feed is replaced by
// the demo arcs and sites.
func (a *App) project(feed stream.FeedSnapshot) mapview.Projection {
	if feed.State == stream.Degraded {
		arcs, sites := fallback.ArcsAndSites()
		return mapview.Projection{Arcs: arcs, Sites: sites}
	}
	return a.Projector.Project(feed.Donations, a.MapWindow)
}

func (a *App) renderMap(feed stream.FeedSnapshot, locale string, points int) mapDTO {
	proj := a.project(feed)
	arcs := make([]arcDTO, 0, len(proj.Arcs))
	for _, arc := range proj.Arcs {
		arcs = append(arcs, arcDTO{
			ID:         arc.ID,
			DonorName:  arc.DonorName,
			Amount:     arc.Amount.StringFixed(2),
			Region:     arc.Region,
			ImpactType: arc.ImpactType,
			IsNew:      arc.IsNew,
			From:       arc.From,
			To:         arc.To,
			Curvature:  geo.Curvature(arc.From, arc.To),
		})
	}
	return mapDTO{
		Arcs:    arcs,
		Scene:   mapview.Render(proj, locale, points),
		State:   feed.State,
		Version: feed.Version,
	}
}

func (a *App) pointsParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("points")
	if raw == "" {
		return geo.DefaultArcPoints, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxArcPoints {
		a.error(w, http.StatusBadRequest, "bad_request", "points must be between 1 and 200")
		return 0, false
	}
	return n, true
}

// MapGet returns the donation arcs, impact sites and their rendering scene.
func (a *App) MapGet(w http.ResponseWriter, r *http.Request) {
	points, ok := a.pointsParam(w, r)
	if !ok {
		return
	}
	feed := a.Views.RecentFeed(a.MapWindow)
	a.json(w, http.StatusOK, a.renderMap(feed, middleware.LocaleFromContext(r.Context()), points))
}
