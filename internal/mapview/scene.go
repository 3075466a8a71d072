package mapview

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
)

const (
	colorNewArc      = "#00D2FF"
	colorHistoricArc = "#38BDF8"
	colorDonorOrigin = "#00D2FF"
	colorImpactSite  = "#10B981"

	MarkerDonorOrigin = "donor_origin"
	MarkerImpactSite  = "impact_site"
)

// Polyline is one stroked path for the map surface.
type Polyline struct {
	ArcID         string          `json:"arc_id"`
	Path          []domain.LatLng `json:"path"`
	StrokeColor   string          `json:"stroke_color"`
	StrokeOpacity float64         `json:"stroke_opacity"`
	StrokeWeight  float64         `json:"stroke_weight"`
	Dashed        bool            `json:"dashed"`
}

// Marker is one circular point marker for the map surface.
type Marker struct {
	Kind          string        `json:"kind"`
	Position      domain.LatLng `json:"position"`
	Radius        float64       `json:"radius"`
	FillColor     string        `json:"fill_color"`
	FillOpacity   float64       `json:"fill_opacity"`
	StrokeColor   string        `json:"stroke_color"`
	StrokeWeight  float64       `json:"stroke_weight"`
	StrokeOpacity float64       `json:"stroke_opacity"`
	Tooltip       string        `json:"tooltip"`
}

// Scene is everything the renderer draws for one projection.
type Scene struct {
	Polylines []Polyline `json:"polylines"`
	Markers   []Marker   `json:"markers"`
}

// Render describes a projection as polylines and markers. Every arc yields a glow
// line under a dashed main line. Tooltip numbers are formatted for locale.
func Render(p Projection, locale string, pointCount int) Scene {
	printer := message.NewPrinter(matchLocale(locale))
	scene := Scene{
		Polylines: make([]Polyline, 0, 2*len(p.Arcs)),
		Markers:   make([]Marker, 0, len(p.Arcs)+len(p.Sites)),
	}

	for _, arc := range p.Arcs {
		path := geo.Interpolate(arc.From, arc.To, pointCount)
		color, weight, opacity := colorHistoricArc, 1.5, 0.5
		if arc.IsNew {
			color, weight, opacity = colorNewArc, 3, 0.9
		}
		scene.Polylines = append(scene.Polylines,
			Polyline{ArcID: arc.ID, Path: path, StrokeColor: color, StrokeOpacity: opacity * 0.3, StrokeWeight: weight + 2},
			Polyline{ArcID: arc.ID, Path: path, StrokeColor: color, StrokeOpacity: opacity, StrokeWeight: weight, Dashed: true},
		)
	}

	type originCount struct {
		coord domain.LatLng
		count int
	}
	var origins []*originCount
	seen := make(map[domain.LatLng]*originCount)
	for _, arc := range p.Arcs {
		if oc, ok := seen[arc.From]; ok {
			oc.count++
			continue
		}
		oc := &originCount{coord: arc.From, count: 1}
		seen[arc.From] = oc
		origins = append(origins, oc)
	}
	for _, oc := range origins {
		scene.Markers = append(scene.Markers, Marker{
			Kind:          MarkerDonorOrigin,
			Position:      oc.coord,
			Radius:        5 + float64(oc.count),
			FillColor:     colorDonorOrigin,
			FillOpacity:   0.8,
			StrokeColor:   colorDonorOrigin,
			StrokeWeight:  2,
			StrokeOpacity: 0.4,
			Tooltip:       fmt.Sprintf("Donor Origin (%d %s)", oc.count, plural(oc.count)),
		})
	}

	regions := make([]string, 0, len(p.Sites))
	for region := range p.Sites {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	for _, region := range regions {
		site := p.Sites[region]
		total := site.Total.InexactFloat64()
		scene.Markers = append(scene.Markers, Marker{
			Kind:          MarkerImpactSite,
			Position:      site.Coord,
			Radius:        7 + math.Min(total/100, 10),
			FillColor:     colorImpactSite,
			FillOpacity:   0.8,
			StrokeColor:   colorImpactSite,
			StrokeWeight:  2,
			StrokeOpacity: 0.4,
			Tooltip: printer.Sprintf("%s — $%v across %d %s",
				region, number.Decimal(total, number.MaxFractionDigits(2)), site.Count, plural(site.Count)),
		})
	}
	return scene
}

func plural(n int) string {
	if n == 1 {
		return "donation"
	}
	return "donations"
}

func matchLocale(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}
