// Package mapview projects the recent-donation feed into animated arcs and per-region
// impact sites, and describes them as a declarative scene for a map renderer.
package mapview

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
)

const (
	// DefaultWindow is how many feed entries the map shows.
	DefaultWindow = 20
	// DefaultNewThreshold is how many of the freshest entries are marked new.
	DefaultNewThreshold = 3
)

// Projection is the map state derived from one feed snapshot.
type Projection struct {
	Arcs  []domain.DonationArc
	Sites map[string]domain.ImpactSite
}

// Projector turns feed snapshots into projections. It holds no mutable state.
type Projector struct {
	dir          *geo.Directory
	newThreshold int
}

// NewProjector builds a projector resolving coordinates through dir.
func NewProjector(dir *geo.Directory) *Projector {
	return &Projector{dir: dir, newThreshold: DefaultNewThreshold}
}

// WithNewThreshold returns a copy marking the first n entries as new.
func (p *Projector) WithNewThreshold(n int) *Projector {
	cp := *p
	if n < 0 {
		n = 0
	}
	cp.newThreshold = n
	return &cp
}

// Project maps the first windowSize entries of feed, which must be ordered newest
// first. Origins come from the directory's pool by rank; destinations from the
// donation's region, falling back to the default region. A non-positive windowSize
// uses DefaultWindow.
func (p *Projector) Project(feed []domain.Donation, windowSize int) Projection {
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	if len(feed) > windowSize {
		feed = feed[:windowSize]
	}

	out := Projection{
		Arcs:  make([]domain.DonationArc, 0, len(feed)),
		Sites: make(map[string]domain.ImpactSite),
	}
	for rank, d := range feed {
		region := p.dir.Resolve(d.Region)
		out.Arcs = append(out.Arcs, domain.DonationArc{
			ID:         d.ID,
			From:       p.dir.Origin(rank),
			To:         region.Coord,
			DonorName:  arcLabel(d),
			Amount:     d.Amount,
			Region:     region.Name,
			ImpactType: impactType(d.ImpactType),
			IsNew:      rank < p.newThreshold,
		})

		site, ok := out.Sites[region.Name]
		if !ok {
			site = domain.ImpactSite{Region: region.Name, Coord: region.Coord, Total: decimal.Zero}
		}
		site.Total = site.Total.Add(d.Amount)
		site.Count++
		out.Sites[region.Name] = site
	}
	return out
}

func arcLabel(d domain.Donation) string {
	if d.Anonymous {
		return domain.AnonymousDonorName
	}
	if name := strings.TrimSpace(d.DonorName); name != "" {
		return name
	}
	return domain.DefaultDonorName
}

func impactType(t string) string {
	if t = strings.TrimSpace(t); t != "" {
		return t
	}
	return domain.DefaultImpactType
}
