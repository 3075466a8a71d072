package mapview

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
)

func donation(id, region string, amount int64, at time.Time) domain.Donation {
	return domain.Donation{
		ID:         id,
		Amount:     decimal.NewFromInt(amount),
		DonorName:  "Donor " + id,
		Region:     region,
		ImpactType: "Food Aid",
		Status:     domain.StatusVerified,
		CreatedAt:  at,
	}
}

func TestProjectEmptyFeed(t *testing.T) {
	t.Parallel()

	p := NewProjector(geo.DefaultDirectory())
	out := p.Project(nil, 20)

	assert.NotNil(t, out.Arcs)
	assert.Empty(t, out.Arcs)
	assert.NotNil(t, out.Sites)
	assert.Empty(t, out.Sites)
}

func TestProjectSingleRegionRollsUp(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	feed := []domain.Donation{
		donation("c", "Congo", 30, now),
		donation("b", "Congo", 20, now.Add(-time.Minute)),
		donation("a", "congo", 15, now.Add(-2*time.Minute)),
	}

	out := NewProjector(geo.DefaultDirectory()).Project(feed, 20)

	require.Len(t, out.Sites, 1)
	site := out.Sites["Congo"]
	assert.True(t, site.Total.Equal(decimal.NewFromInt(65)))
	assert.Equal(t, 3, site.Count)
	assert.Equal(t, domain.LatLng{Lat: -4.04, Lng: 21.76}, site.Coord)
}

func TestProjectRanksOriginsAndNewness(t *testing.T) {
	t.Parallel()

	dir := geo.DefaultDirectory()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var feed []domain.Donation
	for i := 0; i < 12; i++ {
		feed = append(feed, donation(fmt.Sprintf("d%02d", i), "Syria", 10, now.Add(-time.Duration(i)*time.Minute)))
	}

	out := NewProjector(dir).Project(feed, 11)

	require.Len(t, out.Arcs, 11)
	for rank, arc := range out.Arcs {
		assert.Equal(t, feed[rank].ID, arc.ID)
		assert.Equal(t, dir.Origin(rank), arc.From)
		assert.Equal(t, rank < DefaultNewThreshold, arc.IsNew, "rank %d", rank)
	}
	// rank 10 wraps around the ten-entry origin pool
	assert.Equal(t, out.Arcs[0].From, out.Arcs[10].From)
	assert.Equal(t, 11, out.Sites["Syria"].Count)
}

func TestProjectUnknownRegionUsesDefault(t *testing.T) {
	t.Parallel()

	d := donation("x", "", 5, time.Now())
	d.ImpactType = ""
	d.DonorName = ""

	out := NewProjector(geo.DefaultDirectory()).Project([]domain.Donation{d}, 0)

	require.Len(t, out.Arcs, 1)
	assert.Equal(t, geo.DefaultRegionName, out.Arcs[0].Region)
	assert.Equal(t, domain.DefaultImpactType, out.Arcs[0].ImpactType)
	assert.Equal(t, domain.DefaultDonorName, out.Arcs[0].DonorName)
	assert.Contains(t, out.Sites, geo.DefaultRegionName)
}

func TestProjectAnonymousLabel(t *testing.T) {
	t.Parallel()

	d := donation("x", "Sudan", 5, time.Now())
	d.Anonymous = true
	d.DonorName = "Alex"

	out := NewProjector(geo.DefaultDirectory()).Project([]domain.Donation{d}, 5)
	assert.Equal(t, domain.AnonymousDonorName, out.Arcs[0].DonorName)
}

func TestProjectSudanScenario(t *testing.T) {
	t.Parallel()

	dir := geo.DefaultDirectory()
	d := donation("sudan-1", "Sudan", 100, time.Now())
	d.DonorName = "Alex"

	out := NewProjector(dir).Project([]domain.Donation{d}, DefaultWindow)

	require.Len(t, out.Arcs, 1)
	sudan, _ := dir.Lookup("Sudan")
	assert.Equal(t, sudan.Coord, out.Arcs[0].To)
	assert.Equal(t, "Alex", out.Arcs[0].DonorName)
	require.Len(t, out.Sites, 1)
	assert.True(t, out.Sites["Sudan"].Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, out.Sites["Sudan"].Count)
}

func TestWithNewThreshold(t *testing.T) {
	t.Parallel()

	now := time.Now()
	feed := []domain.Donation{donation("a", "Sudan", 1, now), donation("b", "Sudan", 1, now)}

	base := NewProjector(geo.DefaultDirectory())
	none := base.WithNewThreshold(0).Project(feed, 5)
	for _, arc := range none.Arcs {
		assert.False(t, arc.IsNew)
	}
	// WithNewThreshold returns a copy
	assert.True(t, base.Project(feed, 5).Arcs[0].IsNew)
}
