package fallback

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanizaheer02/impact-tracker/internal/geo"
)

func TestArcsAndSitesShape(t *testing.T) {
	t.Parallel()

	arcs, sites := ArcsAndSites()
	require.GreaterOrEqual(t, len(arcs), 3)
	require.GreaterOrEqual(t, len(sites), 2)

	regions := map[string]bool{}
	for _, arc := range arcs {
		regions[arc.Region] = true
		site, ok := sites[arc.Region]
		require.True(t, ok, "site for %s", arc.Region)
		assert.Equal(t, arc.To, site.Coord)
	}
	assert.Len(t, regions, len(sites))

	assert.True(t, sites["Syria"].Total.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, sites["Sudan"].Count)
	assert.True(t, arcs[0].IsNew)
	assert.False(t, arcs[1].IsNew)
}

func TestArcsAndSitesReturnsFreshCopies(t *testing.T) {
	t.Parallel()

	arcs, sites := ArcsAndSites()
	arcs[0].DonorName = "mutated"
	delete(sites, "Sudan")

	again, againSites := ArcsAndSites()
	assert.Equal(t, "Demo Donor", again[0].DonorName)
	assert.Contains(t, againSites, "Sudan")
}

func TestFeedAndCountersAgree(t *testing.T) {
	t.Parallel()

	feed := Feed()
	counters := Counters()

	total := decimal.Zero
	for i, d := range feed {
		total = total.Add(d.Amount)
		if i > 0 {
			assert.True(t, feed[i-1].CreatedAt.After(d.CreatedAt), "feed must be newest first")
		}
	}
	assert.True(t, counters.TotalDonations.Equal(total))
	assert.Equal(t, int64(len(feed)), counters.UniqueDonors)
	assert.True(t, feed[1].Anonymous)
}

func TestCoversDefaultDirectory(t *testing.T) {
	t.Parallel()

	assert.True(t, Covers(geo.DefaultDirectory()))
}
