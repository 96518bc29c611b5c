package poi

import (
	"strings"

	a "github.com/petar-dambovaliev/aho-corasick"

	"github.com/FACorreiaa/loci-proximity-api/internal/domain/merger"
	"github.com/FACorreiaa/loci-proximity-api/internal/geo"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// maxCandidateDistanceKm drops search hits too far from the resolved city.
const maxCandidateDistanceKm = 50.0

// regionMatcher finds a region code as a whole word in a formatted address.
type regionMatcher struct {
	ac a.AhoCorasick
}

func newRegionMatcher(region string) *regionMatcher {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		return nil
	}

	patterns := []string{region}
	// Addresses in São Paulo state often spell the state out instead of "SP".
	if region == "sp" {
		patterns = append(patterns, "são paulo")
	}

	builder := a.NewAhoCorasickBuilder(a.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
	})
	return &regionMatcher{ac: builder.Build(patterns)}
}

func (m *regionMatcher) matches(address string) bool {
	return len(m.ac.FindAll(strings.ToLower(address))) > 0
}

// filterCandidates applies the cheap filters in order: place id, distance to
// the resolved city, region token. Repeated place ids keep their first
// occurrence. Only survivors get a detail fetch.
func filterCandidates(candidates []locitypes.PlaceCandidate, cityPoint *locitypes.Point, region string) []locitypes.PlaceCandidate {
	matcher := newRegionMatcher(region)

	out := make([]locitypes.PlaceCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.PlaceID == "" {
			continue
		}
		if cityPoint != nil && c.Point != nil && geo.Between(*cityPoint, *c.Point) > maxCandidateDistanceKm {
			continue
		}
		if matcher != nil && !matcher.matches(c.FormattedAddress) {
			continue
		}
		out = append(out, c)
	}
	return merger.Merge(out, nil, func(c locitypes.PlaceCandidate) string { return c.PlaceID })
}
