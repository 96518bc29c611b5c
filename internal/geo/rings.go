package geo

import (
	"math"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// KmPerDegree is the flat-earth conversion used for ring offsets.
const KmPerDegree = 111.0

// RingFractions are the fractions of the search radius sampled by SampleRings.
var RingFractions = []float64{0.3, 0.6, 0.9, 1.0}

// PointsPerRing returns how many bearings are sampled on a ring of the given radius.
func PointsPerRing(ringKm float64) int {
	n := int(math.Floor(ringKm / 5))
	if n < 4 {
		return 4
	}
	return n
}

// Offset moves origin by distanceKm along bearing (radians, 0 = north) using
// a flat-earth approximation. Accurate enough for radii up to a few hundred km.
func Offset(origin locitypes.Point, distanceKm, bearing float64) locitypes.Point {
	latOffset := (distanceKm / KmPerDegree) * math.Cos(bearing)
	lonOffset := (distanceKm / KmPerDegree) * math.Sin(bearing) / math.Cos(origin.Lat*math.Pi/180)

	return locitypes.Point{
		Lat: origin.Lat + latOffset,
		Lon: origin.Lon + lonOffset,
	}
}

// SampleRings returns the sample points of all rings around origin in ring
// order, deduplicated on their 3-decimal rounded coordinates.
func SampleRings(origin locitypes.Point, radiusKm float64) []locitypes.Point {
	seen := make(map[string]struct{})
	var points []locitypes.Point

	for _, fraction := range RingFractions {
		ringKm := radiusKm * fraction
		n := PointsPerRing(ringKm)
		for i := 0; i < n; i++ {
			bearing := 2 * math.Pi * float64(i) / float64(n)
			p := Offset(origin, ringKm, bearing)

			key := p.RoundedKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			points = append(points, p)
		}
	}

	return points
}
