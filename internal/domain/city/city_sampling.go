package city

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/loci-proximity-api/internal/domain/merger"
	"github.com/FACorreiaa/loci-proximity-api/internal/geo"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// maxDiscoveredNeighbors caps the cities returned by one radial scan.
const maxDiscoveredNeighbors = 20

// sampleNeighbors approximates the cities around origin by reverse geocoding
// sample points on concentric rings. Calls are sequential. A failing sample
// point is skipped; the scan only fails when every call was unavailable.
// Coverage is approximate, not an exhaustive enumeration.
func (s *ServiceImpl) sampleNeighbors(ctx context.Context, origin locitypes.Point, radiusKm float64) ([]locitypes.Candidate, error) {
	l := s.logger.With(slog.String("method", "sampleNeighbors"))

	points := geo.SampleRings(origin, radiusKm)
	seen := make(map[string]struct{})
	found := make([]locitypes.Candidate, 0, len(points))
	unavailable := 0

	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("radial scan interrupted: %w", err)
		}

		res, err := s.provider.ReverseGeocode(ctx, p.Lat, p.Lon, s.language)
		if err != nil {
			if !errors.Is(err, locitypes.ErrNotFound) {
				unavailable++
			}
			l.DebugContext(ctx, "Sample point skipped",
				slog.String("point", p.RoundedKey()),
				slog.Any("error", err))
			continue
		}
		if res == nil || res.Name == "" {
			continue
		}

		distance := geo.Between(origin, res.Point)
		if distance > radiusKm {
			continue
		}

		key := strings.ToLower(res.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		found = append(found, locitypes.Candidate{
			Name:       res.Name,
			Region:     res.Region,
			Country:    res.Country,
			Point:      res.Point,
			DistanceKm: distance,
		})
	}

	if len(points) > 0 && unavailable == len(points) {
		return nil, fmt.Errorf("all %d sample points failed: %w", len(points), locitypes.ErrProviderUnavailable)
	}

	merger.SortByDistance(found)
	if len(found) > maxDiscoveredNeighbors {
		found = found[:maxDiscoveredNeighbors]
	}

	l.DebugContext(ctx, "Radial scan completed",
		slog.Int("samples", len(points)),
		slog.Int("unavailable", unavailable),
		slog.Int("found", len(found)))

	return found, nil
}

// ParseAddress splits "City, SP" or "City - SP" into a city name and an
// optional region abbreviation. A second token longer than three characters
// is not treated as a region.
func ParseAddress(text string) (name, region string) {
	normalized := strings.ReplaceAll(text, " - ", ",")
	parts := strings.Split(normalized, ",")

	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		candidate := strings.TrimSpace(parts[1])
		if n := len([]rune(candidate)); n > 0 && n <= 3 {
			region = candidate
		}
	}
	return name, region
}
