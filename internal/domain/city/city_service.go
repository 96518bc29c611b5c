package city

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/loci-proximity-api/internal/domain/merger"
	"github.com/FACorreiaa/loci-proximity-api/internal/geo"
	"github.com/FACorreiaa/loci-proximity-api/internal/provider"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
	"github.com/FACorreiaa/loci-proximity-api/pkg/observability"
)

const (
	// currentCityRadiusM bounds the cache lookup for "which city am I in".
	currentCityRadiusM = 1000.0

	// A cached neighbor set is trusted when it has at least minCachedNeighbors
	// entries and its farthest entry reaches coverageThreshold of the radius.
	minCachedNeighbors = 3
	coverageThreshold  = 0.8

	defaultNeighborLimit      = 20
	defaultValidationRadiusKm = 5.0
)

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	ResolveCurrent(ctx context.Context, lat, lon float64) (*locitypes.CityResult, error)
	ResolveNeighbors(ctx context.Context, q locitypes.NeighborQuery) (*locitypes.ListResult[locitypes.Candidate], error)
	ResolveByAddress(ctx context.Context, q locitypes.AddressQuery) (*locitypes.CityResult, error)
	UpsertCity(ctx context.Context, city locitypes.City) (*locitypes.City, error)
}

type ServiceImpl struct {
	logger   *slog.Logger
	repo     Repository
	provider provider.Client
	language string
}

func NewCityService(repo Repository, client provider.Client, language string, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		provider: client,
		language: language,
	}
}

// ResolveCurrent returns the city at (lat, lon): the nearest stored city within
// 1 km, otherwise the provider's reverse geocode persisted as a new city. A
// location the provider cannot name yields the not-found sentinel.
func (s *ServiceImpl) ResolveCurrent(ctx context.Context, lat, lon float64) (*locitypes.CityResult, error) {
	ctx, span := otel.Tracer("CityService").Start(ctx, "ResolveCurrent", trace.WithAttributes(
		attribute.Float64("latitude", lat),
		attribute.Float64("longitude", lon),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ResolveCurrent"))

	point := locitypes.Point{Lat: lat, Lon: lon}
	if err := locitypes.Validate(point); err != nil {
		span.SetStatus(codes.Error, "Invalid coordinates")
		return nil, err
	}

	cached, err := s.repo.FindNearest(ctx, point, currentCityRadiusM)
	switch {
	case err != nil:
		// read failures fail open to the provider
		l.WarnContext(ctx, "Cache lookup failed, falling back to provider", slog.Any("error", err))
		observability.RecordCacheLookup("resolve_current", observability.CacheError)
	case cached != nil:
		observability.RecordCacheLookup("resolve_current", observability.CacheHit)
		span.SetStatus(codes.Ok, "Served from cache")
		return &locitypes.CityResult{Source: locitypes.SourceCache, Found: true, City: cached}, nil
	default:
		observability.RecordCacheLookup("resolve_current", observability.CacheMiss)
	}

	res, err := s.provider.ReverseGeocode(ctx, lat, lon, s.language)
	if err != nil || res == nil || res.Name == "" {
		l.InfoContext(ctx, "Provider could not name location", slog.Any("error", err))
		span.SetStatus(codes.Ok, "Location not found")
		return locitypes.CityNotFound(locitypes.SourceProvider), nil
	}

	stored, err := s.UpsertCity(ctx, locitypes.City{
		Name:    res.Name,
		Region:  res.Region,
		Country: res.Country,
		Point:   res.Point,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to persist city")
		return nil, fmt.Errorf("failed to persist resolved city: %w", err)
	}

	l.InfoContext(ctx, "Resolved current city from provider", slog.String("city", stored.Name))
	span.SetStatus(codes.Ok, "Served from provider")

	return &locitypes.CityResult{
		Source:           locitypes.SourceProvider,
		Found:            true,
		City:             stored,
		FormattedAddress: res.FormattedAddress,
	}, nil
}

// ResolveNeighbors returns the cities within q.RadiusKm of q.Point, nearest
// first. The cached set is served as is when it looks complete; otherwise the
// provider is sampled on concentric rings, new cities are persisted and both
// sets are merged.
func (s *ServiceImpl) ResolveNeighbors(ctx context.Context, q locitypes.NeighborQuery) (*locitypes.ListResult[locitypes.Candidate], error) {
	ctx, span := otel.Tracer("CityService").Start(ctx, "ResolveNeighbors", trace.WithAttributes(
		attribute.Float64("latitude", q.Point.Lat),
		attribute.Float64("longitude", q.Point.Lon),
		attribute.Float64("radius_km", q.RadiusKm),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ResolveNeighbors"))

	if q.Limit == 0 {
		q.Limit = defaultNeighborLimit
	}
	if err := locitypes.Validate(q); err != nil {
		span.SetStatus(codes.Error, "Invalid query")
		return nil, err
	}

	cities, lookupErr := s.repo.FindWithinRadius(ctx, q.Point, q.RadiusKm)
	if lookupErr != nil {
		l.WarnContext(ctx, "Cache lookup failed, treating as miss", slog.Any("error", lookupErr))
		observability.RecordCacheLookup("resolve_neighbors", observability.CacheError)
		cities = nil
	}

	cached := make([]locitypes.Candidate, 0, len(cities))
	for _, c := range cities {
		cached = append(cached, c.Candidate(geo.Between(q.Point, c.Point)))
	}
	merger.SortByDistance(cached)
	cached = merger.Merge(cached, nil, merger.CandidateKey)

	if coverageSufficient(cached, q.RadiusKm) {
		observability.RecordCacheLookup("resolve_neighbors", observability.CacheHit)
		l.DebugContext(ctx, "Cache coverage sufficient", slog.Int("cached", len(cached)))
		span.SetStatus(codes.Ok, "Served from cache")
		return paginate(locitypes.SourceCache, cached, q), nil
	}
	if lookupErr == nil {
		observability.RecordCacheLookup("resolve_neighbors", observability.CacheMiss)
	}

	discovered, err := s.sampleNeighbors(ctx, q.Point, q.RadiusKm)
	if err != nil {
		if errors.Is(err, locitypes.ErrProviderUnavailable) && len(cached) > 0 {
			l.WarnContext(ctx, "Provider unavailable, serving partial cache", slog.Int("cached", len(cached)))
			span.SetStatus(codes.Ok, "Degraded to cache")
			return paginate(locitypes.SourceCache, cached, q), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Neighbor sampling failed")
		return nil, fmt.Errorf("failed to sample neighbors: %w", err)
	}

	known := make(map[string]struct{}, len(cached))
	for _, c := range cached {
		known[merger.CandidateKey(c)] = struct{}{}
	}
	for _, c := range discovered {
		if _, ok := known[merger.CandidateKey(c)]; ok {
			continue
		}
		if _, err := s.UpsertCity(ctx, locitypes.City{
			Name:    c.Name,
			Region:  c.Region,
			Country: c.Country,
			Point:   c.Point,
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to persist neighbor")
			return nil, fmt.Errorf("failed to persist neighbor '%s': %w", c.Name, err)
		}
	}

	merged := merger.Merge(cached, discovered, merger.CandidateKey)
	merger.SortByDistance(merged)

	l.InfoContext(ctx, "Neighbors resolved via provider",
		slog.Int("cached", len(cached)),
		slog.Int("discovered", len(discovered)),
		slog.Int("merged", len(merged)))
	span.SetAttributes(attribute.Int("results.count", len(merged)))
	span.SetStatus(codes.Ok, "Served from provider")

	return paginate(locitypes.SourceProvider, merged, q), nil
}

// coverageSufficient is the cache completeness gate. Both constants are
// heuristics kept for compatibility and are open to tuning.
func coverageSufficient(sorted []locitypes.Candidate, radiusKm float64) bool {
	if len(sorted) < minCachedNeighbors {
		return false
	}
	return sorted[len(sorted)-1].DistanceKm >= coverageThreshold*radiusKm
}

func paginate(source locitypes.Source, items []locitypes.Candidate, q locitypes.NeighborQuery) *locitypes.ListResult[locitypes.Candidate] {
	page, total := merger.Paginate(items, q.Limit, q.Skip)
	return &locitypes.ListResult[locitypes.Candidate]{
		Source: source,
		Items:  page,
		Total:  total,
		Limit:  q.Limit,
		Skip:   q.Skip,
	}
}

// ResolveByAddress resolves free text like "Campos do Jordão, SP". A stored
// city matching the leading token (and optional region) is used unless a
// validation point is given and the match lies farther than the validation
// radius from it. Otherwise the text is forward geocoded and persisted.
func (s *ServiceImpl) ResolveByAddress(ctx context.Context, q locitypes.AddressQuery) (*locitypes.CityResult, error) {
	ctx, span := otel.Tracer("CityService").Start(ctx, "ResolveByAddress", trace.WithAttributes(
		attribute.String("address", q.Text),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ResolveByAddress"))

	if err := locitypes.Validate(q); err != nil {
		span.SetStatus(codes.Error, "Invalid query")
		return nil, err
	}
	if q.ValidationRadiusKm == 0 {
		q.ValidationRadiusKm = defaultValidationRadiusKm
	}

	name, region := ParseAddress(q.Text)
	if name == "" {
		span.SetStatus(codes.Error, "Invalid query")
		return nil, fmt.Errorf("%w: address has no city name", locitypes.ErrValidation)
	}

	cached, err := s.repo.FindByName(ctx, name, region)
	switch {
	case err != nil:
		l.WarnContext(ctx, "Cache lookup failed, falling back to provider", slog.Any("error", err))
		observability.RecordCacheLookup("resolve_by_address", observability.CacheError)
	case cached != nil && q.ValidatePoint != nil && geo.Between(*q.ValidatePoint, cached.Point) > q.ValidationRadiusKm:
		l.InfoContext(ctx, "Cached city rejected by validation point",
			slog.String("city", cached.Name),
			slog.Float64("distance_km", geo.Between(*q.ValidatePoint, cached.Point)))
		observability.RecordCacheLookup("resolve_by_address", observability.CacheMiss)
	case cached != nil:
		observability.RecordCacheLookup("resolve_by_address", observability.CacheHit)
		span.SetStatus(codes.Ok, "Served from cache")
		return &locitypes.CityResult{Source: locitypes.SourceCache, Found: true, City: cached}, nil
	default:
		observability.RecordCacheLookup("resolve_by_address", observability.CacheMiss)
	}

	res, err := s.provider.ForwardGeocode(ctx, q.Text, s.language)
	if err != nil {
		if errors.Is(err, locitypes.ErrNotFound) {
			span.SetStatus(codes.Ok, "Address not found")
			return locitypes.CityNotFound(locitypes.SourceProvider), nil
		}
		// no coordinate can be obtained any other way
		l.ErrorContext(ctx, "Forward geocode failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Provider failed")
		return nil, fmt.Errorf("failed to geocode '%s': %w", q.Text, err)
	}

	stored, err := s.UpsertCity(ctx, locitypes.City{
		Name:    res.Name,
		Region:  res.Region,
		Country: res.Country,
		Point:   res.Point,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to persist city")
		return nil, fmt.Errorf("failed to persist geocoded city: %w", err)
	}

	span.SetStatus(codes.Ok, "Served from provider")
	return &locitypes.CityResult{
		Source:           locitypes.SourceProvider,
		Found:            true,
		City:             stored,
		FormattedAddress: res.FormattedAddress,
	}, nil
}

// UpsertCity stores the city if absent. A unique violation means a concurrent
// writer won the race; the row it stored is returned instead.
func (s *ServiceImpl) UpsertCity(ctx context.Context, city locitypes.City) (*locitypes.City, error) {
	stored, err := s.repo.Upsert(ctx, city)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, locitypes.ErrConflict) {
		return nil, err
	}

	existing, findErr := s.repo.FindByKey(ctx, city.Name, city.Region, city.Country)
	if findErr != nil {
		return nil, fmt.Errorf("failed to re-read city after conflict: %w", findErr)
	}
	if existing == nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Recovered city from conflict", slog.String("city", existing.Name))
	return existing, nil
}
