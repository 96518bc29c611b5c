package poi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/loci-proximity-api/internal/domain/city"
	"github.com/FACorreiaa/loci-proximity-api/internal/provider"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
	"github.com/FACorreiaa/loci-proximity-api/pkg/observability"
)

const (
	// cityAssociationRadiusM bounds the reverse lookup of a new place's city.
	cityAssociationRadiusM = 5000.0

	defaultSavedLimit    = 20
	defaultBackfillLimit = 10
	maxBackfillLimit     = 100
)

var _ Service = (*ServiceImpl)(nil)

// Service is the place enrichment pipeline: category search, merge policy,
// saved listings, lifecycle and detail backfill.
type Service interface {
	SearchByCategory(ctx context.Context, category, cityText string) (*locitypes.ListResult[locitypes.Place], error)
	MergeOrCreate(ctx context.Context, detail locitypes.PlaceDetail, category, cityText string) (*locitypes.Place, error)
	ListSaved(ctx context.Context, q locitypes.SavedPlacesQuery) (*locitypes.ListResult[locitypes.Place], error)
	SoftDelete(ctx context.Context, cityText, region, placeID string) (int64, error)
	Restore(ctx context.Context, cityText, region, placeID string) (int64, error)
	BackfillMissingDetails(ctx context.Context, cityText, region string, limit int) (*locitypes.BackfillReport, error)
}

// CityResolver resolves the city text of a search to a point and region.
type CityResolver interface {
	ResolveByAddress(ctx context.Context, q locitypes.AddressQuery) (*locitypes.CityResult, error)
}

// CityFinder reads stored cities to associate places with them.
type CityFinder interface {
	FindNearest(ctx context.Context, point locitypes.Point, maxDistanceM float64) (*locitypes.City, error)
	FindByName(ctx context.Context, name, region string) (*locitypes.City, error)
}

type Config struct {
	Language          string
	BackfillDelay     time.Duration
	DetailConcurrency int
}

type ServiceImpl struct {
	logger   *slog.Logger
	repo     Repository
	resolver CityResolver
	cities   CityFinder
	provider provider.Client
	cfg      Config
	now      func() time.Time
}

func NewServiceImpl(repo Repository, resolver CityResolver, cities CityFinder, client provider.Client, cfg Config, logger *slog.Logger) *ServiceImpl {
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = 4
	}
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		resolver: resolver,
		cities:   cities,
		provider: client,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SearchByCategory searches the provider for "{category} in {cityText}",
// filters the hits cheaply, then fetches details for the survivors and merges
// them into the store. Result order follows the provider's order.
func (s *ServiceImpl) SearchByCategory(ctx context.Context, category, cityText string) (*locitypes.ListResult[locitypes.Place], error) {
	ctx, span := otel.Tracer("PlaceService").Start(ctx, "SearchByCategory", trace.WithAttributes(
		attribute.String("category", category),
		attribute.String("city", cityText),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "SearchByCategory"))

	if strings.TrimSpace(category) == "" || strings.TrimSpace(cityText) == "" {
		span.SetStatus(codes.Error, "Invalid query")
		return nil, fmt.Errorf("%w: category and city are required", locitypes.ErrValidation)
	}

	// Best effort: without a resolved city the distance and region filters are skipped.
	var (
		cityPoint *locitypes.Point
		region    string
	)
	resolved, err := s.resolver.ResolveByAddress(ctx, locitypes.AddressQuery{Text: cityText})
	switch {
	case err != nil:
		l.WarnContext(ctx, "Could not resolve search city", slog.String("city", cityText), slog.Any("error", err))
	case resolved.Found:
		cityPoint = &resolved.Point
		region = resolved.Region
	}

	candidates, err := s.provider.SearchByText(ctx, searchQuery(category, cityText), s.cfg.Language)
	if err != nil && !errors.Is(err, locitypes.ErrNotFound) {
		l.ErrorContext(ctx, "Text search failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Provider failed")
		return nil, fmt.Errorf("failed to search '%s' in '%s': %w", category, cityText, err)
	}

	survivors := filterCandidates(candidates, cityPoint, region)
	l.InfoContext(ctx, "Search candidates filtered",
		slog.Int("candidates", len(candidates)),
		slog.Int("survivors", len(survivors)),
		slog.String("region", region))

	tag := normalizeCategory(category)
	results := make([]*locitypes.Place, len(survivors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DetailConcurrency)
	for i, c := range survivors {
		i, c := i, c
		g.Go(func() error {
			detail, err := s.provider.FetchDetails(gctx, c.PlaceID, s.cfg.Language)
			if err != nil {
				l.WarnContext(gctx, "Skipping candidate, detail fetch failed",
					slog.String("place_id", c.PlaceID),
					slog.Any("error", err))
				return nil
			}

			place, err := s.MergeOrCreate(gctx, detail.WithCandidate(c), tag, cityText)
			if err != nil {
				return fmt.Errorf("failed to store place %s: %w", c.PlaceID, err)
			}
			results[i] = place
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to store places")
		return nil, err
	}

	items := make([]locitypes.Place, 0, len(results))
	for _, p := range results {
		if p != nil {
			items = append(items, *p)
		}
	}

	span.SetAttributes(attribute.Int("results.count", len(items)))
	span.SetStatus(codes.Ok, "Search completed")
	// Search results are not paged; Limit 0 marks the envelope as unpaged.
	return &locitypes.ListResult[locitypes.Place]{
		Source: locitypes.SourceProvider,
		Items:  items,
		Total:  len(items),
	}, nil
}

// MergeOrCreate stores a provider detail. It returns nil without error when
// the detail is unusable or its place was soft deleted. An existing place is
// only ever filled in, never overwritten.
func (s *ServiceImpl) MergeOrCreate(ctx context.Context, detail locitypes.PlaceDetail, category, cityText string) (*locitypes.Place, error) {
	ctx, span := otel.Tracer("PlaceService").Start(ctx, "MergeOrCreate", trace.WithAttributes(
		attribute.String("place.id", detail.PlaceID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "MergeOrCreate"), slog.String("place_id", detail.PlaceID))

	if reason := rejectReason(detail); reason != "" {
		l.DebugContext(ctx, "Detail rejected", slog.String("reason", reason))
		span.SetStatus(codes.Ok, "Detail rejected")
		return nil, nil
	}
	category = normalizeCategory(category)

	existing, err := s.repo.FindByPlaceID(ctx, detail.PlaceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		return nil, fmt.Errorf("failed to look up place: %w", err)
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("place.exists", true))
		return s.mergeExisting(ctx, existing, detail, category, cityText)
	}

	place := newPlace(detail, category, s.cityRef(ctx, *detail.Point, cityText))
	stored, err := s.repo.Create(ctx, place)
	if err == nil {
		span.SetStatus(codes.Ok, "Place created")
		return stored, nil
	}
	if !errors.Is(err, locitypes.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Create failed")
		return nil, err
	}

	// A concurrent writer created the place first.
	winner, findErr := s.repo.FindByPlaceID(ctx, detail.PlaceID)
	if findErr != nil {
		span.RecordError(findErr)
		return nil, fmt.Errorf("failed to re-read place after conflict: %w", findErr)
	}
	if winner == nil {
		return nil, err
	}
	l.DebugContext(ctx, "Recovered place from conflict")
	return s.mergeExisting(ctx, winner, detail, category, cityText)
}

func (s *ServiceImpl) mergeExisting(ctx context.Context, existing *locitypes.Place, detail locitypes.PlaceDetail, category, cityText string) (*locitypes.Place, error) {
	l := s.logger.With(slog.String("method", "mergeExisting"), slog.String("place_id", existing.PlaceID))

	if existing.Lifecycle.IsDeleted() {
		l.DebugContext(ctx, "Place is deleted, not resurrecting")
		return nil, nil
	}

	updated := *existing
	filled := applyFillRules(&updated, detail)

	tags, tagAdded := appendTag(updated.Tags, category)
	updated.Tags = tags

	cityFilled := false
	if !updated.CityID.Valid {
		if ref := s.cityRef(ctx, updated.Point, cityText); ref.Valid {
			updated.CityID = ref
			cityFilled = true
		}
	}

	if len(filled) == 0 && !tagAdded && !cityFilled {
		return existing, nil
	}

	stored, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("failed to merge place %s: %w", existing.PlaceID, err)
	}

	l.InfoContext(ctx, "Place merged",
		slog.Any("filled", filled),
		slog.Bool("tag_added", tagAdded),
		slog.Bool("city_filled", cityFilled))
	return stored, nil
}

// cityRef associates a point with a stored city: the nearest city within
// 5 km, otherwise an exact name match on cityText. Lookup failures leave the
// place without a city.
func (s *ServiceImpl) cityRef(ctx context.Context, point locitypes.Point, cityText string) uuid.NullUUID {
	near, err := s.cities.FindNearest(ctx, point, cityAssociationRadiusM)
	if err != nil {
		s.logger.WarnContext(ctx, "City association lookup failed", slog.Any("error", err))
	}
	if near != nil {
		return uuid.NullUUID{UUID: near.ID, Valid: true}
	}

	name, region := city.ParseAddress(cityText)
	if name == "" {
		return uuid.NullUUID{}
	}
	named, err := s.cities.FindByName(ctx, name, region)
	if err != nil {
		s.logger.WarnContext(ctx, "City association by name failed", slog.Any("error", err))
	}
	if named != nil {
		return uuid.NullUUID{UUID: named.ID, Valid: true}
	}
	return uuid.NullUUID{}
}

// storedCity returns the stored city named cityText, or ErrNotFound.
func (s *ServiceImpl) storedCity(ctx context.Context, cityText, region string) (*locitypes.City, error) {
	if strings.TrimSpace(cityText) == "" {
		return nil, fmt.Errorf("%w: city is required", locitypes.ErrValidation)
	}
	c, err := s.cities.FindByName(ctx, strings.TrimSpace(cityText), strings.TrimSpace(region))
	if err != nil {
		return nil, fmt.Errorf("failed to find city '%s': %w", cityText, err)
	}
	if c == nil {
		return nil, fmt.Errorf("city '%s': %w", cityText, locitypes.ErrNotFound)
	}
	return c, nil
}

// ListSaved lists the active places of one city, newest first.
func (s *ServiceImpl) ListSaved(ctx context.Context, q locitypes.SavedPlacesQuery) (*locitypes.ListResult[locitypes.Place], error) {
	ctx, span := otel.Tracer("PlaceService").Start(ctx, "ListSaved", trace.WithAttributes(
		attribute.String("city", q.City),
		attribute.Int("limit", q.Limit),
		attribute.Int("skip", q.Skip),
	))
	defer span.End()

	if err := locitypes.Validate(q); err != nil {
		span.SetStatus(codes.Error, "Invalid query")
		return nil, err
	}
	if q.Limit == 0 {
		q.Limit = defaultSavedLimit
	}

	c, err := s.storedCity(ctx, q.City, q.Region)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "City lookup failed")
		return nil, err
	}

	items, total, err := s.repo.ListByCity(ctx, c.ID, locitypes.PlaceListFilter{
		Limit: q.Limit,
		Skip:  q.Skip,
		Name:  strings.TrimSpace(q.Name),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "List failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Places listed")
	return &locitypes.ListResult[locitypes.Place]{
		Source: locitypes.SourceCache,
		Items:  items,
		Total:  total,
		Limit:  q.Limit,
		Skip:   q.Skip,
	}, nil
}

// SoftDelete marks one place (placeID set) or every active place of a city
// as deleted. Deleting an already deleted target reports ErrNotFound.
func (s *ServiceImpl) SoftDelete(ctx context.Context, cityText, region, placeID string) (int64, error) {
	now := s.now().UTC()
	return s.setLifecycle(ctx, "SoftDelete", cityText, region, placeID, &now)
}

// Restore clears the deletion mark set by SoftDelete.
func (s *ServiceImpl) Restore(ctx context.Context, cityText, region, placeID string) (int64, error) {
	return s.setLifecycle(ctx, "Restore", cityText, region, placeID, nil)
}

func (s *ServiceImpl) setLifecycle(ctx context.Context, op, cityText, region, placeID string, at *time.Time) (int64, error) {
	ctx, span := otel.Tracer("PlaceService").Start(ctx, op, trace.WithAttributes(
		attribute.String("city", cityText),
		attribute.String("place.id", placeID),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", op))

	c, err := s.storedCity(ctx, cityText, region)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "City lookup failed")
		return 0, err
	}

	n, err := s.repo.SetDeleted(ctx, c.ID, strings.TrimSpace(placeID), at)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Update failed")
		return 0, err
	}
	if n == 0 {
		span.SetStatus(codes.Error, "Nothing to change")
		return 0, fmt.Errorf("no place matched in '%s': %w", c.Name, locitypes.ErrNotFound)
	}

	l.InfoContext(ctx, "Place lifecycle changed",
		slog.String("city", c.Name),
		slog.String("place_id", placeID),
		slog.Int64("count", n))
	span.SetStatus(codes.Ok, "Lifecycle changed")
	return n, nil
}

// BackfillMissingDetails re-fetches details for places of a city lacking
// photos, reviews, phone or website and fills what is missing. Calls are
// spaced by the configured delay. Per-place failures are counted, not fatal.
func (s *ServiceImpl) BackfillMissingDetails(ctx context.Context, cityText, region string, limit int) (*locitypes.BackfillReport, error) {
	ctx, span := otel.Tracer("PlaceService").Start(ctx, "BackfillMissingDetails", trace.WithAttributes(
		attribute.String("city", cityText),
		attribute.Int("limit", limit),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "BackfillMissingDetails"))

	switch {
	case limit < 0 || limit > maxBackfillLimit:
		return nil, fmt.Errorf("%w: limit must be between 0 and %d", locitypes.ErrValidation, maxBackfillLimit)
	case limit == 0:
		limit = defaultBackfillLimit
	}

	c, err := s.storedCity(ctx, cityText, region)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "City lookup failed")
		return nil, err
	}

	places, err := s.repo.ListMissingDetails(ctx, c.ID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "List failed")
		return nil, err
	}

	report := &locitypes.BackfillReport{Scanned: len(places)}
	l.InfoContext(ctx, "Backfill started",
		slog.String("city", c.Name),
		slog.Any("place_ids", placeIDs(places)))

	for i, p := range places {
		if i > 0 && s.cfg.BackfillDelay > 0 {
			timer := time.NewTimer(s.cfg.BackfillDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				span.SetStatus(codes.Error, "Cancelled")
				return report, ctx.Err()
			case <-timer.C:
			}
		}

		detail, err := s.provider.FetchDetails(ctx, p.PlaceID, s.cfg.Language)
		if err != nil {
			l.WarnContext(ctx, "Backfill detail fetch failed", slog.String("place_id", p.PlaceID), slog.Any("error", err))
			report.Errors++
			observability.BackfillErrors.Inc()
			continue
		}

		updated := p
		if filled := applyFillRules(&updated, *detail); len(filled) == 0 {
			report.Unchanged++
			continue
		}
		if _, err := s.repo.Update(ctx, updated); err != nil {
			l.WarnContext(ctx, "Backfill update failed", slog.String("place_id", p.PlaceID), slog.Any("error", err))
			report.Errors++
			observability.BackfillErrors.Inc()
			continue
		}
		report.Updated++
	}

	l.InfoContext(ctx, "Backfill finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("errors", report.Errors))
	span.SetStatus(codes.Ok, "Backfill finished")
	return report, nil
}
