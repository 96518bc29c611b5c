package discover

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/loci-proximity-api/internal/domain/city"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

type Service interface {
	// Overview resolves the current city and its neighbors for one point.
	Overview(ctx context.Context, q locitypes.NeighborQuery) (*locitypes.LocationOverview, error)
}

type ServiceImpl struct {
	cities city.Service
	logger *slog.Logger
}

func NewServiceImpl(cities city.Service, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		cities: cities,
		logger: logger,
	}
}

// Overview runs the current city and neighbor resolutions concurrently. Both
// must succeed.
func (s *ServiceImpl) Overview(ctx context.Context, q locitypes.NeighborQuery) (*locitypes.LocationOverview, error) {
	ctx, span := otel.Tracer("DiscoverService").Start(ctx, "Overview", trace.WithAttributes(
		attribute.Float64("latitude", q.Point.Lat),
		attribute.Float64("longitude", q.Point.Lon),
		attribute.Float64("radius_km", q.RadiusKm),
	))
	defer span.End()

	l := s.logger.With(slog.String("service", "Overview"))

	overview := &locitypes.LocationOverview{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		current, err := s.cities.ResolveCurrent(gctx, q.Point.Lat, q.Point.Lon)
		if err != nil {
			return fmt.Errorf("failed to resolve current city: %w", err)
		}
		overview.Current = current
		return nil
	})
	g.Go(func() error {
		neighbors, err := s.cities.ResolveNeighbors(gctx, q)
		if err != nil {
			return fmt.Errorf("failed to resolve neighbors: %w", err)
		}
		overview.Neighbors = neighbors
		return nil
	})

	if err := g.Wait(); err != nil {
		l.WarnContext(ctx, "Overview failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Overview failed")
		return nil, err
	}

	l.DebugContext(ctx, "Overview resolved",
		slog.Bool("current_found", overview.Current.Found),
		slog.Int("neighbors", overview.Neighbors.Total))
	span.SetStatus(codes.Ok, "Overview resolved")
	return overview, nil
}
