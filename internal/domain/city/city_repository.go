package city

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
	"github.com/FACorreiaa/loci-proximity-api/pkg/db"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the city side of the geo store.
type Repository interface {
	// FindNearest returns the closest city within maxDistanceM meters, or nil.
	FindNearest(ctx context.Context, point locitypes.Point, maxDistanceM float64) (*locitypes.City, error)
	// FindWithinRadius returns every city within radiusKm ordered by distance.
	FindWithinRadius(ctx context.Context, point locitypes.Point, radiusKm float64) ([]locitypes.City, error)
	// FindByName matches name and optional region case-insensitively, or returns nil.
	FindByName(ctx context.Context, name, region string) (*locitypes.City, error)
	// FindByKey returns the city stored under the exact identity triple, or nil.
	FindByKey(ctx context.Context, name, region, country string) (*locitypes.City, error)
	// Upsert inserts the city if absent and returns the stored row.
	Upsert(ctx context.Context, city locitypes.City) (*locitypes.City, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool db.Querier
}

func NewCityRepository(pgpool db.Querier, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

const cityColumns = `id, name, region, country,
            ST_Y(location) AS latitude,
            ST_X(location) AS longitude,
            created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCity(row scanner) (*locitypes.City, error) {
	var c locitypes.City
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Region,
		&c.Country,
		&c.Point.Lat,
		&c.Point.Lon,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RepositoryImpl) FindNearest(ctx context.Context, point locitypes.Point, maxDistanceM float64) (*locitypes.City, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "FindNearest", trace.WithAttributes(
		attribute.Float64("latitude", point.Lat),
		attribute.Float64("longitude", point.Lon),
		attribute.Float64("max_distance_m", maxDistanceM),
	))
	defer span.End()

	// For ST_MakePoint, longitude is first, then latitude
	query := `
        SELECT ` + cityColumns + `
        FROM cities
        WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
        ORDER BY ST_Distance(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography)
        LIMIT 1
    `

	c, err := scanCity(r.pgpool.QueryRow(ctx, query, point.Lon, point.Lat, maxDistanceM))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "No city nearby")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to find nearest city: %w", err)
	}

	span.SetAttributes(attribute.String("city.id", c.ID.String()))
	span.SetStatus(codes.Ok, "Nearest city found")
	return c, nil
}

func (r *RepositoryImpl) FindWithinRadius(ctx context.Context, point locitypes.Point, radiusKm float64) ([]locitypes.City, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "FindWithinRadius", trace.WithAttributes(
		attribute.Float64("latitude", point.Lat),
		attribute.Float64("longitude", point.Lon),
		attribute.Float64("radius_km", radiusKm),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "FindWithinRadius"))

	query := `
        SELECT ` + cityColumns + `
        FROM cities
        WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
        ORDER BY ST_Distance(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography)
    `

	rows, err := r.pgpool.Query(ctx, query, point.Lon, point.Lat, radiusKm*1000)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query cities within radius", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to query cities within radius: %w", err)
	}
	defer rows.Close()

	cities := []locitypes.City{}
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan city row: %w", err)
		}
		cities = append(cities, *c)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating city rows: %w", err)
	}

	l.DebugContext(ctx, "Cities within radius", slog.Int("count", len(cities)))
	span.SetAttributes(attribute.Int("results.count", len(cities)))
	span.SetStatus(codes.Ok, "Cities found")

	return cities, nil
}

func (r *RepositoryImpl) FindByName(ctx context.Context, name, region string) (*locitypes.City, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "FindByName", trace.WithAttributes(
		attribute.String("city.name", name),
		attribute.String("city.region", region),
	))
	defer span.End()

	query := `
        SELECT ` + cityColumns + `
        FROM cities
        WHERE LOWER(name) = LOWER($1)
        AND ($2 = '' OR LOWER(region) = LOWER($2))
        ORDER BY updated_at DESC
        LIMIT 1
    `

	c, err := scanCity(r.pgpool.QueryRow(ctx, query, name, region))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "City not found")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to find city '%s', '%s': %w", name, region, err)
	}

	span.SetStatus(codes.Ok, "City found")
	return c, nil
}

func (r *RepositoryImpl) FindByKey(ctx context.Context, name, region, country string) (*locitypes.City, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "FindByKey")
	defer span.End()

	query := `
        SELECT ` + cityColumns + `
        FROM cities
        WHERE name = $1 AND region = $2 AND country = $3
    `

	c, err := scanCity(r.pgpool.QueryRow(ctx, query, name, region, country))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to find city by key: %w", err)
	}

	span.SetStatus(codes.Ok, "City found")
	return c, nil
}

// Upsert inserts the city or, when the identity triple already exists, bumps
// its updated_at and returns the stored row. Unique violations raised by any
// other race surface as locitypes.ErrConflict.
func (r *RepositoryImpl) Upsert(ctx context.Context, city locitypes.City) (*locitypes.City, error) {
	ctx, span := otel.Tracer("CityRepository").Start(ctx, "Upsert", trace.WithAttributes(
		attribute.String("city.name", city.Name),
		attribute.String("city.region", city.Region),
		attribute.String("city.country", city.Country),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Upsert"))

	query := `
        INSERT INTO cities (name, region, country, location)
        VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326))
        ON CONFLICT (name, region, country) DO UPDATE SET updated_at = NOW()
        RETURNING ` + cityColumns

	stored, err := scanCity(r.pgpool.QueryRow(ctx, query,
		city.Name,
		city.Region,
		city.Country,
		city.Point.Lon,
		city.Point.Lat,
	))
	if err != nil {
		span.RecordError(err)
		if db.IsUniqueViolation(err) {
			l.WarnContext(ctx, "City insert raced with another writer", slog.String("name", city.Name))
			span.SetStatus(codes.Error, "Conflict")
			return nil, fmt.Errorf("failed to upsert city '%s': %w", city.Name, locitypes.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to upsert city", slog.Any("error", err))
		span.SetStatus(codes.Error, "Database upsert failed")
		return nil, fmt.Errorf("failed to upsert city '%s': %w", city.Name, err)
	}

	l.InfoContext(ctx, "City stored",
		slog.String("city_id", stored.ID.String()),
		slog.String("name", stored.Name))
	span.SetAttributes(attribute.String("city.id", stored.ID.String()))
	span.SetStatus(codes.Ok, "City stored")

	return stored, nil
}
