package poi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
	"github.com/FACorreiaa/loci-proximity-api/pkg/db"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the place side of the geo store. Deleted places are only
// visible through FindByPlaceID and SetDeleted.
type Repository interface {
	// FindByPlaceID returns the place stored under the provider id, deleted or not.
	FindByPlaceID(ctx context.Context, placeID string) (*locitypes.Place, error)
	Create(ctx context.Context, place locitypes.Place) (*locitypes.Place, error)
	// Update rewrites the mutable fields of an active place.
	Update(ctx context.Context, place locitypes.Place) (*locitypes.Place, error)
	ListByCity(ctx context.Context, cityID uuid.UUID, filter locitypes.PlaceListFilter) ([]locitypes.Place, int, error)
	// SetDeleted soft deletes (at != nil) or restores (at == nil) the active or
	// deleted places of a city. An empty placeID targets every place of the city.
	SetDeleted(ctx context.Context, cityID uuid.UUID, placeID string, at *time.Time) (int64, error)
	ListMissingDetails(ctx context.Context, cityID uuid.UUID, limit int) ([]locitypes.Place, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool db.Querier
	psql   squirrel.StatementBuilderType
}

func NewRepository(pgpool db.Querier, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
		psql:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var placeColumns = []string{
	"id", "place_id", "name", "address", "formatted_address",
	"ST_Y(location) AS latitude",
	"ST_X(location) AS longitude",
	"tags", "rating", "rating_count", "price_tier", "photos",
	"phone", "website", "url",
	"COALESCE(hours, 'null'::jsonb) AS hours",
	"reviews", "address_components", "business_status",
	"city_id", "deleted_at", "created_at", "updated_at",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlace(row scanner) (*locitypes.Place, error) {
	var (
		p                 locitypes.Place
		hours             []byte
		reviews           []byte
		addressComponents []byte
		deletedAt         pgtype.Timestamptz
	)
	if err := row.Scan(
		&p.ID,
		&p.PlaceID,
		&p.Name,
		&p.Address,
		&p.FormattedAddress,
		&p.Point.Lat,
		&p.Point.Lon,
		&p.Tags,
		&p.Rating,
		&p.RatingCount,
		&p.PriceTier,
		&p.Photos,
		&p.Phone,
		&p.Website,
		&p.URL,
		&hours,
		&reviews,
		&addressComponents,
		&p.BusinessStatus,
		&p.CityID,
		&deletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &p.Hours); err != nil {
			return nil, fmt.Errorf("failed to decode hours of place %s: %w", p.PlaceID, err)
		}
	}
	if len(reviews) > 0 {
		if err := json.Unmarshal(reviews, &p.Reviews); err != nil {
			return nil, fmt.Errorf("failed to decode reviews of place %s: %w", p.PlaceID, err)
		}
	}
	if len(addressComponents) > 0 {
		if err := json.Unmarshal(addressComponents, &p.AddressComponents); err != nil {
			return nil, fmt.Errorf("failed to decode address components of place %s: %w", p.PlaceID, err)
		}
	}
	if deletedAt.Valid {
		p.Lifecycle = locitypes.DeletedAt(deletedAt.Time)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Photos == nil {
		p.Photos = []string{}
	}
	if p.Reviews == nil {
		p.Reviews = []locitypes.Review{}
	}

	return &p, nil
}

// jsonColumns encodes the JSONB columns of a place.
func jsonColumns(p locitypes.Place) (hours, reviews, components []byte, err error) {
	if !p.Hours.IsEmpty() {
		if hours, err = json.Marshal(p.Hours); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode hours: %w", err)
		}
	}
	if reviews, err = json.Marshal(nonNil(p.Reviews)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode reviews: %w", err)
	}
	if components, err = json.Marshal(nonNil(p.AddressComponents)); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode address components: %w", err)
	}
	return hours, reviews, components, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func makePoint(p locitypes.Point) squirrel.Sqlizer {
	return squirrel.Expr("ST_SetSRID(ST_MakePoint(?, ?), 4326)", p.Lon, p.Lat)
}

func (r *RepositoryImpl) FindByPlaceID(ctx context.Context, placeID string) (*locitypes.Place, error) {
	ctx, span := otel.Tracer("PlaceRepository").Start(ctx, "FindByPlaceID", trace.WithAttributes(
		attribute.String("place.id", placeID),
	))
	defer span.End()

	query, args, err := r.psql.Select(placeColumns...).
		From("places").
		Where(squirrel.Eq{"place_id": placeID}).
		ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build place query: %w", err)
	}

	p, err := scanPlace(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "Place not found")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to find place %s: %w", placeID, err)
	}

	span.SetStatus(codes.Ok, "Place found")
	return p, nil
}

// Create inserts a new place. A duplicate place id maps to locitypes.ErrConflict.
func (r *RepositoryImpl) Create(ctx context.Context, place locitypes.Place) (*locitypes.Place, error) {
	ctx, span := otel.Tracer("PlaceRepository").Start(ctx, "Create", trace.WithAttributes(
		attribute.String("place.id", place.PlaceID),
		attribute.String("place.name", place.Name),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Create"))

	hours, reviews, components, err := jsonColumns(place)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	query, args, err := r.psql.Insert("places").
		Columns(
			"place_id", "name", "address", "formatted_address", "location",
			"tags", "rating", "rating_count", "price_tier", "photos",
			"phone", "website", "url", "hours", "reviews",
			"address_components", "business_status", "city_id",
		).
		Values(
			place.PlaceID, place.Name, place.Address, place.FormattedAddress, makePoint(place.Point),
			nonNil(place.Tags), place.Rating, place.RatingCount, place.PriceTier, nonNil(place.Photos),
			place.Phone, place.Website, place.URL, hours, reviews,
			components, place.BusinessStatus, place.CityID,
		).
		Suffix("RETURNING " + strings.Join(placeColumns, ", ")).
		ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build place insert: %w", err)
	}

	stored, err := scanPlace(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		span.RecordError(err)
		if db.IsUniqueViolation(err) {
			span.SetStatus(codes.Error, "Conflict")
			return nil, fmt.Errorf("failed to create place %s: %w", place.PlaceID, locitypes.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to create place", slog.Any("error", err))
		span.SetStatus(codes.Error, "Database insert failed")
		return nil, fmt.Errorf("failed to create place %s: %w", place.PlaceID, err)
	}

	l.InfoContext(ctx, "Place created",
		slog.String("place_id", stored.PlaceID),
		slog.String("name", stored.Name))
	span.SetStatus(codes.Ok, "Place created")
	return stored, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, place locitypes.Place) (*locitypes.Place, error) {
	ctx, span := otel.Tracer("PlaceRepository").Start(ctx, "Update", trace.WithAttributes(
		attribute.String("place.id", place.PlaceID),
	))
	defer span.End()

	hours, reviews, components, err := jsonColumns(place)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	query, args, err := r.psql.Update("places").
		SetMap(map[string]any{
			"formatted_address":  place.FormattedAddress,
			"tags":               nonNil(place.Tags),
			"photos":             nonNil(place.Photos),
			"phone":              place.Phone,
			"website":            place.Website,
			"hours":              hours,
			"reviews":            reviews,
			"address_components": components,
			"business_status":    place.BusinessStatus,
			"city_id":            place.CityID,
			"updated_at":         squirrel.Expr("NOW()"),
		}).
		Where(squirrel.Eq{"id": place.ID}).
		Where("deleted_at IS NULL").
		Suffix("RETURNING " + strings.Join(placeColumns, ", ")).
		ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build place update: %w", err)
	}

	stored, err := scanPlace(r.pgpool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "Place not active")
			return nil, fmt.Errorf("place %s is not active: %w", place.PlaceID, locitypes.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database update failed")
		return nil, fmt.Errorf("failed to update place %s: %w", place.PlaceID, err)
	}

	span.SetStatus(codes.Ok, "Place updated")
	return stored, nil
}

// ListByCity returns one page of the active places of a city, newest first,
// together with the total number of matching places.
func (r *RepositoryImpl) ListByCity(ctx context.Context, cityID uuid.UUID, filter locitypes.PlaceListFilter) ([]locitypes.Place, int, error) {
	ctx, span := otel.Tracer("PlaceRepository").Start(ctx, "ListByCity", trace.WithAttributes(
		attribute.String("city.id", cityID.String()),
		attribute.Int("limit", filter.Limit),
		attribute.Int("skip", filter.Skip),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "ListByCity"))

	where := squirrel.And{
		squirrel.Eq{"city_id": cityID},
		squirrel.Expr("deleted_at IS NULL"),
	}
	if filter.Name != "" {
		where = append(where, squirrel.ILike{"name": "%" + filter.Name + "%"})
	}

	countQuery, countArgs, err := r.psql.Select("COUNT(*)").From("places").Where(where).ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.pgpool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		l.ErrorContext(ctx, "Failed to count places", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, 0, fmt.Errorf("failed to count places: %w", err)
	}

	builder := r.psql.Select(placeColumns...).
		From("places").
		Where(where).
		OrderBy("created_at DESC", "id").
		Offset(uint64(filter.Skip))
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	places, err := r.collect(ctx, query, args)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list places", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, 0, err
	}

	span.SetAttributes(attribute.Int("results.count", len(places)), attribute.Int("results.total", total))
	span.SetStatus(codes.Ok, "Places listed")
	return places, total, nil
}

func (r *RepositoryImpl) SetDeleted(ctx context.Context, cityID uuid.UUID, placeID string, at *time.Time) (int64, error) {
	ctx, span := otel.Tracer("PlaceRepository").Start(ctx, "SetDeleted", trace.WithAttributes(
		attribute.String("city.id", cityID.String()),
		attribute.String("place.id", placeID),
		attribute.Bool("delete", at != nil),
	))
	defer span.End()

	builder := r.psql.Update("places").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"city_id": cityID})
	if at != nil {
		builder = builder.Set("deleted_at", *at).Where("deleted_at IS NULL")
	} else {
		builder = builder.Set("deleted_at", nil).Where("deleted_at IS NOT NULL")
	}
	if placeID != "" {
		builder = builder.Where(squirrel.Eq{"place_id": placeID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to build lifecycle update: %w", err)
	}

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to change place lifecycle",
			slog.String("method", "SetDeleted"),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database update failed")
		return 0, fmt.Errorf("failed to update place lifecycle: %w", err)
	}

	span.SetAttributes(attribute.Int64("rows.affected", tag.RowsAffected()))
	span.SetStatus(codes.Ok, "Lifecycle updated")
	return tag.RowsAffected(), nil
}

// ListMissingDetails returns active places of a city lacking photos, reviews,
// phone or website, oldest first.
func (r *RepositoryImpl) ListMissingDetails(ctx context.Context, cityID uuid.UUID, limit int) ([]locitypes.Place, error) {
	ctx, span := otel.Tracer("PlaceRepository").Start(ctx, "ListMissingDetails", trace.WithAttributes(
		attribute.String("city.id", cityID.String()),
		attribute.Int("limit", limit),
	))
	defer span.End()

	query, args, err := r.psql.Select(placeColumns...).
		From("places").
		Where(squirrel.Eq{"city_id": cityID}).
		Where("deleted_at IS NULL").
		Where(squirrel.Or{
			squirrel.Expr("cardinality(photos) = 0"),
			squirrel.Expr("jsonb_array_length(reviews) = 0"),
			squirrel.Eq{"phone": ""},
			squirrel.Eq{"website": ""},
		}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build backfill query: %w", err)
	}

	places, err := r.collect(ctx, query, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Places listed")
	return places, nil
}

func (r *RepositoryImpl) collect(ctx context.Context, query string, args []any) ([]locitypes.Place, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query places: %w", err)
	}
	defer rows.Close()

	places := []locitypes.Place{}
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan place row: %w", err)
		}
		places = append(places, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating place rows: %w", err)
	}
	return places, nil
}
