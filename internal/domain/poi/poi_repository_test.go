package poi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/loci-proximity-api/internal/provider/providertest"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

var placeRowColumns = []string{
	"id", "place_id", "name", "address", "formatted_address", "latitude", "longitude",
	"tags", "rating", "rating_count", "price_tier", "photos", "phone", "website", "url",
	"hours", "reviews", "address_components", "business_status",
	"city_id", "deleted_at", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *RepositoryImpl) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, NewRepository(pool, providertest.NewTestLogger())
}

func TestRepositoryImpl_FindByPlaceID(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes the stored row", func(t *testing.T) {
		pool, repo := newMockRepo(t)
		id := uuid.New()
		now := time.Now()
		pool.ExpectQuery(`FROM places WHERE place_id = \$1`).
			WithArgs("pl-1").
			WillReturnRows(pgxmock.NewRows(placeRowColumns).AddRow(
				id.String(), "pl-1", "Chalé da Serra", "", "Campos do Jordão - SP", -22.72, -45.58,
				[]string{"chalé"}, 4.7, 120, 2, []string{"ref-1"}, "+55 12 3663-0000", "", "",
				[]byte(`{"weekday_text":["Mon: 9-18"]}`),
				[]byte(`[{"author_name":"Ana","rating":5,"text":"Lindo","time":1700000000}]`),
				[]byte(`[]`), "OPERATIONAL",
				nil, nil, now, now,
			))

		p, err := repo.FindByPlaceID(ctx, "pl-1")

		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, id, p.ID)
		assert.Equal(t, locitypes.Point{Lat: -22.72, Lon: -45.58}, p.Point)
		assert.Equal(t, []string{"Mon: 9-18"}, p.Hours.WeekdayText)
		require.Len(t, p.Reviews, 1)
		assert.Equal(t, "Ana", p.Reviews[0].AuthorName)
		assert.False(t, p.CityID.Valid)
		assert.False(t, p.Lifecycle.IsDeleted())
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("no rows is nil without error", func(t *testing.T) {
		pool, repo := newMockRepo(t)
		pool.ExpectQuery(`FROM places WHERE place_id = \$1`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(placeRowColumns))

		p, err := repo.FindByPlaceID(ctx, "missing")

		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestRepositoryImpl_Create_Conflict(t *testing.T) {
	pool, repo := newMockRepo(t)
	pool.ExpectQuery(`INSERT INTO places .* RETURNING`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "places_place_id_key"})

	_, err := repo.Create(context.Background(), newPlace(chaletDetail("pl-1", "Chalé"), "chalé", uuid.NullUUID{}))

	assert.ErrorIs(t, err, locitypes.ErrConflict)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepositoryImpl_Update_NotActive(t *testing.T) {
	pool, repo := newMockRepo(t)
	pool.ExpectQuery(`UPDATE places SET .* WHERE id = \$\d+ AND deleted_at IS NULL RETURNING`).
		WillReturnRows(pgxmock.NewRows(placeRowColumns))

	p := newPlace(chaletDetail("pl-1", "Chalé"), "chalé", uuid.NullUUID{})
	p.ID = uuid.New()
	_, err := repo.Update(context.Background(), p)

	assert.ErrorIs(t, err, locitypes.ErrNotFound)
}

func TestRepositoryImpl_SetDeleted(t *testing.T) {
	ctx := context.Background()
	cityID := uuid.New()

	t.Run("soft delete targets active rows", func(t *testing.T) {
		pool, repo := newMockRepo(t)
		at := time.Now()
		pool.ExpectExec(`UPDATE places SET updated_at = NOW\(\), deleted_at = \$1 WHERE city_id = \$2 AND deleted_at IS NULL AND place_id = \$3`).
			WithArgs(at, pgxmock.AnyArg(), "pl-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		n, err := repo.SetDeleted(ctx, cityID, "pl-1", &at)

		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("restore targets deleted rows of the whole city", func(t *testing.T) {
		pool, repo := newMockRepo(t)
		pool.ExpectExec(`SET updated_at = NOW\(\), deleted_at = \$1 WHERE city_id = \$2 AND deleted_at IS NOT NULL$`).
			WithArgs(nil, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		n, err := repo.SetDeleted(ctx, cityID, "", nil)

		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("database errors are returned", func(t *testing.T) {
		pool, repo := newMockRepo(t)
		pool.ExpectExec(`UPDATE places`).WillReturnError(errors.New("connection reset"))

		_, err := repo.SetDeleted(ctx, cityID, "", nil)

		assert.Error(t, err)
	})
}

func TestRepositoryImpl_ListByCity(t *testing.T) {
	pool, repo := newMockRepo(t)
	cityID := uuid.New()
	now := time.Now()

	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM places WHERE \(city_id = \$1 AND deleted_at IS NULL AND name ILIKE \$2\)`).
		WithArgs(pgxmock.AnyArg(), "%chalé%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	pool.ExpectQuery(`FROM places WHERE .* ORDER BY created_at DESC, id LIMIT 2 OFFSET 4`).
		WithArgs(pgxmock.AnyArg(), "%chalé%").
		WillReturnRows(pgxmock.NewRows(placeRowColumns).AddRow(
			uuid.NewString(), "pl-5", "Chalé 5", "", "Campos do Jordão - SP", -22.72, -45.58,
			[]string{}, 0.0, 0, 0, []string{}, "", "", "",
			[]byte(`null`), []byte(`[]`), []byte(`[]`), "",
			cityID.String(), nil, now, now,
		))

	places, total, err := repo.ListByCity(context.Background(), cityID, locitypes.PlaceListFilter{Limit: 2, Skip: 4, Name: "chalé"})

	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, places, 1)
	assert.Nil(t, places[0].Hours)
	assert.Equal(t, cityID, places[0].CityID.UUID)
	assert.NoError(t, pool.ExpectationsWereMet())
}
