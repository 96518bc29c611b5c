package poi

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/loci-proximity-api/internal/provider/providertest"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// memoryRepo is an in-memory Repository keyed by place id.
type memoryRepo struct {
	mu      sync.Mutex
	places  map[string]*locitypes.Place
	creates int
	updates int

	// raceWinner, when set, is stored by the next Create which then reports a conflict.
	raceWinner *locitypes.Place
	updateErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{places: map[string]*locitypes.Place{}}
}

func (r *memoryRepo) put(p locitypes.Place) *locitypes.Place {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stored := p
	r.places[p.PlaceID] = &stored
	out := stored
	return &out
}

func (r *memoryRepo) FindByPlaceID(_ context.Context, placeID string) (*locitypes.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.places[placeID]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (r *memoryRepo) Create(_ context.Context, place locitypes.Place) (*locitypes.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raceWinner != nil {
		r.put(*r.raceWinner)
		r.raceWinner = nil
		return nil, locitypes.ErrConflict
	}
	if _, ok := r.places[place.PlaceID]; ok {
		return nil, locitypes.ErrConflict
	}
	r.creates++
	return r.put(place), nil
}

func (r *memoryRepo) Update(_ context.Context, place locitypes.Place) (*locitypes.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	current, ok := r.places[place.PlaceID]
	if !ok || current.Lifecycle.IsDeleted() {
		return nil, locitypes.ErrNotFound
	}
	r.updates++
	return r.put(place), nil
}

func (r *memoryRepo) ListByCity(_ context.Context, cityID uuid.UUID, filter locitypes.PlaceListFilter) ([]locitypes.Place, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []locitypes.Place
	for _, p := range r.places {
		if p.CityID.UUID == cityID && !p.Lifecycle.IsDeleted() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if filter.Skip >= total {
		return []locitypes.Place{}, total, nil
	}
	out = out[filter.Skip:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) SetDeleted(_ context.Context, cityID uuid.UUID, placeID string, at *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.places {
		if p.CityID.UUID != cityID || (placeID != "" && p.PlaceID != placeID) {
			continue
		}
		switch {
		case at != nil && !p.Lifecycle.IsDeleted():
			p.Lifecycle = locitypes.DeletedAt(*at)
			n++
		case at == nil && p.Lifecycle.IsDeleted():
			p.Lifecycle = locitypes.Active()
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) ListMissingDetails(_ context.Context, cityID uuid.UUID, limit int) ([]locitypes.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []locitypes.Place
	for _, p := range r.places {
		if p.CityID.UUID != cityID || p.Lifecycle.IsDeleted() {
			continue
		}
		if len(p.Photos) == 0 || len(p.Reviews) == 0 || p.Phone == "" || p.Website == "" {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockCityFinder is a mock implementation of CityFinder
type MockCityFinder struct {
	mock.Mock
}

func (m *MockCityFinder) FindNearest(ctx context.Context, point locitypes.Point, maxDistanceM float64) (*locitypes.City, error) {
	args := m.Called(ctx, point, maxDistanceM)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*locitypes.City), args.Error(1)
}

func (m *MockCityFinder) FindByName(ctx context.Context, name, region string) (*locitypes.City, error) {
	args := m.Called(ctx, name, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*locitypes.City), args.Error(1)
}

// MockCityResolver is a mock implementation of CityResolver
type MockCityResolver struct {
	mock.Mock
}

func (m *MockCityResolver) ResolveByAddress(ctx context.Context, q locitypes.AddressQuery) (*locitypes.CityResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*locitypes.CityResult), args.Error(1)
}

var camposDoJordao = &locitypes.City{
	ID:      uuid.MustParse("6f1c2f7e-4a8e-4f43-9d0e-1f1f6a0b2c11"),
	Name:    "Campos do Jordão",
	Region:  "SP",
	Country: "Brazil",
	Point:   locitypes.Point{Lat: -22.7394, Lon: -45.5914},
}

func newTestService(repo Repository, resolver CityResolver, cities CityFinder, client *providertest.Client) *ServiceImpl {
	return NewServiceImpl(repo, resolver, cities, client, Config{Language: "pt-BR", DetailConcurrency: 2}, providertest.NewTestLogger())
}

// noCities answers every association lookup with a miss.
func noCities() *MockCityFinder {
	cities := new(MockCityFinder)
	cities.On("FindNearest", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	cities.On("FindByName", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	return cities
}

func chaletDetail(placeID, name string) locitypes.PlaceDetail {
	return locitypes.PlaceDetail{
		PlaceID:          placeID,
		Name:             name,
		FormattedAddress: "Av. Macedo Soares, 100 - Capivari, Campos do Jordão - SP, 12460-000, Brazil",
		Point:            &locitypes.Point{Lat: -22.7247, Lon: -45.5842},
		Types:            []string{"lodging"},
	}
}

func TestServiceImpl_MergeOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("fills empty fields without overwriting existing ones", func(t *testing.T) {
		repo := newMemoryRepo()
		svc := newTestService(repo, new(MockCityResolver), noCities(), &providertest.Client{})

		first, err := svc.MergeOrCreate(ctx, chaletDetail("pl-1", "Chalé da Serra"), "Chalé", "Campos do Jordão")
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Empty(t, first.Website)
		assert.Equal(t, []string{"chalé"}, first.Tags)

		second := chaletDetail("pl-1", "Renamed Chalé")
		second.FormattedAddress = "Somewhere else entirely"
		second.Website = "https://chaledaserra.example"
		merged, err := svc.MergeOrCreate(ctx, second, "chalé", "Campos do Jordão")
		require.NoError(t, err)
		require.NotNil(t, merged)

		assert.Equal(t, "https://chaledaserra.example", merged.Website)
		assert.Equal(t, "Chalé da Serra", merged.Name)
		assert.Equal(t, first.FormattedAddress, merged.FormattedAddress)
		assert.Equal(t, first.ID, merged.ID)
		assert.Equal(t, 1, repo.creates)
		assert.Equal(t, 1, repo.updates)
	})

	t.Run("appends a new category tag once", func(t *testing.T) {
		repo := newMemoryRepo()
		svc := newTestService(repo, new(MockCityResolver), noCities(), &providertest.Client{})

		_, err := svc.MergeOrCreate(ctx, chaletDetail("pl-2", "Pousada"), "chalé", "Campos do Jordão")
		require.NoError(t, err)

		merged, err := svc.MergeOrCreate(ctx, chaletDetail("pl-2", "Pousada"), "  Pousada ", "Campos do Jordão")
		require.NoError(t, err)
		assert.Equal(t, []string{"chalé", "pousada"}, merged.Tags)

		_, err = svc.MergeOrCreate(ctx, chaletDetail("pl-2", "Pousada"), "pousada", "Campos do Jordão")
		require.NoError(t, err)
		assert.Equal(t, 1, repo.updates, "nothing changed on the third call")
	})

	t.Run("soft deleted place is not resurrected", func(t *testing.T) {
		repo := newMemoryRepo()
		deleted := newPlace(chaletDetail("pl-3", "Gone"), "chalé", uuid.NullUUID{})
		deleted.Lifecycle = locitypes.DeletedAt(time.Now())
		repo.put(deleted)
		svc := newTestService(repo, new(MockCityResolver), noCities(), &providertest.Client{})

		detail := chaletDetail("pl-3", "Gone")
		detail.Website = "https://gone.example"
		place, err := svc.MergeOrCreate(ctx, detail, "chalé", "Campos do Jordão")

		require.NoError(t, err)
		assert.Nil(t, place)
		assert.Zero(t, repo.creates)
		assert.Zero(t, repo.updates)
		assert.Len(t, repo.places, 1)
	})

	t.Run("rejects unusable details", func(t *testing.T) {
		noAddress := chaletDetail("pl-4", "No address")
		noAddress.FormattedAddress = ""
		noPoint := chaletDetail("pl-5", "No point")
		noPoint.Point = nil

		tests := []struct {
			name   string
			detail locitypes.PlaceDetail
		}{
			{"missing place id", chaletDetail("", "Anonymous")},
			{"blank name", chaletDetail("pl-6", "   ")},
			{"missing address", noAddress},
			{"missing coordinates", noPoint},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				repo := newMemoryRepo()
				svc := newTestService(repo, new(MockCityResolver), noCities(), &providertest.Client{})

				place, err := svc.MergeOrCreate(ctx, tt.detail, "chalé", "Campos do Jordão")

				require.NoError(t, err)
				assert.Nil(t, place)
				assert.Empty(t, repo.places)
			})
		}
	})

	t.Run("duplicate insert race re-reads the winner", func(t *testing.T) {
		repo := newMemoryRepo()
		winner := newPlace(chaletDetail("pl-7", "Winner"), "chalé", uuid.NullUUID{})
		winner.ID = uuid.New()
		repo.raceWinner = &winner
		svc := newTestService(repo, new(MockCityResolver), noCities(), &providertest.Client{})

		place, err := svc.MergeOrCreate(ctx, chaletDetail("pl-7", "Loser"), "chalé", "Campos do Jordão")

		require.NoError(t, err)
		require.NotNil(t, place)
		assert.Equal(t, winner.ID, place.ID)
		assert.Equal(t, "Winner", place.Name)
	})

	t.Run("associates the nearest stored city", func(t *testing.T) {
		repo := newMemoryRepo()
		cities := new(MockCityFinder)
		cities.On("FindNearest", mock.Anything, locitypes.Point{Lat: -22.7247, Lon: -45.5842}, 5000.0).Return(camposDoJordao, nil)
		svc := newTestService(repo, new(MockCityResolver), cities, &providertest.Client{})

		place, err := svc.MergeOrCreate(ctx, chaletDetail("pl-8", "Near"), "chalé", "Campos do Jordão")

		require.NoError(t, err)
		assert.Equal(t, uuid.NullUUID{UUID: camposDoJordao.ID, Valid: true}, place.CityID)
		cities.AssertNotCalled(t, "FindByName", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to a city name match", func(t *testing.T) {
		repo := newMemoryRepo()
		cities := new(MockCityFinder)
		cities.On("FindNearest", mock.Anything, mock.Anything, 5000.0).Return(nil, errors.New("connection reset"))
		cities.On("FindByName", mock.Anything, "Campos do Jordão", "SP").Return(camposDoJordao, nil)
		svc := newTestService(repo, new(MockCityResolver), cities, &providertest.Client{})

		place, err := svc.MergeOrCreate(ctx, chaletDetail("pl-9", "Named"), "chalé", "Campos do Jordão, SP")

		require.NoError(t, err)
		assert.True(t, place.CityID.Valid)
		cities.AssertExpectations(t)
	})

	t.Run("backfills a missing city reference on merge", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.put(newPlace(chaletDetail("pl-10", "Orphan"), "chalé", uuid.NullUUID{}))
		cities := new(MockCityFinder)
		cities.On("FindNearest", mock.Anything, mock.Anything, 5000.0).Return(camposDoJordao, nil)
		svc := newTestService(repo, new(MockCityResolver), cities, &providertest.Client{})

		place, err := svc.MergeOrCreate(ctx, chaletDetail("pl-10", "Orphan"), "chalé", "Campos do Jordão")

		require.NoError(t, err)
		assert.Equal(t, camposDoJordao.ID, place.CityID.UUID)
		assert.Equal(t, 1, repo.updates)
	})
}

func TestServiceImpl_SearchByCategory(t *testing.T) {
	ctx := context.Background()

	candidates := []locitypes.PlaceCandidate{
		{PlaceID: "in-town", Name: "Chalé Capivari", FormattedAddress: "R. Djalma Forjaz, 93 - Capivari, Campos do Jordão - SP, 12460-000, Brazil", Point: &locitypes.Point{Lat: -22.7220, Lon: -45.5780}},
		{PlaceID: "other-state", Name: "Chalé Mineiro", FormattedAddress: "Estrada do Campista, Camanducaia - MG, 37650-000, Brazil", Point: &locitypes.Point{Lat: -22.7560, Lon: -45.8920}},
		{PlaceID: "", Name: "No id", FormattedAddress: "Campos do Jordão - SP, Brazil"},
		{PlaceID: "too-far", Name: "Chalé Santos", FormattedAddress: "Av. Ana Costa, Santos - SP, 11060-000, Brazil", Point: &locitypes.Point{Lat: -23.9608, Lon: -46.3331}},
		{PlaceID: "spelled-out", Name: "Chalé Alto", FormattedAddress: "Estrada Alto do Capivari, Campos do Jordão, São Paulo, Brazil", Point: &locitypes.Point{Lat: -22.7300, Lon: -45.5700}},
		{PlaceID: "spa-street", Name: "Chalé Spa", FormattedAddress: "Rua Spa Natural, Camanducaia, Brazil", Point: &locitypes.Point{Lat: -22.7400, Lon: -45.6000}},
	}

	detailFor := func(_ context.Context, placeID, _ string) (*locitypes.PlaceDetail, error) {
		for _, c := range candidates {
			if c.PlaceID == placeID {
				return &locitypes.PlaceDetail{PlaceID: c.PlaceID, Website: "https://" + placeID + ".example"}, nil
			}
		}
		return nil, locitypes.ErrNotFound
	}

	t.Run("fetches details only for candidates that pass the filters", func(t *testing.T) {
		repo := newMemoryRepo()
		resolver := new(MockCityResolver)
		resolver.On("ResolveByAddress", mock.Anything, locitypes.AddressQuery{Text: "Campos do Jordão"}).
			Return(&locitypes.CityResult{Source: locitypes.SourceCache, Found: true, City: camposDoJordao}, nil)

		var query string
		client := &providertest.Client{
			SearchByTextFunc: func(_ context.Context, q, lang string) ([]locitypes.PlaceCandidate, error) {
				query = q
				assert.Equal(t, "pt-BR", lang)
				return candidates, nil
			},
			FetchDetailsFunc: detailFor,
		}
		svc := newTestService(repo, resolver, noCities(), client)

		res, err := svc.SearchByCategory(ctx, "chalé", "Campos do Jordão")

		require.NoError(t, err)
		assert.Equal(t, "chalé in Campos do Jordão", query)
		assert.ElementsMatch(t, []string{"in-town", "spelled-out"}, client.DetailedPlaceIDs())
		assert.Equal(t, locitypes.SourceProvider, res.Source)
		require.Len(t, res.Items, 2)
		assert.Equal(t, "in-town", res.Items[0].PlaceID, "provider order is kept")
		assert.Equal(t, "spelled-out", res.Items[1].PlaceID)
		assert.Equal(t, "https://in-town.example", res.Items[0].Website)
		assert.Equal(t, []string{"chalé"}, res.Items[0].Tags)
	})

	t.Run("repeated place ids are fetched and returned once", func(t *testing.T) {
		resolver := new(MockCityResolver)
		resolver.On("ResolveByAddress", mock.Anything, mock.Anything).
			Return(&locitypes.CityResult{Source: locitypes.SourceCache, Found: true, City: camposDoJordao}, nil)
		client := &providertest.Client{
			SearchByTextFunc: func(context.Context, string, string) ([]locitypes.PlaceCandidate, error) {
				return []locitypes.PlaceCandidate{candidates[0], candidates[4], candidates[0]}, nil
			},
			FetchDetailsFunc: detailFor,
		}
		svc := newTestService(newMemoryRepo(), resolver, noCities(), client)

		res, err := svc.SearchByCategory(ctx, "chalé", "Campos do Jordão")

		require.NoError(t, err)
		assert.Equal(t, 2, client.Calls("FetchDetails"))
		require.Len(t, res.Items, 2)
		assert.Equal(t, "in-town", res.Items[0].PlaceID)
		assert.Equal(t, "spelled-out", res.Items[1].PlaceID)
		assert.Equal(t, 2, res.Total)
		assert.Zero(t, res.Limit, "search results are not paged")
	})

	t.Run("unresolved city only drops candidates without a place id", func(t *testing.T) {
		resolver := new(MockCityResolver)
		resolver.On("ResolveByAddress", mock.Anything, mock.Anything).Return(nil, locitypes.ErrProviderUnavailable)
		client := &providertest.Client{
			SearchByTextFunc: func(context.Context, string, string) ([]locitypes.PlaceCandidate, error) { return candidates, nil },
			FetchDetailsFunc: detailFor,
		}
		svc := newTestService(newMemoryRepo(), resolver, noCities(), client)

		res, err := svc.SearchByCategory(ctx, "chalé", "Campos do Jordão")

		require.NoError(t, err)
		assert.Len(t, client.DetailedPlaceIDs(), 5)
		assert.Len(t, res.Items, 5)
	})

	t.Run("failed detail fetches are skipped", func(t *testing.T) {
		resolver := new(MockCityResolver)
		resolver.On("ResolveByAddress", mock.Anything, mock.Anything).
			Return(&locitypes.CityResult{Source: locitypes.SourceCache, Found: true, City: camposDoJordao}, nil)
		client := &providertest.Client{
			SearchByTextFunc: func(context.Context, string, string) ([]locitypes.PlaceCandidate, error) { return candidates, nil },
			FetchDetailsFunc: func(ctx context.Context, placeID, lang string) (*locitypes.PlaceDetail, error) {
				if placeID == "in-town" {
					return nil, locitypes.ErrProviderUnavailable
				}
				return detailFor(ctx, placeID, lang)
			},
		}
		svc := newTestService(newMemoryRepo(), resolver, noCities(), client)

		res, err := svc.SearchByCategory(ctx, "chalé", "Campos do Jordão")

		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "spelled-out", res.Items[0].PlaceID)
	})

	t.Run("text search outage is returned", func(t *testing.T) {
		resolver := new(MockCityResolver)
		resolver.On("ResolveByAddress", mock.Anything, mock.Anything).Return(locitypes.CityNotFound(locitypes.SourceProvider), nil)
		client := &providertest.Client{
			SearchByTextFunc: func(context.Context, string, string) ([]locitypes.PlaceCandidate, error) {
				return nil, locitypes.ErrProviderUnavailable
			},
		}
		svc := newTestService(newMemoryRepo(), resolver, noCities(), client)

		_, err := svc.SearchByCategory(ctx, "chalé", "Campos do Jordão")

		assert.ErrorIs(t, err, locitypes.ErrProviderUnavailable)
		assert.Zero(t, client.Calls("FetchDetails"))
	})

	t.Run("blank input is rejected before any call", func(t *testing.T) {
		client := &providertest.Client{}
		svc := newTestService(newMemoryRepo(), new(MockCityResolver), noCities(), client)

		_, err := svc.SearchByCategory(ctx, " ", "Campos do Jordão")

		assert.ErrorIs(t, err, locitypes.ErrValidation)
		assert.Zero(t, client.TotalCalls())
	})
}

func storedIn(c *locitypes.City, placeID string, created time.Time) locitypes.Place {
	p := newPlace(chaletDetail(placeID, "Place "+placeID), "chalé", uuid.NullUUID{UUID: c.ID, Valid: true})
	p.CreatedAt = created
	return p
}

func citiesWithCampos() *MockCityFinder {
	cities := new(MockCityFinder)
	cities.On("FindByName", mock.Anything, "Campos do Jordão", mock.Anything).Return(camposDoJordao, nil)
	cities.On("FindByName", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	return cities
}

func TestServiceImpl_SoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	now := time.Now()
	repo.put(storedIn(camposDoJordao, "a", now))
	repo.put(storedIn(camposDoJordao, "b", now.Add(time.Minute)))
	svc := newTestService(repo, new(MockCityResolver), citiesWithCampos(), &providertest.Client{})

	n, err := svc.SoftDelete(ctx, "Campos do Jordão", "SP", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.SoftDelete(ctx, "Campos do Jordão", "SP", "a")
	assert.ErrorIs(t, err, locitypes.ErrNotFound, "deleting twice reports not found")

	listed, err := svc.ListSaved(ctx, locitypes.SavedPlacesQuery{City: "Campos do Jordão"})
	require.NoError(t, err)
	assert.Equal(t, 1, listed.Total)

	n, err = svc.SoftDelete(ctx, "Campos do Jordão", "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the remaining active place is deleted")

	n, err = svc.Restore(ctx, "Campos do Jordão", "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.Restore(ctx, "Campos do Jordão", "", "a")
	assert.ErrorIs(t, err, locitypes.ErrNotFound)

	_, err = svc.SoftDelete(ctx, "Atlantis", "", "a")
	assert.ErrorIs(t, err, locitypes.ErrNotFound)
}

func TestServiceImpl_ListSaved(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	now := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		repo.put(storedIn(camposDoJordao, id, now.Add(time.Duration(i)*time.Hour)))
	}
	svc := newTestService(repo, new(MockCityResolver), citiesWithCampos(), &providertest.Client{})

	t.Run("newest first with pagination", func(t *testing.T) {
		res, err := svc.ListSaved(ctx, locitypes.SavedPlacesQuery{City: "Campos do Jordão", Limit: 2})

		require.NoError(t, err)
		assert.Equal(t, locitypes.SourceCache, res.Source)
		assert.Equal(t, 3, res.Total)
		require.Len(t, res.Items, 2)
		assert.Equal(t, "new", res.Items[0].PlaceID)
		assert.Equal(t, "mid", res.Items[1].PlaceID)
	})

	t.Run("skip beyond the end", func(t *testing.T) {
		res, err := svc.ListSaved(ctx, locitypes.SavedPlacesQuery{City: "Campos do Jordão", Skip: 10})

		require.NoError(t, err)
		assert.Equal(t, 3, res.Total)
		assert.Empty(t, res.Items)
		assert.Equal(t, defaultSavedLimit, res.Limit)
	})

	t.Run("invalid queries", func(t *testing.T) {
		for _, q := range []locitypes.SavedPlacesQuery{
			{City: ""},
			{City: "Campos do Jordão", Limit: 101},
			{City: "Campos do Jordão", Skip: -1},
		} {
			_, err := svc.ListSaved(ctx, q)
			assert.ErrorIs(t, err, locitypes.ErrValidation)
		}
	})

	t.Run("unknown city", func(t *testing.T) {
		_, err := svc.ListSaved(ctx, locitypes.SavedPlacesQuery{City: "Atlantis"})
		assert.ErrorIs(t, err, locitypes.ErrNotFound)
	})
}

func TestServiceImpl_BackfillMissingDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("counts updates, unchanged places and errors", func(t *testing.T) {
		repo := newMemoryRepo()
		now := time.Now()
		for _, id := range []string{"a-fails", "b-fills", "c-nothing-new"} {
			repo.put(storedIn(camposDoJordao, id, now))
		}
		client := &providertest.Client{
			FetchDetailsFunc: func(_ context.Context, placeID, _ string) (*locitypes.PlaceDetail, error) {
				switch placeID {
				case "a-fails":
					return nil, locitypes.ErrProviderUnavailable
				case "b-fills":
					return &locitypes.PlaceDetail{PlaceID: placeID, Phone: "+55 12 3663-0000", Photos: []string{"ref-1"}}, nil
				default:
					return &locitypes.PlaceDetail{PlaceID: placeID}, nil
				}
			},
		}
		svc := newTestService(repo, new(MockCityResolver), citiesWithCampos(), client)
		svc.cfg.BackfillDelay = time.Millisecond

		report, err := svc.BackfillMissingDetails(ctx, "Campos do Jordão", "SP", 0)

		require.NoError(t, err)
		assert.Equal(t, locitypes.BackfillReport{Scanned: 3, Updated: 1, Unchanged: 1, Errors: 1}, *report)
		assert.Equal(t, "+55 12 3663-0000", repo.places["b-fills"].Phone)
		assert.Equal(t, []string{"ref-1"}, repo.places["b-fills"].Photos)
		assert.Equal(t, 3, client.Calls("FetchDetails"))
	})

	t.Run("update failures are counted", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.put(storedIn(camposDoJordao, "a", time.Now()))
		repo.updateErr = errors.New("connection reset")
		client := &providertest.Client{
			FetchDetailsFunc: func(_ context.Context, placeID, _ string) (*locitypes.PlaceDetail, error) {
				return &locitypes.PlaceDetail{PlaceID: placeID, Website: "https://a.example"}, nil
			},
		}
		svc := newTestService(repo, new(MockCityResolver), citiesWithCampos(), client)

		report, err := svc.BackfillMissingDetails(ctx, "Campos do Jordão", "", 5)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Errors)
		assert.Zero(t, report.Updated)
	})

	t.Run("stops between calls when the context is cancelled", func(t *testing.T) {
		repo := newMemoryRepo()
		for _, id := range []string{"a", "b"} {
			repo.put(storedIn(camposDoJordao, id, time.Now()))
		}
		cctx, cancel := context.WithCancel(ctx)
		client := &providertest.Client{
			FetchDetailsFunc: func(_ context.Context, placeID, _ string) (*locitypes.PlaceDetail, error) {
				cancel()
				return &locitypes.PlaceDetail{PlaceID: placeID}, nil
			},
		}
		svc := newTestService(repo, new(MockCityResolver), citiesWithCampos(), client)
		svc.cfg.BackfillDelay = time.Hour

		report, err := svc.BackfillMissingDetails(cctx, "Campos do Jordão", "", 10)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, client.Calls("FetchDetails"))
		assert.Equal(t, 1, report.Unchanged)
	})

	t.Run("limit out of range", func(t *testing.T) {
		svc := newTestService(newMemoryRepo(), new(MockCityResolver), citiesWithCampos(), &providertest.Client{})
		_, err := svc.BackfillMissingDetails(ctx, "Campos do Jordão", "", 1000)
		assert.ErrorIs(t, err, locitypes.ErrValidation)
	})
}

func TestApplyFillRules(t *testing.T) {
	openNow := true
	tests := []struct {
		name   string
		place  locitypes.Place
		detail locitypes.PlaceDetail
		want   []string
	}{
		{
			name:   "everything empty is filled in rule order",
			place:  locitypes.Place{},
			detail: locitypes.PlaceDetail{Photos: []string{"p"}, Reviews: []locitypes.Review{{AuthorName: "Ana"}}, Phone: "1", Website: "w", Hours: &locitypes.OpeningHours{OpenNow: &openNow, WeekdayText: []string{"Mon"}}, FormattedAddress: "f", AddressComponents: []locitypes.AddressComponent{{LongName: "SP"}}, BusinessStatus: "OPERATIONAL"},
			want:   []string{"photos", "reviews", "phone", "website", "hours", "formatted_address", "address_components", "business_status"},
		},
		{
			name:   "present values are kept",
			place:  locitypes.Place{Phone: "old", Website: "old"},
			detail: locitypes.PlaceDetail{Phone: "new", Website: "new"},
			want:   nil,
		},
		{
			name:   "hours without periods or text count as empty",
			place:  locitypes.Place{Hours: &locitypes.OpeningHours{OpenNow: &openNow}},
			detail: locitypes.PlaceDetail{Hours: &locitypes.OpeningHours{WeekdayText: []string{"Mon"}}},
			want:   []string{"hours"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.place
			assert.Equal(t, tt.want, applyFillRules(&p, tt.detail))
			if len(tt.want) == 0 {
				assert.Equal(t, tt.place, p)
			}
		})
	}
}

func TestFilterCandidates_KeepsFirstOfRepeatedPlaceIDs(t *testing.T) {
	got := filterCandidates([]locitypes.PlaceCandidate{
		{PlaceID: "a", Name: "first"},
		{PlaceID: "b"},
		{PlaceID: "a", Name: "second"},
	}, nil, "")

	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "b", got[1].PlaceID)
}

func TestFilterCandidates_RegionMatching(t *testing.T) {
	tests := []struct {
		region  string
		address string
		want    bool
	}{
		{"SP", "Campos do Jordão - SP, Brazil", true},
		{"sp", "Campos do Jordão - SP, Brazil", true},
		{"SP", "Campos do Jordão, São Paulo, Brazil", true},
		{"SP", "Rua Spa, Camanducaia - MG, Brazil", false},
		{"MG", "Camanducaia - MG, Brazil", true},
		{"MG", "Belo Horizonte, Minas Gerais, Brazil", false},
		{"", "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.region+" "+tt.address, func(t *testing.T) {
			got := filterCandidates([]locitypes.PlaceCandidate{{PlaceID: "x", FormattedAddress: tt.address}}, nil, tt.region)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}
