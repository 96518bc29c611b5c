package discover

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/loci-proximity-api/internal/domain/city"
	"github.com/FACorreiaa/loci-proximity-api/internal/presenter"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

const defaultRadiusKm = 30.0

// Handler serves the /v1/locations routes.
type Handler struct {
	svc    Service
	cities city.Service
	logger *slog.Logger
}

// NewHandler wires a location handler.
func NewHandler(svc Service, cities city.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		cities: cities,
		logger: logger,
	}
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/current", h.GetCurrent)
	r.Get("/neighbors", h.GetNeighbors)
	r.Get("/overview", h.GetOverview)
	r.Get("/resolve", h.Resolve)
}

// GetCurrent returns the city at ?lat&lon.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	q := presenter.NewQuery(r)
	point := q.Point()
	if err := q.Err(); err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.cities.ResolveCurrent(r.Context(), point.Lat, point.Lon)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, res)
}

// GetNeighbors returns the cities around ?lat&lon within ?radius_km.
func (h *Handler) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	nq, err := neighborQuery(r)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.cities.ResolveNeighbors(r.Context(), nq)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, res)
}

// GetOverview returns the current city and its neighbors in one response.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	nq, err := neighborQuery(r)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Overview(r.Context(), nq)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, res)
}

// Resolve resolves ?text to a city, optionally validated against ?lat&lon.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := presenter.NewQuery(r)
	aq := locitypes.AddressQuery{
		Text:               q.String("text"),
		ValidatePoint:      q.OptionalPoint(),
		ValidationRadiusKm: q.Float("validation_radius_km", 0),
	}
	if err := q.Err(); err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.cities.ResolveByAddress(r.Context(), aq)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, res)
}

func neighborQuery(r *http.Request) (locitypes.NeighborQuery, error) {
	q := presenter.NewQuery(r)
	nq := locitypes.NeighborQuery{
		Point:    q.Point(),
		RadiusKm: q.Float("radius_km", defaultRadiusKm),
		Limit:    q.Int("limit", 0),
		Skip:     q.Int("skip", 0),
	}
	return nq, q.Err()
}
