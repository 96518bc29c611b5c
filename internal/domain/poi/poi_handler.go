package poi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/loci-proximity-api/internal/presenter"
	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// Handler serves the /v1/places routes.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// lifecycleRequest names one stored place, or every place of the city when
// PlaceID is empty.
type lifecycleRequest struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	PlaceID string `json:"place_id"`
}

type backfillRequest struct {
	City   string `json:"city"`
	Region string `json:"region"`
	Limit  int    `json:"limit"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/search", h.Search)
	r.Get("/", h.ListSaved)
	r.Delete("/", h.SoftDelete)
	r.Post("/restore", h.Restore)
	r.Post("/backfill", h.Backfill)
}

// Search runs a category search in ?city.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := presenter.NewQuery(r)
	res, err := h.svc.SearchByCategory(r.Context(), q.String("category"), q.String("city"))
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) ListSaved(w http.ResponseWriter, r *http.Request) {
	q := presenter.NewQuery(r)
	sq := locitypes.SavedPlacesQuery{
		City:   q.String("city"),
		Region: q.String("region"),
		Limit:  q.Int("limit", 0),
		Skip:   q.Int("skip", 0),
		Name:   q.String("name"),
	}
	if err := q.Err(); err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.ListSaved(r.Context(), sq)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, res)
}

// SoftDelete hides ?place_id, or every active place of ?city.
func (h *Handler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	q := presenter.NewQuery(r)
	n, err := h.svc.SoftDelete(r.Context(), q.String("city"), q.String("region"), q.String("place_id"))
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, presenter.CountResponse{Success: true, Count: n})
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := presenter.DecodeJSON(w, r, &req); err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}

	n, err := h.svc.Restore(r.Context(), req.City, req.Region, req.PlaceID)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, presenter.CountResponse{Success: true, Count: n})
}

// Backfill enriches up to limit stored places with missing details.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := presenter.DecodeJSON(w, r, &req); err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}

	report, err := h.svc.BackfillMissingDetails(r.Context(), req.City, req.Region, req.Limit)
	if err != nil {
		presenter.WriteError(w, r, h.logger, err)
		return
	}
	presenter.WriteJSON(w, http.StatusOK, report)
}
