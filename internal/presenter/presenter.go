// Package presenter renders HTTP responses and decodes request parameters for
// the location and place handlers.
package presenter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CountResponse is the body of lifecycle operations.
type CountResponse struct {
	Success bool  `json:"success"`
	Count   int64 `json:"count"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, locitypes.ErrValidation), errors.Is(err, locitypes.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, locitypes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, locitypes.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, locitypes.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the {success:false, message} body for err. Internal
// causes are logged and replaced by a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		message = "internal server error"
	case http.StatusBadGateway:
		logger.WarnContext(r.Context(), "provider unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		message = "places provider unavailable, try again later"
	}
	WriteJSON(w, status, ErrorResponse{Success: false, Message: message})
}
