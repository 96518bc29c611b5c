package locitypes

import "errors"

// Domain specific errors shared by the resolvers, repositories and handlers.
var (
	ErrNotFound            = errors.New("requested item not found")
	ErrConflict            = errors.New("item already exists or conflict")
	ErrBadRequest          = errors.New("bad request")
	ErrValidation          = errors.New("validation failed")
	ErrProviderUnavailable = errors.New("places provider unavailable")
)
