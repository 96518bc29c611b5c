// Package provider is the adapter to the external geocoding and places service.
package provider

import (
	"context"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

var _ Client = (*GoogleClient)(nil)

// Client is the narrow capability the resolvers consume. Geocode calls return
// locitypes.ErrNotFound when the provider has no usable answer and
// locitypes.ErrProviderUnavailable for transport, quota or API failures.
type Client interface {
	ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (*locitypes.GeocodeResult, error)
	ForwardGeocode(ctx context.Context, text, lang string) (*locitypes.GeocodeResult, error)
	SearchByText(ctx context.Context, query, lang string) ([]locitypes.PlaceCandidate, error)
	FetchDetails(ctx context.Context, placeID, lang string) (*locitypes.PlaceDetail, error)
}
