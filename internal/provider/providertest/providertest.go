// Package providertest holds a scriptable provider.Client for service tests.
package providertest

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// Client implements provider.Client with function fields and per-method call
// counters. A nil function answers ErrNotFound (or an empty search).
type Client struct {
	ReverseGeocodeFunc func(ctx context.Context, lat, lon float64, lang string) (*locitypes.GeocodeResult, error)
	ForwardGeocodeFunc func(ctx context.Context, text, lang string) (*locitypes.GeocodeResult, error)
	SearchByTextFunc   func(ctx context.Context, query, lang string) ([]locitypes.PlaceCandidate, error)
	FetchDetailsFunc   func(ctx context.Context, placeID, lang string) (*locitypes.PlaceDetail, error)

	mu       sync.Mutex
	calls    map[string]int
	detailed []string
}

func (c *Client) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[method]++
}

// Calls returns how many times method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// TotalCalls returns the number of provider calls of any kind.
func (c *Client) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

// DetailedPlaceIDs returns the place ids passed to FetchDetails, in call order.
func (c *Client) DetailedPlaceIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.detailed...)
}

func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (*locitypes.GeocodeResult, error) {
	c.record("ReverseGeocode")
	if c.ReverseGeocodeFunc != nil {
		return c.ReverseGeocodeFunc(ctx, lat, lon, lang)
	}
	return nil, locitypes.ErrNotFound
}

func (c *Client) ForwardGeocode(ctx context.Context, text, lang string) (*locitypes.GeocodeResult, error) {
	c.record("ForwardGeocode")
	if c.ForwardGeocodeFunc != nil {
		return c.ForwardGeocodeFunc(ctx, text, lang)
	}
	return nil, locitypes.ErrNotFound
}

func (c *Client) SearchByText(ctx context.Context, query, lang string) ([]locitypes.PlaceCandidate, error) {
	c.record("SearchByText")
	if c.SearchByTextFunc != nil {
		return c.SearchByTextFunc(ctx, query, lang)
	}
	return []locitypes.PlaceCandidate{}, nil
}

func (c *Client) FetchDetails(ctx context.Context, placeID, lang string) (*locitypes.PlaceDetail, error) {
	c.record("FetchDetails")
	c.mu.Lock()
	c.detailed = append(c.detailed, placeID)
	c.mu.Unlock()
	if c.FetchDetailsFunc != nil {
		return c.FetchDetailsFunc(ctx, placeID, lang)
	}
	return nil, locitypes.ErrNotFound
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
