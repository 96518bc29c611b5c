package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
	"github.com/FACorreiaa/loci-proximity-api/pkg/observability"
)

const (
	defaultBaseURL  = "https://maps.googleapis.com/maps/api"
	maxErrorBody    = 1024
	detailsFields   = "place_id,name,formatted_address,vicinity,geometry,types,rating,user_ratings_total,price_level,photos,reviews,formatted_phone_number,international_phone_number,website,url,opening_hours,address_components,business_status"
	redactedAPIKey  = "***REDACTED***"
	defaultLanguage = "en"
)

// Config configures the Google Geocoding/Places adapter.
type Config struct {
	APIKey            string
	BaseURL           string
	Language          string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	CacheTTL          time.Duration
}

// GoogleClient talks to the Google Geocoding and Places web services.
type GoogleClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewGoogleClient builds a rate limited client. Geocode answers are memoized
// for CacheTTL; a zero TTL disables the memo.
func NewGoogleClient(cfg Config, logger *slog.Logger) *GoogleClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	var memo *cache.Cache
	if cfg.CacheTTL > 0 {
		memo = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	return &GoogleClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		cache:      memo,
		logger:     logger,
	}
}

// ReverseGeocode resolves a coordinate to its city.
func (c *GoogleClient) ReverseGeocode(ctx context.Context, lat, lon float64, lang string) (*locitypes.GeocodeResult, error) {
	ctx, span := otel.Tracer("PlacesProvider").Start(ctx, "ReverseGeocode", trace.WithAttributes(
		attribute.Float64("latitude", lat),
		attribute.Float64("longitude", lon),
	))
	defer span.End()

	lang = c.language(lang)
	key := "rev:" + locitypes.Point{Lat: lat, Lon: lon}.RoundedKey() + ":" + lang

	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lon))
	params.Set("result_type", "locality|administrative_area_level_2|postal_town")

	result, err := c.geocode(ctx, key, params, lang)
	observability.RecordProviderCall("reverse_geocode", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reverse geocode failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "reverse geocode resolved")
	return result, nil
}

// ForwardGeocode resolves free text such as "Campos do Jordão, SP" to a city.
func (c *GoogleClient) ForwardGeocode(ctx context.Context, text, lang string) (*locitypes.GeocodeResult, error) {
	ctx, span := otel.Tracer("PlacesProvider").Start(ctx, "ForwardGeocode", trace.WithAttributes(
		attribute.String("address", text),
	))
	defer span.End()

	lang = c.language(lang)
	key := "fwd:" + strings.ToLower(strings.TrimSpace(text)) + ":" + lang

	params := url.Values{}
	params.Set("address", text)

	result, err := c.geocode(ctx, key, params, lang)
	observability.RecordProviderCall("forward_geocode", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward geocode failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "forward geocode resolved")
	return result, nil
}

func (c *GoogleClient) geocode(ctx context.Context, key string, params url.Values, lang string) (*locitypes.GeocodeResult, error) {
	if c.cache != nil {
		if cached, found := c.cache.Get(key); found {
			res := cached.(locitypes.GeocodeResult)
			return &res, nil
		}
	}

	params.Set("language", lang)

	var resp geocodeResponse
	if err := c.get(ctx, "/geocode/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusError(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}

	for _, r := range resp.Results {
		res, ok := r.toGeocode()
		if !ok {
			continue
		}
		if c.cache != nil {
			c.cache.Set(key, res, cache.DefaultExpiration)
		}
		return &res, nil
	}

	return nil, fmt.Errorf("no usable locality in geocode response: %w", locitypes.ErrNotFound)
}

// SearchByText runs a Places text search. An empty answer is not an error.
func (c *GoogleClient) SearchByText(ctx context.Context, query, lang string) ([]locitypes.PlaceCandidate, error) {
	ctx, span := otel.Tracer("PlacesProvider").Start(ctx, "SearchByText", trace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()

	l := c.logger.With(slog.String("method", "SearchByText"))

	params := url.Values{}
	params.Set("query", query)
	params.Set("language", c.language(lang))

	var resp textSearchResponse
	err := c.get(ctx, "/place/textsearch/json", params, &resp)
	if err == nil {
		err = statusError(resp.Status, resp.ErrorMessage)
	}
	observability.RecordProviderCall("text_search", err)
	if err != nil {
		if errors.Is(err, locitypes.ErrNotFound) {
			span.SetStatus(codes.Ok, "no results")
			return []locitypes.PlaceCandidate{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "text search failed")
		return nil, err
	}

	candidates := make([]locitypes.PlaceCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		candidates = append(candidates, r.candidate())
	}

	l.DebugContext(ctx, "Text search completed",
		slog.String("query", query),
		slog.Int("results_count", len(candidates)))
	span.SetAttributes(attribute.Int("results.count", len(candidates)))
	span.SetStatus(codes.Ok, "text search completed")

	return candidates, nil
}

// FetchDetails returns the full detail payload of one place.
func (c *GoogleClient) FetchDetails(ctx context.Context, placeID, lang string) (*locitypes.PlaceDetail, error) {
	ctx, span := otel.Tracer("PlacesProvider").Start(ctx, "FetchDetails", trace.WithAttributes(
		attribute.String("place.id", placeID),
	))
	defer span.End()

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailsFields)
	params.Set("language", c.language(lang))

	var resp detailsResponse
	err := c.get(ctx, "/place/details/json", params, &resp)
	if err == nil {
		err = statusError(resp.Status, resp.ErrorMessage)
	}
	observability.RecordProviderCall("fetch_details", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch details failed")
		return nil, err
	}

	detail := resp.Result.detail()
	if detail.PlaceID == "" {
		detail.PlaceID = placeID
	}

	span.SetStatus(codes.Ok, "details fetched")
	return &detail, nil
}

// get waits on the rate limiter, issues the request and decodes the JSON body into out.
func (c *GoogleClient) get(ctx context.Context, path string, params url.Values, out any) error {
	l := c.logger.With(slog.String("method", "get"), slog.String("path", path))

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", locitypes.ErrProviderUnavailable, err)
	}

	params.Set("key", c.cfg.APIKey)
	fullURL := c.cfg.BaseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		l.WarnContext(ctx, "Provider request failed",
			slog.String("url", redactKey(fullURL, c.cfg.APIKey)),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", locitypes.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	l.DebugContext(ctx, "Provider request completed",
		slog.String("url", redactKey(fullURL, c.cfg.APIKey)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: provider returned status %d: %s", locitypes.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode provider response: %w", locitypes.ErrProviderUnavailable, err)
	}

	return nil
}

func (c *GoogleClient) language(lang string) string {
	if lang == "" {
		return c.cfg.Language
	}
	return lang
}

// statusError maps the API status field onto the domain errors.
func statusError(status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return fmt.Errorf("provider status %s: %w", status, locitypes.ErrNotFound)
	default:
		if message != "" {
			return fmt.Errorf("%w: provider status %s: %s", locitypes.ErrProviderUnavailable, status, message)
		}
		return fmt.Errorf("%w: provider status %s", locitypes.ErrProviderUnavailable, status)
	}
}

func redactKey(rawURL, apiKey string) string {
	if apiKey == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, url.QueryEscape(apiKey), redactedAPIKey)
}
