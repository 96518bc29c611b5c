package provider

import "github.com/FACorreiaa/loci-proximity-api/internal/types"

// geocodeResponse is the Google Geocoding API response
type geocodeResponse struct {
	Results      []geocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type geocodeResult struct {
	AddressComponents []locitypes.AddressComponent `json:"address_components"`
	FormattedAddress  string                       `json:"formatted_address"`
	Geometry          geometry                     `json:"geometry"`
	PlaceID           string                       `json:"place_id"`
	Types             []string                     `json:"types"`
}

// textSearchResponse is the Google Places Text Search API response
type textSearchResponse struct {
	Results       []placeResult `json:"results"`
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// detailsResponse is the Google Place Details API response
type detailsResponse struct {
	Result       placeResult `json:"result"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// placeResult is shared by text search hits and detail payloads.
type placeResult struct {
	PlaceID                  string                       `json:"place_id"`
	Name                     string                       `json:"name"`
	FormattedAddress         string                       `json:"formatted_address,omitempty"`
	Vicinity                 string                       `json:"vicinity,omitempty"`
	Geometry                 *geometry                    `json:"geometry,omitempty"`
	Types                    []string                     `json:"types,omitempty"`
	Rating                   float64                      `json:"rating,omitempty"`
	UserRatingsTotal         int                          `json:"user_ratings_total,omitempty"`
	PriceLevel               int                          `json:"price_level,omitempty"`
	Photos                   []photo                      `json:"photos,omitempty"`
	Reviews                  []locitypes.Review           `json:"reviews,omitempty"`
	FormattedPhoneNumber     string                       `json:"formatted_phone_number,omitempty"`
	InternationalPhoneNumber string                       `json:"international_phone_number,omitempty"`
	Website                  string                       `json:"website,omitempty"`
	URL                      string                       `json:"url,omitempty"`
	OpeningHours             *locitypes.OpeningHours      `json:"opening_hours,omitempty"`
	AddressComponents        []locitypes.AddressComponent `json:"address_components,omitempty"`
	BusinessStatus           string                       `json:"business_status,omitempty"`
}

type geometry struct {
	Location *latLng `json:"location,omitempty"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type photo struct {
	PhotoReference string `json:"photo_reference"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

func (g *geometry) point() *locitypes.Point {
	if g == nil || g.Location == nil {
		return nil
	}
	return &locitypes.Point{Lat: g.Location.Lat, Lon: g.Location.Lng}
}

func (p placeResult) candidate() locitypes.PlaceCandidate {
	address := p.FormattedAddress
	if address == "" {
		address = p.Vicinity
	}
	return locitypes.PlaceCandidate{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		FormattedAddress: address,
		Point:            p.Geometry.point(),
		Rating:           p.Rating,
		RatingCount:      p.UserRatingsTotal,
		Tags:             p.Types,
		PriceTier:        p.PriceLevel,
	}
}

func (p placeResult) detail() locitypes.PlaceDetail {
	phone := p.FormattedPhoneNumber
	if phone == "" {
		phone = p.InternationalPhoneNumber
	}

	photos := make([]string, 0, len(p.Photos))
	for _, ph := range p.Photos {
		if ph.PhotoReference != "" {
			photos = append(photos, ph.PhotoReference)
		}
	}

	return locitypes.PlaceDetail{
		PlaceID:           p.PlaceID,
		Name:              p.Name,
		Address:           p.Vicinity,
		FormattedAddress:  p.FormattedAddress,
		Point:             p.Geometry.point(),
		Types:             p.Types,
		Rating:            p.Rating,
		RatingCount:       p.UserRatingsTotal,
		PriceTier:         p.PriceLevel,
		Photos:            photos,
		Reviews:           p.Reviews,
		Phone:             phone,
		Website:           p.Website,
		URL:               p.URL,
		Hours:             p.OpeningHours,
		AddressComponents: p.AddressComponents,
		BusinessStatus:    p.BusinessStatus,
	}
}

// toGeocode extracts the city-level fields of a geocoding result. The locality
// falls back to the second-level administrative area and then postal town.
func (r geocodeResult) toGeocode() (locitypes.GeocodeResult, bool) {
	var locality, adminLevel2, postalTown, region, country string
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "locality":
				locality = c.LongName
			case "administrative_area_level_2":
				adminLevel2 = c.LongName
			case "postal_town":
				postalTown = c.LongName
			case "administrative_area_level_1":
				region = c.ShortName
			case "country":
				country = c.LongName
			}
		}
	}

	name := locality
	if name == "" {
		name = adminLevel2
	}
	if name == "" {
		name = postalTown
	}

	p := r.Geometry.point()
	if name == "" || p == nil {
		return locitypes.GeocodeResult{}, false
	}

	return locitypes.GeocodeResult{
		Name:             name,
		Region:           region,
		Country:          country,
		FormattedAddress: r.FormattedAddress,
		Point:            *p,
	}, true
}
