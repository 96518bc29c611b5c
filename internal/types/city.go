package locitypes

import (
	"time"

	"github.com/google/uuid"
)

// City matches the cities table structure.
type City struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Region    string    `json:"region,omitempty"`
	Country   string    `json:"country,omitempty"`
	Point     Point     `json:"point"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate projects the city relative to an origin.
func (c City) Candidate(distanceKm float64) Candidate {
	return Candidate{
		Name:       c.Name,
		Region:     c.Region,
		Country:    c.Country,
		Point:      c.Point,
		DistanceKm: distanceKm,
	}
}

// CityResult is the single-record envelope for city resolutions. Found is
// false for the not-found sentinel, in which case City is nil.
type CityResult struct {
	Source Source `json:"source"`
	Found  bool   `json:"found"`
	*City
	FormattedAddress string `json:"formatted_address,omitempty"`
}

// CityNotFound returns the sentinel result for an unresolvable location.
func CityNotFound(source Source) *CityResult {
	return &CityResult{Source: source, Found: false}
}

// NeighborQuery is the input of a neighbor search.
type NeighborQuery struct {
	Point    Point   `json:"point"`
	RadiusKm float64 `json:"radius_km" validate:"gt=0,lte=200"`
	Limit    int     `json:"limit" validate:"gte=0,lte=100"`
	Skip     int     `json:"skip" validate:"gte=0"`
}

// AddressQuery is the input of a forward resolution by free text.
type AddressQuery struct {
	Text               string  `json:"text" validate:"required"`
	ValidatePoint      *Point  `json:"validate_point,omitempty"`
	ValidationRadiusKm float64 `json:"validation_radius_km" validate:"gte=0,lte=200"`
}

// LocationOverview bundles the current city and its neighbors.
type LocationOverview struct {
	Current   *CityResult           `json:"current"`
	Neighbors *ListResult[Candidate] `json:"neighbors"`
}
