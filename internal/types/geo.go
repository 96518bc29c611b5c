package locitypes

import (
	"fmt"
	"math"
)

// Point is a WGS84 coordinate. Longitude is stored first in PostGIS.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// RoundedKey keys a point by its coordinates rounded to 3 decimal places (~110 m).
func (p Point) RoundedKey() string {
	return fmt.Sprintf("%.3f,%.3f", round3(p.Lat), round3(p.Lon))
}

// WKT renders the point as a PostGIS well-known-text literal.
func (p Point) WKT() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lon, p.Lat)
}

func round3(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		return 0 // avoid "-0.000"
	}
	return r
}

// Source tags where a response came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceProvider Source = "provider"
)

// ListResult is the paginated envelope returned by list operations.
type ListResult[T any] struct {
	Source Source `json:"source"`
	Items  []T    `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Skip   int    `json:"skip"`
}

// Candidate is a normalized, transient projection of a city or place used to
// dedupe and sort results from mixed sources.
type Candidate struct {
	Name       string  `json:"name"`
	Region     string  `json:"region,omitempty"`
	Country    string  `json:"country,omitempty"`
	Point      Point   `json:"point"`
	DistanceKm float64 `json:"distance_km"`
}
