package locitypes

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LifecycleState is the two-state lifecycle of a stored place.
type LifecycleState int

const (
	LifecycleActive LifecycleState = iota
	LifecycleDeleted
)

// Lifecycle is either Active or Deleted{at}. The zero value is Active.
type Lifecycle struct {
	state     LifecycleState
	deletedAt time.Time
}

// Active returns the active lifecycle.
func Active() Lifecycle {
	return Lifecycle{state: LifecycleActive}
}

// DeletedAt returns a deleted lifecycle stamped at t.
func DeletedAt(t time.Time) Lifecycle {
	return Lifecycle{state: LifecycleDeleted, deletedAt: t}
}

// LifecycleFromNullable maps a nullable deleted_at column onto a lifecycle.
func LifecycleFromNullable(at *time.Time) Lifecycle {
	if at == nil {
		return Active()
	}
	return DeletedAt(*at)
}

func (l Lifecycle) State() LifecycleState { return l.state }

func (l Lifecycle) IsDeleted() bool { return l.state == LifecycleDeleted }

// DeletedTime returns the deletion time and whether the lifecycle is Deleted.
func (l Lifecycle) DeletedTime() (time.Time, bool) {
	return l.deletedAt, l.state == LifecycleDeleted
}

func (l Lifecycle) MarshalJSON() ([]byte, error) {
	if l.state == LifecycleDeleted {
		return json.Marshal(struct {
			State     string    `json:"state"`
			DeletedAt time.Time `json:"deleted_at"`
		}{"deleted", l.deletedAt})
	}
	return json.Marshal(struct {
		State string `json:"state"`
	}{"active"})
}

// OpeningHours mirrors the provider's opening_hours structure.
type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	Periods     []Period `json:"periods,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

func (h *OpeningHours) IsEmpty() bool {
	return h == nil || (len(h.Periods) == 0 && len(h.WeekdayText) == 0)
}

type Period struct {
	Open  DayTime  `json:"open"`
	Close *DayTime `json:"close,omitempty"`
}

type DayTime struct {
	Day  int    `json:"day"`
	Time string `json:"time"`
}

type Review struct {
	AuthorName   string  `json:"author_name"`
	Rating       float64 `json:"rating"`
	Text         string  `json:"text"`
	RelativeTime string  `json:"relative_time_description,omitempty"`
	Time         int64   `json:"time"`
	Language     string  `json:"language,omitempty"`
}

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Place is a stored point of interest. PlaceID is the provider identifier and
// is unique across the places table.
type Place struct {
	ID                uuid.UUID          `json:"id"`
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name"`
	Address           string             `json:"address,omitempty"`
	FormattedAddress  string             `json:"formatted_address,omitempty"`
	Point             Point              `json:"point"`
	Tags              []string           `json:"tags"`
	Rating            float64            `json:"rating"`
	RatingCount       int                `json:"rating_count"`
	PriceTier         int                `json:"price_tier"`
	Photos            []string           `json:"photos"`
	Phone             string             `json:"phone,omitempty"`
	Website           string             `json:"website,omitempty"`
	URL               string             `json:"url,omitempty"`
	Hours             *OpeningHours      `json:"hours,omitempty"`
	Reviews           []Review           `json:"reviews"`
	AddressComponents []AddressComponent `json:"address_components,omitempty"`
	BusinessStatus    string             `json:"business_status,omitempty"`
	CityID            uuid.NullUUID      `json:"city_id"`
	Lifecycle         Lifecycle          `json:"lifecycle"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// PlaceCandidate is one hit of a provider text search.
type PlaceCandidate struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Point            *Point   `json:"point,omitempty"`
	Rating           float64  `json:"rating"`
	RatingCount      int      `json:"rating_count"`
	Tags             []string `json:"tags"`
	PriceTier        int      `json:"price_tier"`
}

// PlaceDetail is the full provider payload for one place, used by the merge
// policy. Point is nil when the provider returned no geometry.
type PlaceDetail struct {
	PlaceID           string
	Name              string
	Address           string
	FormattedAddress  string
	Point             *Point
	Types             []string
	Rating            float64
	RatingCount       int
	PriceTier         int
	Photos            []string
	Reviews           []Review
	Phone             string
	Website           string
	URL               string
	Hours             *OpeningHours
	AddressComponents []AddressComponent
	BusinessStatus    string
}

// WithCandidate fills identity fields missing from a detail payload using the
// search hit it was fetched for.
func (d PlaceDetail) WithCandidate(c PlaceCandidate) PlaceDetail {
	if d.PlaceID == "" {
		d.PlaceID = c.PlaceID
	}
	if d.Name == "" {
		d.Name = c.Name
	}
	if d.FormattedAddress == "" {
		d.FormattedAddress = c.FormattedAddress
	}
	if d.Point == nil {
		d.Point = c.Point
	}
	if len(d.Types) == 0 {
		d.Types = c.Tags
	}
	if d.Rating == 0 {
		d.Rating = c.Rating
	}
	if d.RatingCount == 0 {
		d.RatingCount = c.RatingCount
	}
	if d.PriceTier == 0 {
		d.PriceTier = c.PriceTier
	}
	return d
}

// GeocodeResult is the provider answer to a forward or reverse geocode.
type GeocodeResult struct {
	Name             string `json:"name"`
	Region           string `json:"region,omitempty"`
	Country          string `json:"country,omitempty"`
	FormattedAddress string `json:"formatted_address,omitempty"`
	Point            Point  `json:"point"`
}

// SavedPlacesQuery scopes a listing of stored places to one city.
type SavedPlacesQuery struct {
	City   string `json:"city" validate:"required"`
	Region string `json:"region,omitempty" validate:"omitempty,max=64"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100"`
	Skip   int    `json:"skip" validate:"gte=0"`
	Name   string `json:"name,omitempty"`
}

// PlaceListFilter is the repository-level filter of a city listing.
type PlaceListFilter struct {
	Limit int
	Skip  int
	Name  string
}

// BackfillReport summarizes a backfill batch.
type BackfillReport struct {
	Scanned   int `json:"scanned"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}
