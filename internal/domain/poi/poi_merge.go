package poi

import (
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// fillRule copies one field from a provider detail onto a stored place when
// the place has no value for it and the detail does.
type fillRule struct {
	field    string
	isEmpty  func(p *locitypes.Place) bool
	hasValue func(d locitypes.PlaceDetail) bool
	fill     func(p *locitypes.Place, d locitypes.PlaceDetail)
}

// fillRules is applied in order. Fields not listed here are never touched by
// a merge.
var fillRules = []fillRule{
	{
		field:    "photos",
		isEmpty:  func(p *locitypes.Place) bool { return len(p.Photos) == 0 },
		hasValue: func(d locitypes.PlaceDetail) bool { return len(d.Photos) > 0 },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.Photos = d.Photos },
	},
	{
		field:    "reviews",
		isEmpty:  func(p *locitypes.Place) bool { return len(p.Reviews) == 0 },
		hasValue: func(d locitypes.PlaceDetail) bool { return len(d.Reviews) > 0 },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.Reviews = d.Reviews },
	},
	{
		field:    "phone",
		isEmpty:  func(p *locitypes.Place) bool { return p.Phone == "" },
		hasValue: func(d locitypes.PlaceDetail) bool { return d.Phone != "" },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.Phone = d.Phone },
	},
	{
		field:    "website",
		isEmpty:  func(p *locitypes.Place) bool { return p.Website == "" },
		hasValue: func(d locitypes.PlaceDetail) bool { return d.Website != "" },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.Website = d.Website },
	},
	{
		field:    "hours",
		isEmpty:  func(p *locitypes.Place) bool { return p.Hours.IsEmpty() },
		hasValue: func(d locitypes.PlaceDetail) bool { return !d.Hours.IsEmpty() },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.Hours = d.Hours },
	},
	{
		field:    "formatted_address",
		isEmpty:  func(p *locitypes.Place) bool { return p.FormattedAddress == "" },
		hasValue: func(d locitypes.PlaceDetail) bool { return d.FormattedAddress != "" },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.FormattedAddress = d.FormattedAddress },
	},
	{
		field:    "address_components",
		isEmpty:  func(p *locitypes.Place) bool { return len(p.AddressComponents) == 0 },
		hasValue: func(d locitypes.PlaceDetail) bool { return len(d.AddressComponents) > 0 },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.AddressComponents = d.AddressComponents },
	},
	{
		field:    "business_status",
		isEmpty:  func(p *locitypes.Place) bool { return p.BusinessStatus == "" },
		hasValue: func(d locitypes.PlaceDetail) bool { return d.BusinessStatus != "" },
		fill:     func(p *locitypes.Place, d locitypes.PlaceDetail) { p.BusinessStatus = d.BusinessStatus },
	},
}

// applyFillRules fills the empty fields of p from d and returns the names of
// the fields it changed.
func applyFillRules(p *locitypes.Place, d locitypes.PlaceDetail) []string {
	var filled []string
	for _, rule := range fillRules {
		if rule.isEmpty(p) && rule.hasValue(d) {
			rule.fill(p, d)
			filled = append(filled, rule.field)
		}
	}
	return filled
}

// rejectReason explains why a detail cannot be stored, or returns "".
// Details without a place id cannot be deduplicated later.
func rejectReason(d locitypes.PlaceDetail) string {
	switch {
	case d.PlaceID == "":
		return "missing place id"
	case strings.TrimSpace(d.Name) == "":
		return "missing name"
	case d.Address == "" && d.FormattedAddress == "":
		return "missing address"
	case d.Point == nil:
		return "missing coordinates"
	}
	return ""
}

// newPlace builds the record created for a first-seen detail.
func newPlace(d locitypes.PlaceDetail, category string, cityID uuid.NullUUID) locitypes.Place {
	tags := []string{}
	if category != "" {
		tags = append(tags, category)
	}

	return locitypes.Place{
		PlaceID:           d.PlaceID,
		Name:              strings.TrimSpace(d.Name),
		Address:           d.Address,
		FormattedAddress:  d.FormattedAddress,
		Point:             *d.Point,
		Tags:              tags,
		Rating:            d.Rating,
		RatingCount:       d.RatingCount,
		PriceTier:         d.PriceTier,
		Photos:            nonNil(d.Photos),
		Phone:             d.Phone,
		Website:           d.Website,
		URL:               d.URL,
		Hours:             d.Hours,
		Reviews:           nonNil(d.Reviews),
		AddressComponents: d.AddressComponents,
		BusinessStatus:    d.BusinessStatus,
		CityID:            cityID,
		Lifecycle:         locitypes.Active(),
	}
}
