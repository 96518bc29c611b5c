package poi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// normalizeCategory lowercases and trims a category term so it can be used as a tag.
func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// searchQuery builds the provider text query for a category inside a city.
func searchQuery(category, cityText string) string {
	return fmt.Sprintf("%s in %s", strings.TrimSpace(category), strings.TrimSpace(cityText))
}

// appendTag adds tag to tags when it is non-empty and not already present.
func appendTag(tags []string, tag string) ([]string, bool) {
	if tag == "" || slices.Contains(tags, tag) {
		return tags, false
	}
	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)
	return append(out, tag), true
}

func placeIDs(places []locitypes.Place) []string {
	ids := make([]string, 0, len(places))
	for _, p := range places {
		ids = append(ids, p.PlaceID)
	}
	return ids
}
