// Package merger combines results coming from the local store and the
// provider: union by key, distance ordering and offset pagination.
package merger

import (
	"sort"
	"strings"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// Merge returns the union of a and b keyed by key. The first occurrence of a
// key wins, so callers control precedence through argument order.
func Merge[T any](a, b []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]T, 0, len(a)+len(b))

	for _, list := range [][]T{a, b} {
		for _, item := range list {
			k := key(item)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, item)
		}
	}

	return out
}

// Paginate returns the window [skip, skip+limit) of items and the total size.
// A skip beyond the end yields an empty, non-nil slice.
func Paginate[T any](items []T, limit, skip int) ([]T, int) {
	total := len(items)
	if skip < 0 {
		skip = 0
	}
	if skip >= total {
		return []T{}, total
	}

	end := total
	if limit > 0 && skip+limit < total {
		end = skip + limit
	}

	return items[skip:end], total
}

// CandidateKey is the identity of a candidate: lowercased name, region and country.
func CandidateKey(c locitypes.Candidate) string {
	return strings.ToLower(strings.TrimSpace(c.Name)) + "|" +
		strings.ToLower(strings.TrimSpace(c.Region)) + "|" +
		strings.ToLower(strings.TrimSpace(c.Country))
}

// SortByDistance orders candidates nearest first. Ties keep their input order.
func SortByDistance(candidates []locitypes.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})
}
