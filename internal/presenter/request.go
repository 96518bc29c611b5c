package presenter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/FACorreiaa/loci-proximity-api/internal/types"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Query reads typed query parameters and collects the first parse error.
type Query struct {
	r   *http.Request
	err error
}

func NewQuery(r *http.Request) *Query {
	return &Query{r: r}
}

func (q *Query) String(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

// Float returns the named parameter, or def when it is absent.
func (q *Query) Float(name string, def float64) float64 {
	raw := q.String(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		q.fail(name, raw)
		return def
	}
	return v
}

// RequiredFloat is Float for parameters without a default.
func (q *Query) RequiredFloat(name string) float64 {
	if q.String(name) == "" && q.err == nil {
		q.err = fmt.Errorf("%w: %s is required", locitypes.ErrValidation, name)
		return 0
	}
	return q.Float(name, 0)
}

func (q *Query) Int(name string, def int) int {
	raw := q.String(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(name, raw)
		return def
	}
	return v
}

// Point reads lat and lon.
func (q *Query) Point() locitypes.Point {
	return locitypes.Point{Lat: q.RequiredFloat("lat"), Lon: q.RequiredFloat("lon")}
}

// OptionalPoint reads lat and lon when both are present.
func (q *Query) OptionalPoint() *locitypes.Point {
	if q.String("lat") == "" && q.String("lon") == "" {
		return nil
	}
	p := q.Point()
	return &p
}

func (q *Query) Err() error {
	return q.err
}

func (q *Query) fail(name, raw string) {
	if q.err == nil {
		q.err = fmt.Errorf("%w: %s=%q is not a number", locitypes.ErrValidation, name, raw)
	}
}

// DecodeJSON decodes a size-limited JSON body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", locitypes.ErrBadRequest, err)
	}
	return nil
}
