package scan

import (
	"encoding/json"
	"strings"

	"github.com/JakeFAU/gridrank/internal/geogrid"
	"github.com/JakeFAU/gridrank/internal/gridrank"
)

// Grid option bounds. Zero values in Options fall back to the defaults.
const (
	DefaultGridSize = 3
	DefaultStepKm   = 1.5
	MinStepKm       = 0.5
	MaxStepKm       = 5.0
	DefaultRadius   = 5000
	MinRadius       = 1000
	MaxRadius       = 50000
	DefaultLimit    = 20
	MinLimit        = 10
	MaxLimit        = 20
)

// Options shape the sampled grid.
type Options struct {
	GridSize int
	StepKm   float64
	Radius   int
	Limit    int
}

// Normalize fills defaults and clamps every option into its accepted range.
// Even grid sizes are coerced down to the next odd size.
func (o Options) Normalize() Options {
	out := Options{
		GridSize: DefaultGridSize,
		StepKm:   DefaultStepKm,
		Radius:   DefaultRadius,
		Limit:    DefaultLimit,
	}
	if o.GridSize != 0 {
		out.GridSize = geogrid.OddGridSize(o.GridSize)
	}
	if o.StepKm != 0 {
		out.StepKm = max(MinStepKm, min(MaxStepKm, o.StepKm))
	}
	if o.Radius != 0 {
		out.Radius = max(MinRadius, min(MaxRadius, o.Radius))
	}
	if o.Limit != 0 {
		out.Limit = max(MinLimit, min(MaxLimit, o.Limit))
	}
	return out
}

// Request is a single-place scan.
type Request struct {
	Query   string
	Near    string
	PlaceID string
	Options Options
	// Save persists the scan when it was not served from cache.
	Save bool
}

// params validates the request and returns normalized scan parameters.
func (r Request) params() (gridrank.ScanParams, error) {
	q := strings.TrimSpace(r.Query)
	near := strings.TrimSpace(r.Near)
	placeID := strings.TrimSpace(r.PlaceID)
	switch {
	case q == "":
		return gridrank.ScanParams{}, gridrank.Invalid("q is required")
	case near == "":
		return gridrank.ScanParams{}, gridrank.Invalid("near is required")
	case placeID == "":
		return gridrank.ScanParams{}, gridrank.Invalid("placeId is required")
	}
	opts := r.Options.Normalize()
	return gridrank.ScanParams{
		Query:    q,
		Near:     near,
		PlaceID:  placeID,
		GridSize: opts.GridSize,
		StepKm:   opts.StepKm,
		Radius:   opts.Radius,
		Limit:    opts.Limit,
	}, nil
}

// cacheKey serializes the normalized parameters so that semantically equal
// requests share an entry.
func cacheKey(p gridrank.ScanParams) string {
	b, _ := json.Marshal(p) // flat struct of strings and numbers
	return string(b)
}

// searchQuery is the text query sent for every grid point.
func searchQuery(p gridrank.ScanParams) string {
	return p.Query + " in " + p.Near
}
