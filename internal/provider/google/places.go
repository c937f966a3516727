// Package google adapts the Google Maps Platform (Geocoding, Places Text
// Search, Place Details) and PageSpeed Insights APIs to the gridrank ports.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"github.com/JakeFAU/gridrank/internal/cache"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/metrics"
)

// Upstream names used for rate limiting and metrics.
const (
	UpstreamGeocode   = "geocode"
	UpstreamSearch    = "places.search"
	UpstreamDetails   = "places.details"
	UpstreamPageSpeed = "pagespeed"
)

// Radius and page limits accepted by the text search endpoint.
const (
	MinRadius   = 1000
	MaxRadius   = 50000
	MaxPageSize = 20
)

var detailFields = []maps.PlaceDetailsFieldMask{
	"place_id",
	"name",
	"formatted_address",
	"formatted_phone_number",
	"website",
	"rating",
	"user_ratings_total",
	"types",
	"url",
}

// Limiter gates calls per upstream.
type Limiter interface {
	Wait(ctx context.Context, upstream string) error
}

// Config controls the Places client.
type Config struct {
	APIKey string
	// BaseURL overrides https://maps.googleapis.com, mostly for tests.
	BaseURL        string
	GeocodeTimeout time.Duration
	SearchTimeout  time.Duration
	DetailsTimeout time.Duration
	HTTPClient     *http.Client
}

// Caches are the shared cache instances used by Places.
type Caches struct {
	Geocode *cache.Cache[*gridrank.GeoPoint]
	Details *cache.Cache[*gridrank.PlaceDetails]
}

// Places implements gridrank.Geocoder, gridrank.PlaceSearcher and
// gridrank.PlaceDetailer on top of the Maps client.
type Places struct {
	client  *maps.Client
	cfg     Config
	caches  Caches
	limiter Limiter
	logger  *zap.Logger
}

// NewPlaces builds a Places adapter. An empty API key is accepted; every call
// then fails with a configuration error so the service can still start.
func NewPlaces(cfg Config, caches Caches, limiter Limiter, logger *zap.Logger) (*Places, error) {
	if caches.Geocode == nil || caches.Details == nil {
		return nil, fmt.Errorf("google places: geocode and details caches are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Places{cfg: cfg, caches: caches, limiter: limiter, logger: logger}
	if cfg.APIKey == "" {
		return p, nil
	}

	opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, maps.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	p.client = client
	return p, nil
}

// Configured reports whether an API key was supplied.
func (p *Places) Configured() bool {
	return p.client != nil
}

func (p *Places) ensureConfigured() error {
	if p.client == nil {
		return gridrank.Misconfigured("google places api key is not configured")
	}
	return nil
}

func (p *Places) wait(ctx context.Context, upstream string) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx, upstream); err != nil {
		return fmt.Errorf("%w: %s: %w", gridrank.ErrUpstream, upstream, err)
	}
	return nil
}

// Geocode resolves address to a coordinate. Results are cached by the trimmed,
// lower-cased address, including addresses that resolved to nothing.
func (p *Places) Geocode(ctx context.Context, address string) (*gridrank.GeoPoint, error) {
	value := strings.TrimSpace(address)
	if value == "" {
		return nil, nil
	}
	if err := p.ensureConfigured(); err != nil {
		return nil, err
	}
	key := strings.ToLower(value)
	return p.caches.Geocode.GetOrLoad(ctx, key, func(ctx context.Context) (*gridrank.GeoPoint, error) {
		if err := p.wait(ctx, UpstreamGeocode); err != nil {
			return nil, err
		}
		callCtx, cancel := withTimeout(ctx, p.cfg.GeocodeTimeout)
		defer cancel()

		results, err := p.client.Geocode(callCtx, &maps.GeocodingRequest{Address: value})
		if err != nil {
			metrics.ObserveUpstream(UpstreamGeocode, "error")
			return nil, fmt.Errorf("%w: geocode %q: %w", gridrank.ErrUpstream, value, err)
		}
		if len(results) == 0 {
			metrics.ObserveUpstream(UpstreamGeocode, "empty")
			return nil, nil
		}
		metrics.ObserveUpstream(UpstreamGeocode, "ok")
		loc := results[0].Geometry.Location
		return &gridrank.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}, nil
	})
}

// Search runs a text search. When a location is given the search is biased
// toward it with the radius clamped to [MinRadius, MaxRadius]. The returned
// page holds at most clamp(limit, 1, MaxPageSize) places in provider order.
func (p *Places) Search(ctx context.Context, req gridrank.SearchRequest) ([]gridrank.Place, error) {
	if err := p.ensureConfigured(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, gridrank.Invalid("search query is required")
	}
	if err := p.wait(ctx, UpstreamSearch); err != nil {
		return nil, err
	}

	mreq := &maps.TextSearchRequest{Query: req.Query}
	if req.Location != nil {
		mreq.Location = &maps.LatLng{Lat: req.Location.Lat, Lng: req.Location.Lng}
		mreq.Radius = uint(ClampRadius(req.Radius))
	}

	callCtx, cancel := withTimeout(ctx, p.cfg.SearchTimeout)
	defer cancel()
	resp, err := p.client.TextSearch(callCtx, mreq)
	if err != nil {
		metrics.ObserveUpstream(UpstreamSearch, "error")
		return nil, fmt.Errorf("%w: text search: %w", gridrank.ErrUpstream, err)
	}
	metrics.ObserveUpstream(UpstreamSearch, "ok")

	limit := ClampPageSize(req.Limit)
	results := resp.Results
	if len(results) > limit {
		results = results[:limit]
	}
	places := make([]gridrank.Place, 0, len(results))
	for _, r := range results {
		place := gridrank.Place{
			PlaceID:     r.PlaceID,
			Name:        r.Name,
			Address:     r.FormattedAddress,
			Rating:      float64(r.Rating),
			ReviewCount: r.UserRatingsTotal,
			Types:       r.Types,
		}
		if loc := r.Geometry.Location; loc.Lat != 0 || loc.Lng != 0 {
			place.Location = &gridrank.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}
		}
		places = append(places, place)
	}
	return places, nil
}

// Details looks up place details, cached by trimmed place ID. Unknown places
// yield nil and are cached as such.
func (p *Places) Details(ctx context.Context, placeID string) (*gridrank.PlaceDetails, error) {
	id := strings.TrimSpace(placeID)
	if id == "" {
		return nil, nil
	}
	if err := p.ensureConfigured(); err != nil {
		return nil, err
	}
	return p.caches.Details.GetOrLoad(ctx, id, func(ctx context.Context) (*gridrank.PlaceDetails, error) {
		if err := p.wait(ctx, UpstreamDetails); err != nil {
			return nil, err
		}
		callCtx, cancel := withTimeout(ctx, p.cfg.DetailsTimeout)
		defer cancel()

		r, err := p.client.PlaceDetails(callCtx, &maps.PlaceDetailsRequest{PlaceID: id, Fields: detailFields})
		if err != nil {
			if isUnknownPlace(err) {
				metrics.ObserveUpstream(UpstreamDetails, "empty")
				return nil, nil
			}
			metrics.ObserveUpstream(UpstreamDetails, "error")
			return nil, fmt.Errorf("%w: place details %q: %w", gridrank.ErrUpstream, id, err)
		}
		metrics.ObserveUpstream(UpstreamDetails, "ok")
		pid := r.PlaceID
		if pid == "" {
			pid = id
		}
		return &gridrank.PlaceDetails{
			PlaceID:     pid,
			Name:        r.Name,
			Address:     r.FormattedAddress,
			Phone:       r.FormattedPhoneNumber,
			Website:     r.Website,
			Rating:      float64(r.Rating),
			ReviewCount: r.UserRatingsTotal,
			URL:         r.URL,
			Types:       r.Types,
		}, nil
	})
}

// isUnknownPlace matches the API statuses returned for stale or malformed IDs.
func isUnknownPlace(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NOT_FOUND") || strings.Contains(msg, "INVALID_REQUEST")
}

// withTimeout bounds one upstream call; a zero timeout falls back to 25s.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 25 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// ClampRadius bounds a search radius in meters; zero means the default 5000.
func ClampRadius(radius int) int {
	if radius == 0 {
		radius = 5000
	}
	return max(MinRadius, min(MaxRadius, radius))
}

// ClampPageSize bounds a result page size to [1, MaxPageSize].
func ClampPageSize(limit int) int {
	return max(1, min(MaxPageSize, limit))
}
