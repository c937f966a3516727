// Package leadsearch enriches one text-search result page into prospecting
// leads: place details, website intel, popularity score and an optional
// PageSpeed snapshot per result.
package leadsearch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/fanout"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/scoring"
)

// Defaults and bounds of a lead search.
const (
	DefaultNear  = "Berlin, Deutschland"
	DefaultLimit = 10
	MaxLimit     = 20

	concurrency          = 3
	concurrencyPageSpeed = 2
	pageSpeedStrategy    = "mobile"
)

// Request is one lead search.
type Request struct {
	Query string
	// Near defaults to DefaultNear when empty.
	Near string
	// Limit is clamped to [1, MaxLimit]; zero means DefaultLimit.
	Limit     int
	PageSpeed bool
}

// Item is either an enriched result or, when enrichment panicked or was
// canceled, an error placeholder at the same position.
type Item struct {
	*gridrank.SearchResultItem
	Error string `json:"error,omitempty"`
}

// Response lists the enriched items in provider order.
type Response struct {
	Query string `json:"query"`
	Items []Item `json:"items"`
}

// Service runs lead searches.
type Service struct {
	searcher  gridrank.PlaceSearcher
	details   gridrank.PlaceDetailer
	sites     gridrank.SiteAnalyzer
	pagespeed gridrank.PageSpeedRunner
	logger    *zap.Logger
}

// New constructs a Service. pagespeed may be nil, which disables snapshots.
func New(
	searcher gridrank.PlaceSearcher,
	details gridrank.PlaceDetailer,
	sites gridrank.SiteAnalyzer,
	pagespeed gridrank.PageSpeedRunner,
	logger *zap.Logger,
) (*Service, error) {
	if searcher == nil || details == nil || sites == nil {
		return nil, fmt.Errorf("searcher, details and site analyzer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{searcher: searcher, details: details, sites: sites, pagespeed: pagespeed, logger: logger}, nil
}

// Search runs a text search for "<q> in <near>" without location bias and
// enriches every result. QueryRank is the position within this one response,
// not an organic search position.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return Response{}, gridrank.Invalid("q is required")
	}
	near := strings.TrimSpace(req.Near)
	if near == "" {
		near = DefaultNear
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = max(1, min(MaxLimit, limit))

	query := q + " in " + near
	places, err := s.searcher.Search(ctx, gridrank.SearchRequest{Query: query, Limit: limit})
	if err != nil {
		return Response{}, fmt.Errorf("lead search: %w", err)
	}

	withPageSpeed := req.PageSpeed && s.pagespeed != nil
	workers := concurrency
	if withPageSpeed {
		workers = concurrencyPageSpeed
	}
	results := fanout.Map(ctx, places, workers, func(ctx context.Context, idx int, p gridrank.Place) (*gridrank.SearchResultItem, error) {
		return s.enrich(ctx, query, idx, p, withPageSpeed), nil
	})

	items := make([]Item, len(results))
	for i, r := range results {
		if r.Err != nil {
			s.logger.Warn("lead enrichment failed", zap.Int("index", i), zap.Error(r.Err))
			items[i] = Item{Error: r.Err.Error()}
			continue
		}
		items[i] = Item{SearchResultItem: r.Value}
	}
	return Response{Query: query, Items: items}, nil
}

func (s *Service) enrich(ctx context.Context, query string, idx int, p gridrank.Place, withPageSpeed bool) *gridrank.SearchResultItem {
	var details *gridrank.PlaceDetails
	if p.PlaceID != "" {
		d, err := s.details.Details(ctx, p.PlaceID)
		if err != nil {
			s.logger.Debug("place details unavailable", zap.String("place_id", p.PlaceID), zap.Error(err))
		} else {
			details = d
		}
	}

	item := pickFields(p, details)
	item.Site = s.sites.Analyze(ctx, item.Website)
	item.QueryRank = idx + 1
	item.Query = query

	var rating float64
	if item.Rating != nil {
		rating = *item.Rating
	}
	var reviews int
	if item.ReviewCount != nil {
		reviews = *item.ReviewCount
	}
	item.Popularity = scoring.PopularityFor(rating, reviews, item.Site)

	if withPageSpeed && item.Site.HasWebsite {
		target := item.Site.URL
		if item.Site.SEO != nil && item.Site.SEO.FinalURL != "" {
			target = item.Site.SEO.FinalURL
		}
		if target != "" {
			snap := s.pagespeed.Run(ctx, target, pageSpeedStrategy)
			item.PageSpeed = &snap
		}
	}
	return item
}

// pickFields merges a search result with its details. Search result values
// win; details fill the gaps.
func pickFields(p gridrank.Place, d *gridrank.PlaceDetails) *gridrank.SearchResultItem {
	if d == nil {
		d = &gridrank.PlaceDetails{}
	}
	item := &gridrank.SearchResultItem{
		PlaceID:       firstNonEmpty(p.PlaceID, d.PlaceID),
		Name:          firstNonEmpty(p.Name, d.Name),
		Address:       firstNonEmpty(p.Address, d.Address),
		Types:         p.Types,
		Website:       d.Website,
		Domain:        gridrank.NormalizeDomain(d.Website),
		Phone:         d.Phone,
		GoogleMapsURL: d.URL,
	}
	if len(item.Types) == 0 {
		item.Types = d.Types
	}
	if item.Types == nil {
		item.Types = []string{}
	}
	if rating := firstPositive(p.Rating, d.Rating); rating > 0 {
		item.Rating = &rating
	}
	if reviews := firstPositive(p.ReviewCount, d.ReviewCount); reviews > 0 {
		item.ReviewCount = &reviews
	}
	if p.Location != nil {
		lat, lng := p.Location.Lat, p.Location.Lng
		item.Lat, item.Lng = &lat, &lng
	}
	return item
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive[T int | float64](values ...T) T {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
