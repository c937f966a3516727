package scan

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/fanout"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/metrics"
)

// DefaultConcurrency bounds in-flight searches per scan.
const DefaultConcurrency = 2

// Sampler locates a target place in location-biased search results.
type Sampler struct {
	searcher    gridrank.PlaceSearcher
	concurrency int
	logger      *zap.Logger
}

// NewSampler builds a Sampler. Non-positive concurrency uses DefaultConcurrency.
func NewSampler(searcher gridrank.PlaceSearcher, concurrency int, logger *zap.Logger) *Sampler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{searcher: searcher, concurrency: concurrency, logger: logger}
}

// Rank searches around point and returns the 1-based position of placeID in the
// result page, or nil when it is absent. Only transport-level failures are
// returned as errors.
func (s *Sampler) Rank(ctx context.Context, query string, point gridrank.GeoPoint, placeID string, radius, limit int) (*int, error) {
	loc := point
	places, err := s.searcher.Search(ctx, gridrank.SearchRequest{
		Query:    query,
		Location: &loc,
		Radius:   radius,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	for i, p := range places {
		if p.PlaceID == placeID {
			rank := i + 1
			return &rank, nil
		}
	}
	return nil, nil
}

// Sample ranks every point and returns a copy of points with Rank filled in.
// A failed point keeps a nil rank. The returned error is non-nil only when
// every point failed, since a scan without a single successful sample says
// nothing about visibility.
func (s *Sampler) Sample(ctx context.Context, p gridrank.ScanParams, points []gridrank.GridPoint) ([]gridrank.GridPoint, error) {
	query := searchQuery(p)
	results := fanout.Map(ctx, points, s.concurrency,
		func(ctx context.Context, _ int, pt gridrank.GridPoint) (*int, error) {
			return s.Rank(ctx, query, pt.GeoPoint, p.PlaceID, p.Radius, p.Limit)
		})

	out := make([]gridrank.GridPoint, len(points))
	var (
		failed   int
		firstErr error
	)
	for i, res := range results {
		out[i] = points[i]
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			metrics.ObserveSample("error")
			s.logger.Warn("grid point sample failed",
				zap.String("place_id", p.PlaceID),
				zap.Int("point", i),
				zap.Int("x", points[i].X),
				zap.Int("y", points[i].Y),
				zap.Error(res.Err),
			)
			continue
		}
		out[i].Rank = res.Value
		if res.Value == nil {
			metrics.ObserveSample("unranked")
		} else {
			metrics.ObserveSample("ranked")
		}
	}
	if len(points) > 0 && failed == len(points) {
		return nil, fmt.Errorf("all %d grid samples failed: %w", failed, firstErr)
	}
	return out, nil
}
