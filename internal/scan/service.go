package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/cache"
	"github.com/JakeFAU/gridrank/internal/geogrid"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/metrics"
)

// Config controls Service behavior.
type Config struct {
	Concurrency      int
	BatchMax         int
	ListDefaultLimit int
	ListMaxLimit     int
	// ArchivePrefix is the blob path prefix for archived scan snapshots.
	ArchivePrefix string
	// Topic receives grid_scan.completed events. Empty disables publishing.
	Topic string
}

// Deps are the collaborators of a Service. Details, Blobs and Publisher are
// optional.
type Deps struct {
	Geocoder  gridrank.Geocoder
	Searcher  gridrank.PlaceSearcher
	Details   gridrank.PlaceDetailer
	Store     gridrank.ScanStore
	Blobs     gridrank.BlobStore
	Publisher gridrank.Publisher
	Hasher    gridrank.Hasher
	IDs       gridrank.IDGenerator
	Clock     gridrank.Clock
	// Cache holds single-scan responses keyed by normalized parameters.
	Cache *cache.Cache[Result]
}

// Result is the response of a single-place scan.
type Result struct {
	Cached bool `json:"cached"`
	gridrank.GridScan
	SavedScanID *string `json:"savedScanId"`
	SaveError   string  `json:"saveError,omitempty"`
}

// Service orchestrates grid scans.
type Service struct {
	cfg     Config
	deps    Deps
	sampler *Sampler
	logger  *zap.Logger
}

// New validates deps and constructs a Service.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Service, error) {
	switch {
	case deps.Geocoder == nil:
		return nil, fmt.Errorf("geocoder is required")
	case deps.Searcher == nil:
		return nil, fmt.Errorf("searcher is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("scan store is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("grid scan cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 10
	}
	if cfg.ListDefaultLimit <= 0 {
		cfg.ListDefaultLimit = 120
	}
	if cfg.ListMaxLimit <= 0 {
		cfg.ListMaxLimit = 300
	}
	// a configured max always wins over the default page size
	cfg.ListDefaultLimit = min(cfg.ListDefaultLimit, cfg.ListMaxLimit)
	return &Service{
		cfg:     cfg,
		deps:    deps,
		sampler: NewSampler(deps.Searcher, cfg.Concurrency, logger),
		logger:  logger,
	}, nil
}

// Scan runs a single-place grid scan. Identical requests within the grid-scan
// TTL are answered from cache with Cached set and are never persisted again.
// When req.Save is set a persistence failure is reported in SaveError; the
// computed scan is still returned.
func (s *Service) Scan(ctx context.Context, req Request) (Result, error) {
	params, err := req.params()
	if err != nil {
		metrics.ObserveScan("single", "invalid")
		return Result{}, err
	}
	key := cacheKey(params)
	if hit, ok := s.deps.Cache.Get(key); ok {
		metrics.ObserveScan("single", "cached")
		hit.Cached = true
		return hit, nil
	}

	center, err := s.resolveCenter(ctx, params.Near)
	if err != nil {
		metrics.ObserveScan("single", "error")
		return Result{}, err
	}
	scan, err := s.compute(ctx, params, center)
	if err != nil {
		metrics.ObserveScan("single", "error")
		return Result{}, err
	}

	res := Result{GridScan: scan}
	if req.Save {
		id, err := s.persist(ctx, scan)
		if err != nil {
			s.logger.Error("persist scan failed", zap.String("place_id", params.PlaceID), zap.Error(err))
			res.SaveError = err.Error()
		} else {
			res.SavedScanID = &id
		}
	}

	cached := res
	cached.SaveError = ""
	s.deps.Cache.Set(key, cached)
	metrics.ObserveScan("single", "ok")
	return res, nil
}

// resolveCenter geocodes near. Without a center there is no grid, so every
// failure here is fatal for the request.
func (s *Service) resolveCenter(ctx context.Context, near string) (gridrank.GeoPoint, error) {
	center, err := s.deps.Geocoder.Geocode(ctx, near)
	if err != nil {
		if errors.Is(err, gridrank.ErrConfiguration) {
			return gridrank.GeoPoint{}, err
		}
		s.logger.Error("center resolution failed", zap.String("near", near), zap.Error(err))
		return gridrank.GeoPoint{}, fmt.Errorf("%w: %s: %w", gridrank.ErrGeocodeFailed, near, err)
	}
	if center == nil {
		s.logger.Error("center resolution returned no result", zap.String("near", near))
		return gridrank.GeoPoint{}, fmt.Errorf("%w: %s", gridrank.ErrGeocodeFailed, near)
	}
	return *center, nil
}

func (s *Service) compute(ctx context.Context, p gridrank.ScanParams, center gridrank.GeoPoint) (gridrank.GridScan, error) {
	points, err := geogrid.Build(center, p.GridSize, p.StepKm)
	if err != nil {
		return gridrank.GridScan{}, err
	}
	sampled, err := s.sampler.Sample(ctx, p, points)
	if err != nil {
		if errors.Is(err, gridrank.ErrConfiguration) || errors.Is(err, gridrank.ErrValidation) {
			return gridrank.GridScan{}, err
		}
		return gridrank.GridScan{}, fmt.Errorf("%w: %w", gridrank.ErrUpstream, err)
	}
	return gridrank.GridScan{
		Query:       p.Query,
		Near:        p.Near,
		PlaceID:     p.PlaceID,
		Center:      center,
		GridSize:    p.GridSize,
		StepKm:      p.StepKm,
		Radius:      p.Radius,
		Limit:       p.Limit,
		Summary:     geogrid.Summarize(sampled),
		Points:      sampled,
		Matrix:      geogrid.Matrix(sampled, p.GridSize),
		GeneratedAt: s.deps.Clock.Now(),
	}, nil
}

// BatchRequest scans several places for the same query and location.
type BatchRequest struct {
	Query    string
	Near     string
	PlaceIDs []string
	Options  Options
}

// BatchItem is the outcome for one place of a batch. Exactly one of Error or
// Summary is meaningful.
type BatchItem struct {
	PlaceID     string
	SavedScanID *string
	SaveError   string
	Summary     gridrank.RankSummary
	GridSize    int
	Error       string
}

// MarshalJSON renders failures as {placeId, error} and successes with a
// savedScanId that may be null.
func (i BatchItem) MarshalJSON() ([]byte, error) {
	if i.Error != "" {
		return json.Marshal(struct {
			PlaceID string `json:"placeId"`
			Error   string `json:"error"`
		}{i.PlaceID, i.Error})
	}
	return json.Marshal(struct {
		PlaceID     string               `json:"placeId"`
		SavedScanID *string              `json:"savedScanId"`
		SaveError   string               `json:"saveError,omitempty"`
		Summary     gridrank.RankSummary `json:"summary"`
		GridSize    int                  `json:"gridSize"`
	}{i.PlaceID, i.SavedScanID, i.SaveError, i.Summary, i.GridSize})
}

// BatchResult is the response of a batch scan.
type BatchResult struct {
	Query       string      `json:"query"`
	Near        string      `json:"near"`
	Requested   int         `json:"requested"`
	Processed   int         `json:"processed"`
	Results     []BatchItem `json:"results"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// Batch scans up to BatchMax places sequentially and always persists each
// successful scan. The center is resolved once; if that fails the whole batch
// fails. Afterwards one place's failure never affects the others.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	q := strings.TrimSpace(req.Query)
	near := strings.TrimSpace(req.Near)
	ids := make([]string, 0, len(req.PlaceIDs))
	for _, id := range req.PlaceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	switch {
	case q == "":
		return BatchResult{}, gridrank.Invalid("q is required")
	case near == "":
		return BatchResult{}, gridrank.Invalid("near is required")
	case len(ids) == 0:
		return BatchResult{}, gridrank.Invalid("placeIds is required")
	}
	requested := len(ids)
	if len(ids) > s.cfg.BatchMax {
		ids = ids[:s.cfg.BatchMax]
	}

	center, err := s.resolveCenter(ctx, near)
	if err != nil {
		metrics.ObserveScan("batch", "error")
		return BatchResult{}, err
	}

	opts := req.Options.Normalize()
	results := make([]BatchItem, 0, len(ids))
	for _, id := range ids {
		params := gridrank.ScanParams{
			Query: q, Near: near, PlaceID: id,
			GridSize: opts.GridSize, StepKm: opts.StepKm, Radius: opts.Radius, Limit: opts.Limit,
		}
		scan, err := s.compute(ctx, params, center)
		if err != nil {
			metrics.ObserveScan("batch", "error")
			s.logger.Warn("batch place failed", zap.String("place_id", id), zap.Error(err))
			results = append(results, BatchItem{PlaceID: id, Error: err.Error()})
			continue
		}
		item := BatchItem{PlaceID: id, Summary: scan.Summary, GridSize: scan.GridSize}
		if savedID, err := s.persist(ctx, scan); err != nil {
			s.logger.Error("persist scan failed", zap.String("place_id", id), zap.Error(err))
			item.SaveError = err.Error()
		} else {
			item.SavedScanID = &savedID
		}
		metrics.ObserveScan("batch", "ok")
		results = append(results, item)
	}

	return BatchResult{
		Query:       q,
		Near:        near,
		Requested:   requested,
		Processed:   len(ids),
		Results:     results,
		GeneratedAt: s.deps.Clock.Now(),
	}, nil
}

// List returns persisted scans newest first. limit is clamped to
// [1, ListMaxLimit]; zero means ListDefaultLimit.
func (s *Service) List(ctx context.Context, text string, limit int) ([]gridrank.ScanRecord, error) {
	if limit == 0 {
		limit = s.cfg.ListDefaultLimit
	}
	limit = max(1, min(s.cfg.ListMaxLimit, limit))
	records, err := s.deps.Store.ListScans(ctx, gridrank.ScanListFilter{Limit: limit, Text: text})
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return records, nil
}

// Get loads one persisted scan.
func (s *Service) Get(ctx context.Context, id string) (gridrank.ScanRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return gridrank.ScanRecord{}, gridrank.Invalid("id is required")
	}
	rec, err := s.deps.Store.GetScan(ctx, id)
	if err != nil {
		return gridrank.ScanRecord{}, fmt.Errorf("get scan: %w", err)
	}
	return rec, nil
}
