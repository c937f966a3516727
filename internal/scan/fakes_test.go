package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gridrank/internal/cache"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/gridrank/internal/publisher/memory"
	"github.com/JakeFAU/gridrank/internal/storage/memory"
)

var berlin = gridrank.GeoPoint{Lat: 52.52, Lng: 13.405}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeGeocoder struct {
	point *gridrank.GeoPoint
	err   error
	calls atomic.Int32
}

func (g *fakeGeocoder) Geocode(context.Context, string) (*gridrank.GeoPoint, error) {
	g.calls.Add(1)
	return g.point, g.err
}

type searchFunc func(ctx context.Context, req gridrank.SearchRequest) ([]gridrank.Place, error)

type fakeSearcher struct {
	fn    searchFunc
	mu    sync.Mutex
	reqs  []gridrank.SearchRequest
	calls atomic.Int32
}

func (s *fakeSearcher) Search(ctx context.Context, req gridrank.SearchRequest) ([]gridrank.Place, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return s.fn(ctx, req)
}

// northernRowSearcher ranks target first on the northern row, second at the
// center and nowhere else.
func northernRowSearcher(target string) *fakeSearcher {
	return &fakeSearcher{fn: func(_ context.Context, req gridrank.SearchRequest) ([]gridrank.Place, error) {
		switch {
		case *req.Location == berlin:
			return []gridrank.Place{{PlaceID: "other"}, {PlaceID: target}}, nil
		case req.Location.Lat > berlin.Lat:
			return []gridrank.Place{{PlaceID: target}}, nil
		default:
			return nil, nil
		}
	}}
}

type fakeDetails struct {
	details *gridrank.PlaceDetails
	err     error
}

func (d fakeDetails) Details(context.Context, string) (*gridrank.PlaceDetails, error) {
	return d.details, d.err
}

type seqIDs struct{ n atomic.Int32 }

func (g *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("scan-%d", g.n.Add(1)), nil
}

type failingStore struct {
	*memory.ScanStore
}

func (failingStore) SaveScan(context.Context, gridrank.ScanRecord) error {
	return fmt.Errorf("%w: insert scan: %w", gridrank.ErrPersistence, errors.New("connection refused"))
}

type fixture struct {
	svc       *Service
	geocoder  *fakeGeocoder
	searcher  *fakeSearcher
	store     *memory.ScanStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	now       time.Time
}

type fixtureOption func(*Config, *Deps)

func newFixture(t *testing.T, searcher *fakeSearcher, opts ...fixtureOption) *fixture {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now}
	scans, err := cache.New[Result](cache.Config{Name: "grid_scan", TTL: time.Hour, Clock: clock})
	require.NoError(t, err)

	f := &fixture{
		geocoder:  &fakeGeocoder{point: &berlin},
		searcher:  searcher,
		store:     memory.NewScanStore(),
		blobs:     memory.NewBlobStore(),
		publisher: pubmemory.New(),
		now:       now,
	}
	cfg := Config{Concurrency: 2, BatchMax: 10, ListDefaultLimit: 120, ListMaxLimit: 300,
		ArchivePrefix: "grid-scans", Topic: "grid-scans"}
	deps := Deps{
		Geocoder: f.geocoder,
		Searcher: searcher,
		Details: fakeDetails{details: &gridrank.PlaceDetails{
			Name: "Cafe Central", Website: "https://www.Cafe-Central.de/menu",
		}},
		Store:     f.store,
		Blobs:     f.blobs,
		Publisher: f.publisher,
		Hasher:    sha256.New(),
		IDs:       &seqIDs{},
		Clock:     clock,
		Cache:     scans,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	f.svc, err = New(cfg, deps, nil)
	require.NoError(t, err)
	return f
}
