package gridrank

import (
	"context"
	"time"
)

// Geocoder resolves an address to a coordinate. A nil point with a nil error
// means the address could not be resolved.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeoPoint, error)
}

// PlaceSearcher runs text searches and returns an ordered, capped result page.
type PlaceSearcher interface {
	Search(ctx context.Context, req SearchRequest) ([]Place, error)
}

// PlaceDetailer looks up place details. A nil result means unknown place.
type PlaceDetailer interface {
	Details(ctx context.Context, placeID string) (*PlaceDetails, error)
}

// PageSpeedRunner runs PageSpeed Insights for a URL.
type PageSpeedRunner interface {
	Run(ctx context.Context, url, strategy string) PageSpeedSnapshot
}

// SiteAnalyzer inspects a website and derives platform and SEO signals.
type SiteAnalyzer interface {
	Analyze(ctx context.Context, website string) SiteIntel
}

// ScanStore persists grid scans.
type ScanStore interface {
	SaveScan(ctx context.Context, record ScanRecord) error
	ListScans(ctx context.Context, filter ScanListFilter) ([]ScanRecord, error)
	GetScan(ctx context.Context, id string) (ScanRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for archive naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan IDs.
type IDGenerator interface {
	NewID() (string, error)
}
