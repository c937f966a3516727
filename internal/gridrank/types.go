package gridrank

import "time"

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GridPoint is one lattice cell of a grid scan. X and Y are offsets from the
// center in [-half, +half]. Rank stays nil until sampled, and remains nil when
// the target was absent from the sampled result page.
type GridPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
	GeoPoint
	Rank *int `json:"rank"`
}

// RankSummary aggregates the ranked points of a scan. Best, Worst and Avg are
// nil when no point was ranked.
type RankSummary struct {
	Found int      `json:"found"`
	Total int      `json:"total"`
	Best  *int     `json:"best"`
	Worst *int     `json:"worst"`
	Avg   *float64 `json:"avg"`
}

// ScanParams are the normalized inputs of a single grid scan.
type ScanParams struct {
	Query    string  `json:"q"`
	Near     string  `json:"near"`
	PlaceID  string  `json:"placeId"`
	GridSize int     `json:"oddGrid"`
	StepKm   float64 `json:"stepKm"`
	Radius   int     `json:"radius"`
	Limit    int     `json:"limit"`
}

// GridScan is the immutable outcome of sampling a place's rank across a grid.
// Rank here is the position inside one provider text-search page, not an
// organic search engine position.
type GridScan struct {
	Query       string      `json:"query"`
	Near        string      `json:"near"`
	PlaceID     string      `json:"placeId"`
	Center      GeoPoint    `json:"center"`
	GridSize    int         `json:"gridSize"`
	StepKm      float64     `json:"stepKm"`
	Radius      int         `json:"radius"`
	Limit       int         `json:"limit"`
	Summary     RankSummary `json:"summary"`
	Points      []GridPoint `json:"points"`
	Matrix      [][]*int    `json:"matrix"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// ScanRecord is a persisted GridScan together with the place metadata looked up
// at save time.
type ScanRecord struct {
	ID        string
	PlaceName string
	Website   string
	Domain    string
	Scan      GridScan
	CreatedAt time.Time
}

// ScanListFilter narrows ListScans results. Text is matched case-insensitively
// against place name, domain, query and near.
type ScanListFilter struct {
	Limit int
	Text  string
}

// SearchRequest is a text search, optionally biased toward a location.
type SearchRequest struct {
	Query    string
	Location *GeoPoint
	Radius   int
	Limit    int
}

// Place is one entry of a text-search result page.
type Place struct {
	PlaceID     string
	Name        string
	Address     string
	Rating      float64
	ReviewCount int
	Location    *GeoPoint
	Types       []string
}

// PlaceDetails holds the detail fields used for enrichment and persistence.
type PlaceDetails struct {
	PlaceID     string
	Name        string
	Address     string
	Phone       string
	Website     string
	Rating      float64
	ReviewCount int
	URL         string
	Types       []string
}

// PageSpeedScores are Lighthouse category scores scaled to 0..100.
type PageSpeedScores struct {
	Performance   *int `json:"performance"`
	SEO           *int `json:"seo"`
	Accessibility *int `json:"accessibility"`
	BestPractices *int `json:"bestPractices"`
}

// PageSpeedMetrics are raw Lighthouse audit values.
type PageSpeedMetrics struct {
	LCPMs *float64 `json:"lcpMs"`
	FCPMs *float64 `json:"fcpMs"`
	CLS   *float64 `json:"cls"`
	TBTMs *float64 `json:"tbtMs"`
	SIMs  *float64 `json:"siMs"`
}

// PageSpeedSnapshot is one PageSpeed Insights run. Failures are carried in
// Error instead of being returned, so they can be cached like successes.
type PageSpeedSnapshot struct {
	URL       string            `json:"url"`
	Strategy  string            `json:"strategy"`
	FetchedAt *time.Time        `json:"fetchedAt,omitempty"`
	Scores    *PageSpeedScores  `json:"scores,omitempty"`
	Metrics   *PageSpeedMetrics `json:"metrics,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Platform is the detected site builder or CMS.
type Platform struct {
	Name       string   `json:"name"`
	Confidence string   `json:"confidence"`
	Signals    []string `json:"signals"`
}

// SEOSignals are on-page signals extracted from a single page fetch.
type SEOSignals struct {
	FinalURL        string `json:"finalUrl"`
	ResponseTimeMs  int64  `json:"responseTimeMs"`
	ContentLength   int    `json:"contentLength"`
	Title           string `json:"title,omitempty"`
	MetaDescription string `json:"metaDescription,omitempty"`
	Robots          string `json:"robots"`
	RobotsNoindex   bool   `json:"robotsNoindex"`
	HasH1           bool   `json:"hasH1"`
	HasOpenGraph    bool   `json:"hasOpenGraph"`
	HasSchemaOrg    bool   `json:"hasSchemaOrg"`
	HasSitemapLink  bool   `json:"hasSitemapLink"`
	HTTPS           bool   `json:"https"`
	UsedHeadless    bool   `json:"usedHeadless,omitempty"`
}

// Score is an explainable 0..100 heuristic score. Exactly one of Grade or Tier
// is set depending on the scoring function.
type Score struct {
	Score   int      `json:"score"`
	Grade   string   `json:"grade,omitempty"`
	Tier    string   `json:"tier,omitempty"`
	Reasons []string `json:"reasons"`
}

// SiteIntel is the cached website analysis for one URL.
type SiteIntel struct {
	HasWebsite bool        `json:"hasWebsite"`
	URL        string      `json:"url,omitempty"`
	Platform   *Platform   `json:"platform"`
	HTTPStatus int         `json:"httpStatus,omitempty"`
	SEO        *SEOSignals `json:"seo"`
	Visibility *Score      `json:"visibility,omitempty"`
	Error      string      `json:"error,omitempty"`
	CheckedAt  time.Time   `json:"checkedAt"`
}

// ResponseTimeMs returns the measured latency or zero when the site was not
// fetched successfully.
func (s SiteIntel) ResponseTimeMs() int64 {
	if s.SEO == nil {
		return 0
	}
	return s.SEO.ResponseTimeMs
}

// VisibilityScore returns the visibility score or zero when none was computed.
func (s SiteIntel) VisibilityScore() int {
	if s.Visibility == nil {
		return 0
	}
	return s.Visibility.Score
}

// SearchResultItem is the enriched view of one text-search result.
type SearchResultItem struct {
	PlaceID       string             `json:"placeId"`
	Name          string             `json:"name"`
	Address       string             `json:"address"`
	Rating        *float64           `json:"rating"`
	ReviewCount   *int               `json:"userRatingsTotal"`
	Types         []string           `json:"types"`
	Lat           *float64           `json:"lat"`
	Lng           *float64           `json:"lng"`
	Website       string             `json:"website,omitempty"`
	Domain        string             `json:"domain,omitempty"`
	Phone         string             `json:"phone,omitempty"`
	GoogleMapsURL string             `json:"googleMapsUrl,omitempty"`
	Site          SiteIntel          `json:"site"`
	QueryRank     int                `json:"googleRank"`
	Query         string             `json:"googleQuery"`
	Popularity    Score              `json:"popularity"`
	PageSpeed     *PageSpeedSnapshot `json:"pagespeed,omitempty"`
}

// ScanCompleted is published after a scan has been persisted.
type ScanCompleted struct {
	ScanID      string    `json:"scan_id"`
	PlaceID     string    `json:"place_id"`
	Query       string    `json:"query"`
	Near        string    `json:"near"`
	Found       int       `json:"found"`
	Total       int       `json:"total"`
	ArchiveURI  string    `json:"archive_uri,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// EventName identifies the event in message attributes.
func (ScanCompleted) EventName() string { return "grid_scan.completed" }
