// Package siteintel inspects a business website: one probe fetch, an optional
// headless re-render for client-side apps, SEO signal extraction, platform
// detection and the visibility score. Results are cached per URL, failures
// included.
package siteintel

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/cache"
	"github.com/JakeFAU/gridrank/internal/fetcher"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/metrics"
	"github.com/JakeFAU/gridrank/internal/scoring"
)

const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Promoter decides whether a probe response needs a headless render.
type Promoter interface {
	ShouldPromote(resp fetcher.Response) bool
}

// Analyzer implements gridrank.SiteAnalyzer.
type Analyzer struct {
	probe    fetcher.Fetcher
	renderer fetcher.Fetcher
	promoter Promoter
	cache    *cache.Cache[gridrank.SiteIntel]
	clock    gridrank.Clock
	logger   *zap.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithRenderer enables headless promotion of pages the promoter flags.
func WithRenderer(renderer fetcher.Fetcher, promoter Promoter) Option {
	return func(a *Analyzer) {
		a.renderer = renderer
		a.promoter = promoter
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New builds an Analyzer around a probe fetcher and the website intel cache.
func New(probe fetcher.Fetcher, c *cache.Cache[gridrank.SiteIntel], clock gridrank.Clock, opts ...Option) (*Analyzer, error) {
	if probe == nil || c == nil || clock == nil {
		return nil, fmt.Errorf("siteintel: probe, cache and clock are required")
	}
	a := &Analyzer{probe: probe, cache: c, clock: clock, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze returns website intel for website. An empty website yields
// HasWebsite=false without any fetch.
func (a *Analyzer) Analyze(ctx context.Context, website string) gridrank.SiteIntel {
	target := gridrank.NormalizeWebsiteURL(website)
	if target == "" {
		return gridrank.SiteIntel{HasWebsite: false, CheckedAt: a.clock.Now()}
	}
	if intel, ok := a.cache.Get(target); ok {
		return intel
	}
	intel := a.inspect(ctx, target)
	metrics.ObserveSiteFetch(intel.Platform.Name, intel.HTTPStatus)
	return a.cache.Set(target, intel)
}

func (a *Analyzer) inspect(ctx context.Context, target string) gridrank.SiteIntel {
	req := fetcher.Request{URL: target, Headers: http.Header{"Accept": {acceptHeader}}}
	resp, err := a.probe.Fetch(ctx, req)
	if err != nil {
		return a.failed(target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 500 {
		intel := a.failed(target, fmt.Errorf("unexpected status %d", resp.StatusCode))
		intel.HTTPStatus = resp.StatusCode
		return intel
	}

	page := resp
	if a.renderer != nil && a.promoter != nil && a.promoter.ShouldPromote(resp) {
		rendered, err := a.renderer.Fetch(ctx, req)
		if err != nil {
			a.logger.Warn("headless render failed, using probe response",
				zap.String("url", target), zap.Error(err))
		} else {
			page = rendered
		}
	}

	finalURL := page.URL
	if finalURL == "" {
		finalURL = target
	}
	// latency is the server's response time, never the render time
	seo, err := ExtractSignals(page.Body, finalURL, resp.Duration)
	if err != nil {
		return a.failed(target, err)
	}
	seo.UsedHeadless = page.UsedHeadless

	platform := DetectPlatform(target, page.Headers, page.Body)
	visibility := scoring.Visibility(scoring.SignalsFromSEO(seo))
	return gridrank.SiteIntel{
		HasWebsite: true,
		URL:        target,
		Platform:   &platform,
		HTTPStatus: resp.StatusCode,
		SEO:        &seo,
		Visibility: &visibility,
		CheckedAt:  a.clock.Now(),
	}
}

func (a *Analyzer) failed(target string, err error) gridrank.SiteIntel {
	a.logger.Debug("website fetch failed", zap.String("url", target), zap.Error(err))
	return gridrank.SiteIntel{
		HasWebsite: true,
		URL:        target,
		Platform: &gridrank.Platform{
			Name:       PlatformUnknown,
			Confidence: ConfidenceLow,
			Signals:    []string{"fetch_failed"},
		},
		Error:     err.Error(),
		CheckedAt: a.clock.Now(),
	}
}
