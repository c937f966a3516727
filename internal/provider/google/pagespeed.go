package google

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/pagespeedonline/v5"

	"github.com/JakeFAU/gridrank/internal/cache"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/metrics"
)

// StrategyMobile is the PageSpeed strategy used for lead enrichment.
const StrategyMobile = "mobile"

var pageSpeedCategories = []string{"PERFORMANCE", "SEO", "ACCESSIBILITY", "BEST_PRACTICES"}

// PageSpeedConfig controls the PageSpeed Insights adapter.
type PageSpeedConfig struct {
	APIKey string
	// BaseURL overrides https://pagespeedonline.googleapis.com/, mostly for tests.
	BaseURL string
	Timeout time.Duration
	Clock   gridrank.Clock
}

// PageSpeed implements gridrank.PageSpeedRunner.
type PageSpeed struct {
	svc     *pagespeedonline.Service
	cfg     PageSpeedConfig
	cache   *cache.Cache[gridrank.PageSpeedSnapshot]
	limiter Limiter
	logger  *zap.Logger
}

// NewPageSpeed builds the adapter. Without an API key no service is created
// and every run reports a configuration error in the snapshot.
func NewPageSpeed(
	ctx context.Context,
	cfg PageSpeedConfig,
	c *cache.Cache[gridrank.PageSpeedSnapshot],
	limiter Limiter,
	logger *zap.Logger,
) (*PageSpeed, error) {
	if c == nil {
		return nil, fmt.Errorf("pagespeed: cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = utcClock{}
	}
	ps := &PageSpeed{cfg: cfg, cache: c, limiter: limiter, logger: logger}
	if cfg.APIKey == "" {
		return ps, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	svc, err := pagespeedonline.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pagespeed service: %w", err)
	}
	ps.svc = svc
	return ps, nil
}

// Run returns a PageSpeed snapshot for rawURL. Successful and failed runs are
// both cached under "<strategy>:<url>".
func (p *PageSpeed) Run(ctx context.Context, rawURL, strategy string) gridrank.PageSpeedSnapshot {
	target := gridrank.NormalizeWebsiteURL(rawURL)
	if strategy == "" {
		strategy = StrategyMobile
	}
	if target == "" {
		return gridrank.PageSpeedSnapshot{Strategy: strategy, Error: "no url"}
	}
	if p.svc == nil {
		return gridrank.PageSpeedSnapshot{URL: target, Strategy: strategy, Error: "pagespeed api key is not configured"}
	}

	key := strategy + ":" + target
	if snap, ok := p.cache.Get(key); ok {
		return snap
	}
	snap := p.fetch(ctx, target, strategy)
	return p.cache.Set(key, snap)
}

func (p *PageSpeed) fetch(ctx context.Context, target, strategy string) gridrank.PageSpeedSnapshot {
	failed := func(err error) gridrank.PageSpeedSnapshot {
		metrics.ObserveUpstream(UpstreamPageSpeed, "error")
		p.logger.Warn("pagespeed run failed", zap.String("url", target), zap.Error(err))
		return gridrank.PageSpeedSnapshot{URL: target, Strategy: strategy, Error: err.Error()}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, UpstreamPageSpeed); err != nil {
			return failed(err)
		}
	}
	callCtx, cancel := withTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.svc.Pagespeedapi.Runpagespeed(target).
		Strategy(strings.ToUpper(strategy)).
		Category(pageSpeedCategories...).
		Context(callCtx).
		Do()
	if err != nil {
		return failed(err)
	}
	metrics.ObserveUpstream(UpstreamPageSpeed, "ok")

	fetchedAt := p.cfg.Clock.Now()
	snap := gridrank.PageSpeedSnapshot{
		URL:       target,
		Strategy:  strategy,
		FetchedAt: &fetchedAt,
		Scores:    &gridrank.PageSpeedScores{},
		Metrics:   &gridrank.PageSpeedMetrics{},
	}
	lh := resp.LighthouseResult
	if lh == nil {
		return snap
	}
	if cats := lh.Categories; cats != nil {
		snap.Scores.Performance = categoryScore(cats.Performance)
		snap.Scores.SEO = categoryScore(cats.Seo)
		snap.Scores.Accessibility = categoryScore(cats.Accessibility)
		snap.Scores.BestPractices = categoryScore(cats.BestPractices)
	}
	snap.Metrics.LCPMs = auditValue(lh.Audits, "largest-contentful-paint")
	snap.Metrics.FCPMs = auditValue(lh.Audits, "first-contentful-paint")
	snap.Metrics.CLS = auditValue(lh.Audits, "cumulative-layout-shift")
	snap.Metrics.TBTMs = auditValue(lh.Audits, "total-blocking-time")
	snap.Metrics.SIMs = auditValue(lh.Audits, "speed-index")
	return snap
}

// categoryScore scales a 0..1 Lighthouse score to 0..100.
func categoryScore(cat *pagespeedonline.LighthouseCategoryV5) *int {
	if cat == nil {
		return nil
	}
	var f float64
	switch v := any(cat.Score).(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	scaled := int(math.Round(f * 100))
	return &scaled
}

func auditValue(audits map[string]pagespeedonline.LighthouseAuditResultV5, id string) *float64 {
	a, ok := audits[id]
	if !ok {
		return nil
	}
	v := a.NumericValue
	return &v
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
