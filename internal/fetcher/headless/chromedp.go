// Package headless renders pages in headless Chrome so that single page
// applications expose their markup to signal extraction.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/gridrank/internal/fetcher"
)

const (
	defaultNavTimeout  = 20 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
)

// Config controls the headless renderer.
type Config struct {
	// MaxParallel bounds concurrently open tabs; zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// MaxBodyBytes truncates the rendered DOM; zero keeps it whole.
	MaxBodyBytes int
	// SettleDelay is waited after the body is ready so scripts can populate it.
	SettleDelay time.Duration
}

// Renderer implements fetcher.Fetcher with one chromedp tab per fetch.
type Renderer struct {
	cfg       Config
	tabs      *semaphore.Weighted
	browser   context.Context
	stop      context.CancelFunc
	closeOnce sync.Once
}

// NewChromedp creates a renderer. Chrome is started lazily on the first fetch.
func NewChromedp(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("headless: max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}

	r := &Renderer{cfg: cfg}
	if cfg.MaxParallel > 0 {
		r.tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
	)
	r.browser, r.stop = chromedp.NewExecAllocator(context.Background(), flags...)
	return r, nil
}

// Close stops the browser. Repeated calls are no-ops.
func (r *Renderer) Close() {
	r.closeOnce.Do(r.stop)
}

// Fetch loads request.URL in a fresh tab and returns the DOM after scripts ran.
// Status and headers come from the main document response.
func (r *Renderer) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	if r.tabs != nil {
		if err := r.tabs.Acquire(ctx, 1); err != nil {
			return fetcher.Response{}, fmt.Errorf("wait for headless tab: %w", err)
		}
		defer r.tabs.Release(1)
	}

	tab, closeTab := chromedp.NewContext(r.browser)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, r.cfg.NavigationTimeout)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	doc := &document{}
	chromedp.ListenTarget(tab, doc.observe)

	var html, location string
	start := time.Now()
	err := chromedp.Run(tab, append(r.prepare(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)...)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("render %s: %w", request.URL, err)
	}
	elapsed := time.Since(start)

	if location == "" {
		location = request.URL
	}
	body := []byte(html)
	if limit := r.cfg.MaxBodyBytes; limit > 0 && len(body) > limit {
		body = body[:limit]
	}
	status, headers, finalURL := doc.result(location)
	return fetcher.Response{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         body,
		Duration:     elapsed,
		UsedHeadless: true,
	}, nil
}

func (r *Renderer) prepare(headers http.Header) []chromedp.Action {
	actions := []chromedp.Action{network.Enable()}
	if r.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(r.cfg.UserAgent))
	}
	if len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(networkHeaders(headers)))
	}
	return actions
}

// document tracks the last main-frame document response; redirects replace it.
type document struct {
	mu      sync.Mutex
	seen    bool
	status  int
	url     string
	headers http.Header
}

func (d *document) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	headers := httpHeaders(e.Response.Headers)
	d.mu.Lock()
	d.seen = true
	d.status = int(e.Response.Status)
	d.url = e.Response.URL
	d.headers = headers
	d.mu.Unlock()
}

// result falls back to 200 and location when no document response was seen.
func (d *document) result(location string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seen {
		return http.StatusOK, http.Header{}, location
	}
	status, url := d.status, d.url
	if status == 0 {
		status = http.StatusOK
	}
	if url == "" {
		url = location
	}
	return status, d.headers.Clone(), url
}

// networkHeaders joins repeated values; CDP takes one string per header.
func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}

func httpHeaders(h network.Headers) http.Header {
	out := make(http.Header, len(h))
	for key, value := range h {
		switch v := value.(type) {
		case string:
			// Chrome folds repeated headers into one newline-separated value
			for _, line := range strings.Split(v, "\n") {
				out.Add(key, line)
			}
		case []any:
			for _, item := range v {
				out.Add(key, fmt.Sprint(item))
			}
		default:
			out.Add(key, fmt.Sprint(v))
		}
	}
	return out
}
