// Package ratelimit implements token bucket limits keyed by upstream name.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/gridrank/internal/metrics"
)

// Limiter manages one token bucket per upstream.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until the named upstream has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, upstream string) error {
	if l == nil {
		return nil
	}
	if upstream == "" {
		upstream = "unknown"
	}

	start := time.Now()
	if err := l.bucket(upstream).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// token already available costs well under a millisecond
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(upstream, d)
	}
	return nil
}

func (l *Limiter) bucket(upstream string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[upstream]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[upstream] = limiter
	}
	return limiter
}
