package http

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-domain request rate limiting using token bucket algorithm.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	backoff  map[string]time.Time
	mu       sync.Mutex
	config   RateLimiterConfig
}

// DefaultRateLimitBackoff is used after a 429/503 without a Retry-After header.
const DefaultRateLimitBackoff = 2 * time.Second

// Well-known API hosts.
const (
	NCBIHost     = "eutils.ncbi.nlm.nih.gov"
	UnsplashHost = "api.unsplash.com"
)

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// DefaultRPS is requests per second for hosts without a custom rate (0 = unlimited).
	DefaultRPS float64
	// CustomRates maps host names to RPS values.
	CustomRates map[string]float64
}

// DefaultRateLimiterConfig returns the published limits of the services the
// pipeline talks to. NCBI allows 3 req/s without an API key.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS: 0,
		CustomRates: map[string]float64{
			NCBIHost:     3,
			UnsplashHost: 1,
		},
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CustomRates == nil {
		cfg.CustomRates = make(map[string]float64)
	}

	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		backoff:  make(map[string]time.Time),
		config:   cfg,
	}
}

// Wait waits until the rate limit allows a request for the given URL.
// Returns an error if the context is canceled or exceeded deadline.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}

	limiter := rl.getLimiter(urlStr)
	if limiter == nil {
		return nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// getLimiter returns the rate limiter for a given URL, creating one if necessary.
func (rl *RateLimiter) getLimiter(urlStr string) *rate.Limiter {
	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rps := rl.rpsLocked(domain)
	if rps == 0 {
		return nil
	}

	if limiter, ok := rl.limiters[domain]; ok {
		return limiter
	}

	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[domain] = limiter
	return limiter
}

// rpsLocked returns the requests per second for a domain. Must be called with mutex held.
func (rl *RateLimiter) rpsLocked(domain string) float64 {
	if rps, ok := rl.config.CustomRates[domain]; ok {
		return rps
	}
	return rl.config.DefaultRPS
}

// SetCustomRate sets a custom rate limit for a specific domain.
func (rl *RateLimiter) SetCustomRate(domain string, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.config.CustomRates[domain] = rps
	delete(rl.limiters, domain)
}

// RecordRateLimitError records a 429/503 for the URL's domain.
// Returns the backoff the next request will honour.
func (rl *RateLimiter) RecordRateLimitError(urlStr string, retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		retryAfter = DefaultRateLimitBackoff
	}
	if rl == nil {
		return retryAfter
	}

	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.backoff[domain] = time.Now().Add(retryAfter)
	return retryAfter
}

// RecordSuccess clears any backoff recorded for the URL's domain.
func (rl *RateLimiter) RecordSuccess(urlStr string) {
	if rl == nil {
		return
	}
	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.backoff, domain)
}

// IsBackedOff returns true if the domain is currently in a backoff state.
func (rl *RateLimiter) IsBackedOff(urlStr string) bool {
	return rl.backoffRemaining(urlStr) > 0
}

func (rl *RateLimiter) backoffRemaining(urlStr string) time.Duration {
	if rl == nil {
		return 0
	}
	domain := extractDomain(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	until, ok := rl.backoff[domain]
	if !ok {
		return 0
	}
	return time.Until(until)
}

// WaitForBackoff waits for the current backoff period to expire.
// Returns immediately if not in backoff state.
func (rl *RateLimiter) WaitForBackoff(ctx context.Context, urlStr string) error {
	remaining := rl.backoffRemaining(urlStr)
	if remaining <= 0 {
		return nil
	}

	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// extractDomain extracts the host name (without port) from a URL string.
func extractDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
