package providers

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// DefaultRequestsPerSecond are conservative per-provider limits, below the published quotas.
var DefaultRequestsPerSecond = map[models.Provider]float64{
	models.ProviderHubSpot:  10, // 100 requests per 10s for OAuth apps
	models.ProviderAirtable: 5,  // 5 requests per second per base
	models.ProviderNotion:   3,  // average of 3 requests per second
}

// maxBackoff caps how long a Retry-After header can pause a provider.
const maxBackoff = 30 * time.Second

// RateLimiter is a token bucket shared by all requests to one provider.
// A 429 answer pauses the bucket until the provider's Retry-After elapses.
type RateLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	retryAt  time.Time
	provider models.Provider
}

// NewRateLimiter creates a limiter allowing rps requests per second with a matching burst.
func NewRateLimiter(provider models.Provider, rps float64) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond[provider]
	}
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		provider: provider,
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RecordRateLimitWait(string(r.provider), time.Since(start).Seconds())
	}()

	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// Backoff pauses the limiter for the number of seconds in retryAfter, or one second when it is unparseable.
func (r *RateLimiter) Backoff(retryAfter string) {
	delay := time.Second
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		delay = time.Duration(seconds) * time.Second
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if next := time.Now().Add(delay); next.After(r.retryAt) {
		r.retryAt = next
	}
}
