package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a client-side token bucket sized to the configured budget.
// Requests carry a weight so heavy endpoints consume more of the budget.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	metrics *Metrics
}

// Metrics tracks statistics about rate limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
}

// New creates a new RateLimiter with the specified number of requests allowed per period.
func New(requests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		limiter: newBucket(requests, period),
		metrics: &Metrics{},
	}
}

func newBucket(requests int, period time.Duration) *rate.Limiter {
	rps := float64(requests) / period.Seconds()
	return rate.NewLimiter(rate.Limit(rps), requests)
}

func (r *RateLimiter) bucket() *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiter
}

// Wait blocks until weight tokens are available or the context is cancelled.
// Weights above the burst are clamped to it.
func (r *RateLimiter) Wait(ctx context.Context, weight int) error {
	r.metrics.totalRequests.Add(1)
	if weight < 1 {
		weight = 1
	}
	limiter := r.bucket()
	if burst := limiter.Burst(); weight > burst {
		weight = burst
	}
	if err := limiter.WaitN(ctx, weight); err != nil {
		r.metrics.deniedRequests.Add(1)
		return err
	}
	r.metrics.allowedRequests.Add(1)
	return nil
}

// Allow returns true if a single request is permitted immediately.
func (r *RateLimiter) Allow() bool {
	r.metrics.totalRequests.Add(1)
	allowed := r.bucket().Allow()
	if allowed {
		r.metrics.allowedRequests.Add(1)
	} else {
		r.metrics.deniedRequests.Add(1)
	}
	return allowed
}

// SetLimit replaces the budget with requests per period. The new bucket
// starts full.
func (r *RateLimiter) SetLimit(requests int, period time.Duration) {
	limiter := newBucket(requests, period)
	r.mu.Lock()
	r.limiter = limiter
	r.mu.Unlock()
}

// Metrics returns a snapshot of the current rate limiter statistics.
func (r *RateLimiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   r.metrics.totalRequests.Load(),
		AllowedRequests: r.metrics.allowedRequests.Load(),
		DeniedRequests:  r.metrics.deniedRequests.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of rate limiter statistics.
type MetricsSnapshot struct {
	TotalRequests   int64
	AllowedRequests int64
	DeniedRequests  int64
}

// Pacer spaces consecutive calls at least interval apart. The first call
// passes immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer for interval. A zero interval never waits.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call may proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
