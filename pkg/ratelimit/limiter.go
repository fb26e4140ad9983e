package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"igarchiver/pkg/config"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Pause holds back every caller for d, e.g. after a 429
	Pause(d time.Duration)
}

// RequestLimiter is a token bucket limiter with an additional cooldown window
type RequestLimiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

// New creates a limiter allowing requestsPerMinute with the given burst
func New(requestsPerMinute, burst int) *RequestLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &RequestLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// FromConfig creates a limiter from the rate_limit config section
func FromConfig(cfg *config.RateLimitConfig) *RequestLimiter {
	return New(cfg.RequestsPerMinute, cfg.BurstSize)
}

// Unlimited returns a limiter that never blocks
func Unlimited() *RequestLimiter {
	return New(0, 1)
}

func (l *RequestLimiter) pauseRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Until(l.pausedUntil)
}

// Allow reports whether a request may proceed right now
func (l *RequestLimiter) Allow() bool {
	if l.pauseRemaining() > 0 {
		return false
	}
	return l.limiter.Allow()
}

// Wait blocks until the cooldown has passed and a token is available
func (l *RequestLimiter) Wait(ctx context.Context) error {
	if d := l.pauseRemaining(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.limiter.Wait(ctx)
}

// Pause extends the cooldown window to at least d from now
func (l *RequestLimiter) Pause(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := time.Now().Add(d); until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
}
