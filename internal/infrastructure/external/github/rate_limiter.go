package github

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket
// Shared by every worker of a run. GitHub also reports the remaining budget
// in response headers; when it runs out the bucket is drained until reset.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64
	// BurstSize is how many requests may go out back to back.
	BurstSize int
	// WaitTimeout bounds how long a caller waits for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig stays well under the 5000 requests per hour an
// authenticated token gets.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 1.0,
		BurstSize:         10,
		WaitTimeout:       2 * time.Minute,
	}
}

// RateLimiter implements the Token Bucket algorithm.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	// blockedUntil is set when the server says the budget is exhausted.
	blockedUntil time.Time
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	burst := float64(max(config.BurstSize, 1))
	return &RateLimiter{
		maxTokens:   burst,
		refillRate:  config.RequestsPerSecond,
		tokens:      burst,
		lastRefill:  time.Now(),
		waitTimeout: config.WaitTimeout,
	}
}

// RateLimitError is returned when a token could not be obtained in time or
// the server rejected a request for exceeding its limit.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string { return e.Message }
func (e *RateLimitError) Unwrap() error { return shared.ErrRateLimited }

// Wait blocks until a request may be sent.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := time.Now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.waitTimeout > 0 && time.Now().Add(wait).After(deadline) {
			return &RateLimitError{
				RetryAfter: wait,
				Message:    "rate limit exceeded, retry after " + wait.String(),
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.blockedUntil) {
		return rl.blockedUntil.Sub(now), false
	}

	rl.refill(now)
	if rl.tokens < 1.0 {
		if rl.refillRate <= 0 {
			return time.Second, false
		}
		return time.Duration((1.0 - rl.tokens) / rl.refillRate * float64(time.Second)), false
	}
	rl.tokens--
	return 0, true
}

// refill must be called with mu held.
func (rl *RateLimiter) refill(now time.Time) {
	if now.Before(rl.blockedUntil) {
		rl.tokens = 0
		rl.lastRefill = now
		return
	}
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens = min(rl.tokens+elapsed*rl.refillRate, rl.maxTokens)
	rl.lastRefill = now
}

// BlockUntil drains the bucket until t, as reported by X-RateLimit-Reset or
// Retry-After.
func (rl *RateLimiter) BlockUntil(t time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	if t.After(rl.blockedUntil) {
		rl.blockedUntil = t
	}
}

// Available returns the current number of tokens.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	return rl.tokens
}
