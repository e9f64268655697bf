package exchange

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// RateLimiter tracks REST rate limit usage reported by the exchange.
type RateLimiter struct {
	used          int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	mu            sync.RWMutex
}

// NewRateLimiter creates a rate limiter.
// limit: maximum requests allowed per window.
// resetInterval: the window (e.g. 10 seconds for WOO X private endpoints).
func NewRateLimiter(limit int, resetInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// UpdateFromHeader updates usage from a rate-limit response header.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}

	used, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.used = 0
		rl.lastReset = time.Now()
	}

	rl.used = used

	percentage := float64(rl.used) / float64(rl.limit) * 100
	if percentage >= 95 {
		log.Printf("rate limit critical: %d/%d (%.1f%%) - approaching ban threshold", rl.used, rl.limit, percentage)
	} else if percentage >= 80 {
		log.Printf("rate limit warning: %d/%d (%.1f%%)", rl.used, rl.limit, percentage)
	}
}

// Record counts one request locally, for endpoints that report no usage header.
func (rl *RateLimiter) Record() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.used = 0
		rl.lastReset = time.Now()
	}
	rl.used++
}

// GetUsage returns current usage information.
func (rl *RateLimiter) GetUsage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}

	return rl.used, rl.limit, float64(rl.used) / float64(rl.limit) * 100
}

// ShouldDelay returns true if the next request should be held back.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.GetUsage()
	return pct >= 90
}
