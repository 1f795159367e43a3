package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/errors"
)

// RateLimit allows perMinute requests per client IP in a sliding one-minute
// window. Rejected requests get a RATE_LIMITED envelope.
func RateLimit(perMinute int) gin.HandlerFunc {
	rl := &rateLimiter{requests: make(map[string][]time.Time), limit: perMinute, now: time.Now}
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			appErr := errors.RateLimited()
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, appErr.ToResponse())
			return
		}
		c.Next()
	}
}

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	now      func() time.Time
	calls    int
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-time.Minute)

	// prune idle keys every 256 calls
	rl.calls++
	if rl.calls%256 == 0 {
		for k, times := range rl.requests {
			if len(within(times, cutoff)) == 0 {
				delete(rl.requests, k)
			}
		}
	}

	recent := within(rl.requests[key], cutoff)
	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}
	rl.requests[key] = append(recent, now)
	return true
}

func within(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
