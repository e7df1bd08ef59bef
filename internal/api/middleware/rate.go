package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds request rates on the monitor API.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// visitorTTL is how long an idle client keeps its limiter before the
// next sweep evicts it.
const visitorTTL = 3 * time.Minute

// RateLimit limits each client IP independently, answering 429 once a
// client exhausts its burst. Idle entries are swept so the limiter map
// does not grow with every address ever seen.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	type visitor struct {
		limiter *rate.Limiter
		seen    time.Time
	}

	var (
		mu        sync.Mutex
		visitors  = make(map[string]*visitor)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > visitorTTL {
			for ip, v := range visitors {
				if now.Sub(v.seen) > visitorTTL {
					delete(visitors, ip)
				}
			}
			lastSweep = now
		}
		ip := c.ClientIP()
		v, ok := visitors[ip]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			visitors[ip] = v
		}
		v.seen = now
		mu.Unlock()

		if !v.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// GlobalRateLimit applies one shared limiter across all clients,
// guarding expensive endpoints like the journal export.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
