package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterPool tracks one token bucket per client IP and evicts buckets
// that have been idle for longer than ttl.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	ttl     time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(rps, burst int) *limiterPool {
	p := &limiterPool{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     10 * time.Minute,
	}
	go p.evictLoop()
	return p
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	b, ok := p.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(p.rps, p.burst)}
		p.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	p.mu.Unlock()

	return b.lim.Allow()
}

func (p *limiterPool) evictLoop() {
	for {
		time.Sleep(p.ttl / 2)
		p.mu.Lock()
		for ip, b := range p.buckets {
			if time.Since(b.lastSeen) > p.ttl {
				delete(p.buckets, ip)
			}
		}
		p.mu.Unlock()
	}
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)

	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
