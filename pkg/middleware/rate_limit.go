package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gogotex/membership/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	// sweepInterval bounds how often idle buckets are dropped.
	sweepInterval = time.Minute
	// maxBuckets triggers an early sweep when a flood of distinct keys arrives.
	maxBuckets = 10000
	// maxPeekBytes caps how much of a request body UsernameKey inspects.
	maxPeekBytes = 64 << 10
)

// limiterSet is a per-key token-bucket store. A bucket that has refilled to
// its burst is indistinguishable from a new one, so sweeps drop those.
type limiterSet struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	lastSweep time.Time
	rps       rate.Limit
	burst     int
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	return &limiterSet{
		buckets:   make(map[string]*rate.Limiter),
		lastSweep: time.Now(),
		rps:       rate.Limit(rps),
		burst:     burst,
	}
}

// get returns (and lazily creates) the limiter for key.
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastSweep) >= sweepInterval || (len(s.buckets) >= maxBuckets && now.Sub(s.lastSweep) >= time.Second) {
		s.sweep(now)
	}
	lim, ok := s.buckets[key]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.buckets[key] = lim
	}
	return lim
}

// sweep drops full buckets. Callers hold mu.
func (s *limiterSet) sweep(now time.Time) {
	for k, lim := range s.buckets {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(s.buckets, k)
		}
	}
	s.lastSweep = now
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ClientIPKey buckets by client IP.
func ClientIPKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// UsernameKey buckets by username and client IP, so guessing one account's
// password does not lock out everyone behind a NAT. The username comes from
// the :username route parameter or else the "username" field of a JSON body.
// Requests without either fall back to ClientIPKey.
func UsernameKey(c *gin.Context) string {
	u := c.Param("username")
	if u == "" {
		u = bodyUsername(c)
	}
	if u != "" {
		return "user:" + u + ":" + ClientIPKey(c)
	}
	return ClientIPKey(c)
}

// bodyUsername reads the username field of a JSON body and hands the body
// back to the request untouched.
func bodyUsername(c *gin.Context) string {
	if c.Request == nil || c.Request.Body == nil || c.Request.Body == http.NoBody {
		return ""
	}
	orig := c.Request.Body
	head, err := io.ReadAll(io.LimitReader(orig, maxPeekBytes))
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), orig), orig}
	if err != nil {
		return ""
	}
	var body struct {
		Username string `json:"username"`
	}
	if err := binding.JSON.BindBody(head, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Username)
}

// RateLimitMiddleware returns a Gin middleware enforcing a per-client-IP token-bucket limit.
// rps = allowed events per second, burst = maximum tokens in bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	return RateLimitMiddlewareWithKey(rps, burst, ClientIPKey)
}

// RateLimitMiddlewareWithKey is RateLimitMiddleware with a custom bucket key.
func RateLimitMiddlewareWithKey(rps float64, burst int, keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = ClientIPKey
	}
	limiters := newLimiterSet(rps, burst)
	return func(c *gin.Context) {
		lim := limiters.get(c.FullPath() + "|" + keyFn(c))
		if !lim.Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
