package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/pkg/errcode"
	"github.com/xxxsen/aitutor/internal/pkg/response"
)

// rateLimiter admits one call per window for each caller and route. Signed
// in callers are keyed by user so a shared address does not throttle a
// whole classroom; anonymous callers fall back to the client ip.
type rateLimiter struct {
	mu            sync.Mutex
	window        time.Duration
	last          map[string]time.Time
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// RateLimit throttles the model-backed routes. A non-positive window
// disables it.
func RateLimit(window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		window:        window,
		last:          make(map[string]time.Time),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	return limiter.handle
}

func rateKey(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	if uid := c.GetString(ContextUserIDKey); uid != "" {
		return "user:" + uid + "|" + route
	}
	return "ip:" + c.ClientIP() + "|" + route
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupExpiredLocked(now)
	if last, ok := l.last[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.last[key] = now
	return true
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	key := rateKey(c)
	if !l.allow(key) {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit", zap.String("key", key))
		response.Error(c, errcode.ErrTooMany, "Too many requests, please slow down")
		c.Abort()
		return
	}
	c.Next()
}

func (l *rateLimiter) cleanupExpiredLocked(now time.Time) {
	if !l.lastSweep.IsZero() && now.Sub(l.lastSweep) < l.sweepInterval {
		return
	}
	for key, ts := range l.last {
		if now.Sub(ts) >= l.window {
			delete(l.last, key)
		}
	}
	l.lastSweep = now
}
