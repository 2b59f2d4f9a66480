package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pathweaver/pathweaver/internal/pkg/errcode"
	"github.com/pathweaver/pathweaver/internal/pkg/response"
)

// rateLimiter allows one request per (ip, owner, route) per window. Path
// creation is expensive for the generative backend, so the window keeps a
// single client from hammering it.
type rateLimiter struct {
	mu            sync.Mutex
	window        time.Duration
	last          map[string]time.Time
	lastSweep     time.Time
	sweepInterval time.Duration
	now           func() time.Time
}

func RateLimit(window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		window:        window,
		last:          make(map[string]time.Time),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	owner := "0"
	if v, ok := c.Get(ContextOwnerIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			owner = id
		}
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, owner, path}, "|")

	now := l.now()
	l.mu.Lock()
	last, exists := l.last[key]
	if exists && now.Sub(last) < l.window {
		l.mu.Unlock()
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("owner_id", owner),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	l.last[key] = now
	if now.Sub(l.lastSweep) >= l.sweepInterval {
		l.cleanupExpiredLocked(now)
		l.lastSweep = now
	}
	l.mu.Unlock()
	c.Next()
}

func (l *rateLimiter) cleanupExpiredLocked(now time.Time) {
	for key, seen := range l.last {
		if now.Sub(seen) >= l.window {
			delete(l.last, key)
		}
	}
}
