package middleware

import (
	"net/http"
	"sync"
	"time"

	"eventsphere/pkg/config"
	apperrors "eventsphere/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	maxTrackedKeys = 10000
	idleKeyTTL     = 10 * time.Minute
)

type trackedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore stores per-key (for example, per IP) rate limiters.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*trackedLimiter
	rate      rate.Limit
	burstSize int
	now       func() time.Time
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*trackedLimiter),
		rate:      r,
		burstSize: burst,
		now:       time.Now,
	}
}

func (s *rateLimiterStore) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if len(s.limiters) >= maxTrackedKeys {
		s.pruneLocked(now)
	}

	entry, exists := s.limiters[key]
	if !exists {
		entry = &trackedLimiter{limiter: rate.NewLimiter(s.rate, s.burstSize)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (s *rateLimiterStore) pruneLocked(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > idleKeyTTL {
			delete(s.limiters, key)
		}
	}
}

func (s *rateLimiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func passThrough(c *gin.Context) {
	c.Next()
}

func reject(c *gin.Context) {
	sig := apperrors.RateLimited()
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, sig)
}

// NewHTTPRateLimitMiddleware returns Gin middleware that applies per-IP
// request rate limiting.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return passThrough
	}

	store := newRateLimiterStore(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)

	return func(c *gin.Context) {
		if !store.allow(c.ClientIP()) {
			reject(c)
			return
		}
		c.Next()
	}
}

// NewConnectionRateLimitMiddleware limits WebSocket upgrades per IP to
// rate_limiting.websocket.connections_per_minute.
func NewConnectionRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	perMinute := cfg.RateLimiting.WebSocket.ConnectionsPerMinute
	if !cfg.RateLimiting.Enabled || perMinute <= 0 {
		return passThrough
	}

	store := newRateLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)

	return func(c *gin.Context) {
		if !store.allow(c.ClientIP()) {
			reject(c)
			return
		}
		c.Next()
	}
}

// NewMessageLimiter returns the limiter for inbound frames of one
// connection, or nil when rate limiting is disabled.
func NewMessageLimiter(cfg *config.Config) *rate.Limiter {
	if !cfg.RateLimiting.Enabled {
		return nil
	}
	return rate.NewLimiter(
		rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond),
		cfg.RateLimiting.WebSocket.Burst,
	)
}
