package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eventsphere/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func serve(router *gin.Engine, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w.Code
}

func newLimitedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := newLimitedRouter(NewHTTPRateLimitMiddleware(cfg))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:1234"))
	}
}

func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1

	router := newLimitedRouter(NewHTTPRateLimitMiddleware(cfg))

	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "10.0.0.1:1234"))

	// Another IP has its own budget.
	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.2:1234"))
}

func TestConnectionRateLimitMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 2

	router := newLimitedRouter(NewConnectionRateLimitMiddleware(cfg))

	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, serve(router, "10.0.0.1:2"))
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "10.0.0.1:3"))
}

func TestNewMessageLimiter(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Nil(t, NewMessageLimiter(cfg))

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 1
	cfg.RateLimiting.WebSocket.Burst = 2

	limiter := NewMessageLimiter(cfg)
	if assert.NotNil(t, limiter) {
		assert.True(t, limiter.Allow())
		assert.True(t, limiter.Allow())
		assert.False(t, limiter.Allow())
	}
}

func TestRateLimiterStore_PrunesIdleKeys(t *testing.T) {
	store := newRateLimiterStore(rate.Limit(1), 1)
	now := time.Unix(0, 0)
	store.now = func() time.Time { return now }

	store.allow("old")
	now = now.Add(idleKeyTTL + time.Second)
	store.pruneLocked(now)
	assert.Equal(t, 0, store.size())
}
