package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"eventsphere/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthChecker struct {
	checks []HealthCheck
	last   map[string]string
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Interval time.Duration
	Timeout  time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker(logger *zap.SugaredLogger) *HealthChecker {
	return &HealthChecker{
		checks: make([]HealthCheck, 0),
		last:   make(map[string]string),
		logger: logger,
	}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, HealthCheck{
		Name:     name,
		Check:    check,
		Interval: interval,
		Timeout:  timeout,
	})
}

// AddRedisCheck pings Redis. A nil client means Redis is not in use and
// adds nothing.
func (h *HealthChecker) AddRedisCheck(client redis.Cmdable, interval, timeout time.Duration) {
	if client == nil {
		return
	}
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

// AddPresenceCheck verifies the presence registry can still be read.
func (h *HealthChecker) AddPresenceCheck(presence ports.PresenceRegistry, interval, timeout time.Duration) {
	h.AddCheck("presence", func(ctx context.Context) error {
		_, err := presence.OnlineCount(ctx)
		return err
	}, interval, timeout)
}

// CheckAll runs every check once, each under its own timeout.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		if err := run(ctx, check); err != nil {
			status.Status = StatusUnhealthy
			status.Checks[check.Name] = err.Error()
		} else {
			status.Checks[check.Name] = StatusHealthy
		}
	}

	return status
}

// LastResults returns the outcome of the latest background run per check.
func (h *HealthChecker) LastResults() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(h.last))
	for name, result := range h.last {
		out[name] = result
	}
	return out
}

// StartBackgroundChecks runs each check on its interval until ctx is done
// and logs state transitions.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, check := range h.checks {
		if check.Interval > 0 {
			go h.runCheckPeriodically(ctx, check)
		}
	}
}

func (h *HealthChecker) runCheckPeriodically(ctx context.Context, check HealthCheck) {
	ticker := time.NewTicker(check.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := StatusHealthy
			if err := run(ctx, check); err != nil {
				result = err.Error()
			}
			h.record(check.Name, result)
		}
	}
}

func (h *HealthChecker) record(name, result string) {
	h.mu.Lock()
	prev, seen := h.last[name]
	h.last[name] = result
	h.mu.Unlock()

	if h.logger == nil || (seen && prev == result) {
		return
	}
	if result == StatusHealthy {
		h.logger.Infow("health check passing", "check", name)
	} else {
		h.logger.Warnw("health check failing", "check", name, "error", result)
	}
}

// Handler serves CheckAll as JSON: 200 when healthy, 503 otherwise.
func (h *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := h.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

func run(ctx context.Context, check HealthCheck) error {
	if check.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, check.Timeout)
		defer cancel()
	}
	return check.Check(ctx)
}
