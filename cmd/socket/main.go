package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventsphere/internal/core/ports"
	"eventsphere/internal/core/services"
	httphandlers "eventsphere/internal/handlers/http"
	"eventsphere/internal/handlers/socket"
	"eventsphere/internal/infrastructure/middleware"
	"eventsphere/internal/infrastructure/monitoring"
	"eventsphere/internal/infrastructure/reliability"
	"eventsphere/internal/infrastructure/repositories"
	wsserver "eventsphere/internal/infrastructure/signal"
	"eventsphere/pkg/circuitbreaker"
	"eventsphere/pkg/config"
	"eventsphere/pkg/logger"
	"eventsphere/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "eventsphere-socket"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML config file")
	pflag.Parse()

	// A missing .env file is fine; real deployments inject the environment.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar().With("instance_id", cfg.InstanceID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger); err != nil {
		log.Errorw("socket server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("socket server stopped")
}

// loadConfig reads path when given, otherwise the first config file found
// in the usual locations. Without a file, defaults and env overrides apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, candidate := range []string{"configs/config.yaml", "config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return config.Load(candidate)
		}
	}
	return config.Load("")
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "socket"
	}
	return host + "-" + uuid.NewString()[:8]
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	startTime := time.Now()
	log := zapLogger.Sugar().With("instance_id", cfg.InstanceID)

	tp, err := tracing.Init(cfg.TracingConfig(serviceName))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	factory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init repositories: %w", err)
	}

	bus, err := factory.CreateMessageBus()
	if err != nil {
		_ = factory.Close()
		return fmt.Errorf("init message bus: %w", err)
	}

	publishRetry := cfg.PublishRetry()
	var breaker *reliability.BreakerBus
	if cfg.Bus.BreakerFailures > 0 {
		breaker = reliability.NewBreakerBus(bus, circuitbreaker.Config{
			FailureThreshold:    cfg.Bus.BreakerFailures,
			SuccessThreshold:    1,
			Cooldown:            cfg.Bus.BreakerCooldown,
			MaxRequestsHalfOpen: 1,
		}, log)
		bus = breaker
		publishRetry = reliability.SkipOpenCircuit(publishRetry)
	}

	var metrics ports.Metrics = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	var authOpts []services.AuthOption
	if !cfg.Auth.RequireExpiry {
		authOpts = append(authOpts, services.WithoutExpiryRequirement())
	}
	auth, err := services.NewAuthService(cfg.Auth.JWTSecret, authOpts...)
	if err != nil {
		_ = factory.Close()
		return fmt.Errorf("init authenticator: %w", err)
	}

	presence := factory.CreatePresenceRegistry()
	sessions := services.NewSessionManager(metrics, log)
	bridge := services.NewBusBridge(bus, sessions, publishRetry, metrics, log)
	stats := services.NewCachedStatsRepository(factory.CreateStatsRepository(), cfg.Stats.CacheTTL)

	router := socket.NewRouter(sessions, cfg.Socket.HandlerTimeout, metrics, zapLogger)
	socket.NewStatsHandler(stats, presence, sessions, log).SetupRoutes(router)
	socket.NewEventRoomHandler(factory.CreateEventRepository(), sessions).SetupRoutes(router)
	log.Infow("socket events registered", "events", router.Events())

	ws := wsserver.NewWebSocketServer(sessions, router, presence, bridge, wsserver.OptionsFromConfig(cfg), log)

	health := monitoring.NewHealthChecker(log)
	if factory.UsesRedis() {
		health.AddRedisCheck(factory.RedisClient(), cfg.Presence.HeartbeatInterval, 2*time.Second)
	}
	health.AddPresenceCheck(presence, cfg.Presence.HeartbeatInterval, 2*time.Second)
	if breaker != nil {
		health.AddCheck("bus_breaker", breaker.HealthCheck, cfg.Presence.HeartbeatInterval, time.Second)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	authenticate := middleware.AuthMiddleware(auth, cfg.Auth.TokenQueryName, metrics)
	engine.GET(cfg.Socket.Path, middleware.NewConnectionRateLimitMiddleware(cfg), authenticate, ws.Handle)
	httphandlers.NewNotificationHandler(bridge, log).SetupRoutes(engine.Group("/api/v1", authenticate))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    monitoring.StatusHealthy,
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(startTime).String(),
			"sessions":  sessions.SessionCount(),
		})
	})
	engine.GET("/ready", health.Handler())
	if cfg.Monitoring.PrometheusEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeout,
		// Hijacked WebSocket connections manage their own deadlines.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bridge.Start(gctx)
	})

	g.Go(func() error {
		heartbeat(gctx, presence, cfg.Presence.HeartbeatInterval, log)
		return nil
	})

	if cached, ok := stats.(*services.CachedStatsRepository); ok {
		g.Go(func() error {
			cached.Run(gctx, time.Minute)
			return nil
		})
	}

	g.Go(func() error {
		health.StartBackgroundChecks(gctx)
		<-gctx.Done()
		return nil
	})

	g.Go(func() error {
		log.Infow("starting socket server",
			"address", cfg.Server.Address,
			"socket_path", cfg.Socket.Path,
			"bus_backend", cfg.Bus.Backend,
			"redis", factory.UsesRedis(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down socket server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			_ = srv.Close()
		}
		if err := ws.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("socket shutdown: %w", err))
		}
		if err := presence.Cleanup(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("presence cleanup: %w", err))
		}
		if err := bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus close: %w", err))
		}
		if err := factory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("repositories close: %w", err))
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// heartbeat keeps this instance's presence entries alive until ctx ends.
func heartbeat(ctx context.Context, presence ports.PresenceRegistry, interval time.Duration, log *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := presence.Heartbeat(ctx); err != nil {
				log.Warnw("presence heartbeat failed", "error", err)
			}
		}
	}
}
