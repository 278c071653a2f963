package config

import (
	"fmt"
	"os"
	"time"

	"eventsphere/pkg/retry"
	"eventsphere/pkg/tracing"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const envPrefix = "EVENTSPHERE"

type Config struct {
	InstanceID string `yaml:"instance_id"`

	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Socket struct {
		Path              string        `yaml:"path"`
		PingInterval      time.Duration `yaml:"ping_interval"`
		PongTimeout       time.Duration `yaml:"pong_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		SendBufferSize    int           `yaml:"send_buffer_size"`
		MaxMessageBytes   int64         `yaml:"max_message_bytes"`
		AllowedOrigins    []string      `yaml:"allowed_origins"`
		HandlerTimeout    time.Duration `yaml:"handler_timeout"`
		EnableCompression bool          `yaml:"enable_compression"`
	} `yaml:"socket"`

	Bus struct {
		// Backend is "redis" or "memory". Memory only reaches sessions of this process.
		Backend           string        `yaml:"backend"`
		PublishAttempts   int           `yaml:"publish_attempts"`
		PublishBackoff    time.Duration `yaml:"publish_backoff"`
		PublishMaxBackoff time.Duration `yaml:"publish_max_backoff"`
		// BreakerFailures consecutive publish failures open the breaker for
		// BreakerCooldown. Zero disables the breaker.
		BreakerFailures int           `yaml:"breaker_failures"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"bus"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string `yaml:"jwt_secret"`
		RequireExpiry  bool   `yaml:"require_expiry"`
		TokenQueryName string `yaml:"token_query_name"`
	} `yaml:"auth"`

	Presence struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		TTL               time.Duration `yaml:"ttl"`
	} `yaml:"presence"`

	Stats struct {
		// CacheTTL bounds how stale a stats response may be. Zero disables caching.
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"stats"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// envOverrides lists the settings that deployments commonly inject.
// Unset variables leave the file/default value in place.
type envOverrides struct {
	InstanceID    string `envconfig:"INSTANCE_ID"`
	ServerAddress string `envconfig:"SERVER_ADDRESS"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	BusBackend    string `envconfig:"BUS_BACKEND"`
	RedisEnabled  *bool  `envconfig:"REDIS_ENABLED"`
	RedisAddress  string `envconfig:"REDIS_ADDRESS"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       *int   `envconfig:"REDIS_DB"`
	JaegerURL     string `envconfig:"JAEGER_URL"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Socket
	if c.Socket.Path == "" {
		return fmt.Errorf("socket.path must not be empty")
	}
	if c.Socket.PingInterval <= 0 {
		return fmt.Errorf("socket.ping_interval must be > 0")
	}
	if c.Socket.PongTimeout <= c.Socket.PingInterval {
		return fmt.Errorf("socket.pong_timeout must be greater than socket.ping_interval")
	}
	if c.Socket.WriteTimeout <= 0 {
		return fmt.Errorf("socket.write_timeout must be > 0")
	}
	if c.Socket.SendBufferSize <= 0 {
		return fmt.Errorf("socket.send_buffer_size must be > 0")
	}
	if c.Socket.MaxMessageBytes <= 0 {
		return fmt.Errorf("socket.max_message_bytes must be > 0")
	}
	if c.Socket.HandlerTimeout <= 0 {
		return fmt.Errorf("socket.handler_timeout must be > 0")
	}

	// Bus
	switch c.Bus.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("bus.backend=redis requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("bus.backend must be \"redis\" or \"memory\", got %q", c.Bus.Backend)
	}
	if c.Bus.PublishAttempts <= 0 {
		return fmt.Errorf("bus.publish_attempts must be > 0")
	}
	if c.Bus.PublishBackoff <= 0 || c.Bus.PublishMaxBackoff < c.Bus.PublishBackoff {
		return fmt.Errorf("bus.publish_backoff must be > 0 and <= bus.publish_max_backoff")
	}
	if c.Bus.BreakerFailures < 0 {
		return fmt.Errorf("bus.breaker_failures must be >= 0")
	}
	if c.Bus.BreakerFailures > 0 && c.Bus.BreakerCooldown <= 0 {
		return fmt.Errorf("bus.breaker_cooldown must be > 0 when bus.breaker_failures > 0")
	}

	// Stats
	if c.Stats.CacheTTL < 0 {
		return fmt.Errorf("stats.cache_ttl must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenQueryName == "" {
		return fmt.Errorf("auth.token_query_name must not be empty")
	}

	// Presence
	if c.Presence.HeartbeatInterval <= 0 {
		return fmt.Errorf("presence.heartbeat_interval must be > 0")
	}
	if c.Presence.TTL <= c.Presence.HeartbeatInterval {
		return fmt.Errorf("presence.ttl must be greater than presence.heartbeat_interval")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// An empty path or a missing file is not an error; the result is always
// validated.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return finish(cfg)
	}

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
// The JWT secret has no default; it must be supplied.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Socket.Path = "/ws"
	cfg.Socket.PingInterval = 25 * time.Second
	cfg.Socket.PongTimeout = 60 * time.Second
	cfg.Socket.WriteTimeout = 10 * time.Second
	cfg.Socket.SendBufferSize = 256
	cfg.Socket.MaxMessageBytes = 64 * 1024
	cfg.Socket.AllowedOrigins = []string{"*"}
	cfg.Socket.HandlerTimeout = 5 * time.Second

	cfg.Bus.Backend = "memory"
	cfg.Bus.PublishAttempts = 3
	cfg.Bus.PublishBackoff = 100 * time.Millisecond
	cfg.Bus.PublishMaxBackoff = 2 * time.Second
	cfg.Bus.BreakerFailures = 5
	cfg.Bus.BreakerCooldown = 10 * time.Second

	cfg.Stats.CacheTTL = 2 * time.Second

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.RequireExpiry = true
	cfg.Auth.TokenQueryName = "token"

	cfg.Presence.HeartbeatInterval = 15 * time.Second
	cfg.Presence.TTL = 45 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if env.InstanceID != "" {
		c.InstanceID = env.InstanceID
	}
	if env.ServerAddress != "" {
		c.Server.Address = env.ServerAddress
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.JWTSecret != "" {
		c.Auth.JWTSecret = env.JWTSecret
	}
	if env.BusBackend != "" {
		c.Bus.Backend = env.BusBackend
	}
	if env.RedisEnabled != nil {
		c.Redis.Enabled = *env.RedisEnabled
	}
	if env.RedisAddress != "" {
		c.Redis.Address = env.RedisAddress
	}
	if env.RedisPassword != "" {
		c.Redis.Password = env.RedisPassword
	}
	if env.RedisDB != nil {
		c.Redis.DB = *env.RedisDB
	}
	if env.JaegerURL != "" {
		c.Tracing.JaegerURL = env.JaegerURL
	}
	return nil
}

// PublishRetry is the backoff policy for bus publishes.
func (c *Config) PublishRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  c.Bus.PublishAttempts,
		InitialDelay: c.Bus.PublishBackoff,
		MaxDelay:     c.Bus.PublishMaxBackoff,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// TracingConfig maps the tracing section onto pkg/tracing.
func (c *Config) TracingConfig(serviceName string) tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		ServiceName: serviceName,
		JaegerURL:   c.Tracing.JaegerURL,
		Environment: c.Tracing.Environment,
		SampleRate:  c.Tracing.SampleRate,
	}
}
