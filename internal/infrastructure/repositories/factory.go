package repositories

import (
	"context"
	"errors"

	"eventsphere/internal/core/ports"
	"eventsphere/internal/infrastructure/distributed"
	"eventsphere/internal/infrastructure/repositories/memory"
	redisrepo "eventsphere/internal/infrastructure/repositories/redis"
	"eventsphere/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRedisRequired is returned when the redis bus is configured but Redis
// could not be reached. Falling back to memory would silently cut this
// process off from the others.
var ErrRedisRequired = errors.New("redis bus configured but Redis is unavailable")

// RepositoryFactory creates the storage and transport adapters, using Redis
// when it is enabled and reachable and memory otherwise.
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis if enabled.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			if cfg.Bus.Backend == "redis" {
				return nil, errors.Join(ErrRedisRequired, err)
			}
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
		} else {
			factory.useRedis = true
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// NewRepositoryFactoryWithClient wraps an existing client. Used by tests.
func NewRepositoryFactoryWithClient(cfg *config.Config, client *redis.Client, logger *zap.SugaredLogger) *RepositoryFactory {
	return &RepositoryFactory{
		cfg:         cfg,
		useRedis:    client != nil,
		redisClient: client,
		logger:      logger,
	}
}

func (f *RepositoryFactory) UsesRedis() bool {
	return f.useRedis
}

// RedisClient is nil when running on memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) CreateStatsRepository() ports.StatsRepository {
	if f.useRedis {
		return redisrepo.NewRedisStatsRepository(f.redisClient)
	}
	return memory.NewMemoryStatsRepository()
}

func (f *RepositoryFactory) CreateEventRepository() ports.EventRepository {
	if f.useRedis {
		return redisrepo.NewRedisEventRepository(f.redisClient)
	}
	return memory.NewMemoryEventRepository()
}

func (f *RepositoryFactory) CreatePresenceRegistry() ports.PresenceRegistry {
	if f.useRedis {
		return distributed.NewSharedPresenceRegistry(f.redisClient, f.cfg.InstanceID, f.cfg.Presence.TTL, f.logger)
	}
	return distributed.NewMemoryPresenceRegistry()
}

// CreateMessageBus honours bus.backend.
func (f *RepositoryFactory) CreateMessageBus() (ports.MessageBus, error) {
	if f.cfg.Bus.Backend == "redis" {
		if !f.useRedis {
			return nil, ErrRedisRequired
		}
		return distributed.NewRedisBus(f.redisClient, f.logger), nil
	}
	f.logger.Warn("using in-process message bus, notifications will not cross processes")
	return distributed.NewMemoryBus(), nil
}

func (f *RepositoryFactory) Close() error {
	return redisrepo.CloseRedisClient(f.redisClient)
}

// HealthCheck pings Redis when in use.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
