package repositories

import (
	"context"

	"meetsignal/internal/core/ports"
	"meetsignal/internal/infrastructure/events"
	"meetsignal/internal/infrastructure/repositories/memory"
	redisrepo "meetsignal/internal/infrastructure/repositories/redis"
	"meetsignal/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory builds the registries and the lifecycle event publisher.
// Registries are always in-memory and owned by the dispatch loop; redis only carries
// lifecycle events and falls back to a no-op publisher when it cannot be reached.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		cfg:      cfg,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, lifecycle events will not be published",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
		}
	}

	return factory
}

func (f *RepositoryFactory) CreateParticipantRegistry() ports.ParticipantRegistry {
	return memory.NewParticipantRepository()
}

func (f *RepositoryFactory) CreateSessionDirectory() ports.SessionDirectory {
	return memory.NewMeetingRepository()
}

// CreateEventPublisher returns a redis-backed bus when redis is available, else a no-op.
func (f *RepositoryFactory) CreateEventPublisher(instanceID string) ports.EventPublisher {
	if !f.useRedis || f.redisClient == nil {
		f.logger.Info("lifecycle events disabled")
		return events.NopPublisher{}
	}

	busCfg := events.DefaultConfig()
	busCfg.Channel = f.cfg.Redis.EventsChannel
	busCfg.QueueSize = f.cfg.Redis.EventsQueue
	busCfg.InstanceID = instanceID

	f.logger.Infow("publishing lifecycle events to Redis",
		"channel", busCfg.Channel,
		"instance_id", instanceID,
	)
	return events.NewRedisEventBus(f.redisClient, busCfg, f.logger)
}

// RedisClient returns the connected client, or nil when redis is not in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	return redisrepo.CloseRedisClient(f.redisClient)
}

// HealthCheck pings redis when it is in use.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
