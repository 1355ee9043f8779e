package repositories

import (
	"context"

	"edgeview/internal/core/ports"
	"edgeview/internal/infrastructure/repositories/file"
	"edgeview/internal/infrastructure/repositories/memory"
	redisrepo "edgeview/internal/infrastructure/repositories/redis"
	"edgeview/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory picks the source store backend. A redis backend that
// cannot be reached at startup falls back to the file store.
type RepositoryFactory struct {
	backend     string
	path        string
	key         string
	namespace   string
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		backend:   cfg.Store.Backend,
		path:      cfg.Store.Path,
		key:       cfg.Store.Key,
		namespace: cfg.Store.Namespace,
		logger:    logger,
	}

	if factory.backend == "redis" {
		client, err := redisrepo.NewRedisClient(redisrepo.ClientOptions{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			Namespace: cfg.Store.Namespace,
			LegacyKey: cfg.Store.Key,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to file store",
				"error", err,
				"path", factory.path,
			)
			factory.backend = "file"
		} else {
			factory.redisClient = client
		}
	}

	logger.Infow("using source store", "backend", factory.backend)
	return factory, nil
}

func (f *RepositoryFactory) Backend() string { return f.backend }

func (f *RepositoryFactory) CreateSourceRepository() ports.SourceRepository {
	switch f.backend {
	case "redis":
		return redisrepo.NewSourceRepository(f.redisClient, f.namespace, f.key)
	case "memory":
		return memory.NewSourceRepository()
	default:
		return file.NewSourceRepository(f.path)
	}
}

// RedisClient is nil unless the redis backend is in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
