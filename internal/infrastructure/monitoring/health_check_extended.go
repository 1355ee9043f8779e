package monitoring

import (
	"context"
	"errors"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddSourceStoreCheck verifies the source repository can be read. An
// empty store is healthy.
func (h *HealthChecker) AddSourceStoreCheck(repo ports.SourceRepository, interval, timeout time.Duration) {
	h.AddCheck("source_store", func(ctx context.Context) (bool, error) {
		if _, err := repo.Load(ctx); err != nil && !errors.Is(err, domain.ErrNothingPersisted) {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddPoolCheck reports unhealthy once the session pool has been closed.
func (h *HealthChecker) AddPoolCheck(pool interface{ Closed() bool }, interval, timeout time.Duration) {
	h.AddCheck("session_pool", func(ctx context.Context) (bool, error) {
		if pool.Closed() {
			return false, domain.ErrPoolClosed
		}
		return true, nil
	}, interval, timeout)
}

// GetReadinessStatus returns readiness status for load balancer
func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}
