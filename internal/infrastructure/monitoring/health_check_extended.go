package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

// AddDispatcherCheck verifies the dispatch loop still accepts and runs work. probe is expected
// to round-trip through the loop, for example a stats snapshot.
func (h *HealthChecker) AddDispatcherCheck(probe func(ctx context.Context) error, interval, timeout time.Duration) {
	h.AddCheck("dispatcher", probe, interval, timeout)
}
