package redis

import (
	"context"
	"fmt"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to the Redis URL (redis:// or rediss://), installs the metrics
// and circuit breaker hooks and verifies the connection. busMetrics may be nil.
func NewClient(ctx context.Context, redisURL string, busMetrics *metrics.BusMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	client.AddHook(NewMetricsHook(busMetrics))
	client.AddHook(NewCircuitBreakerHook(busMetrics))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
