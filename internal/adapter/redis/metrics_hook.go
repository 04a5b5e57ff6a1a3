package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const backend = "redis"

// MetricsHook records every Redis command in the bus metrics.
type MetricsHook struct {
	metrics *metrics.BusMetrics
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(busMetrics *metrics.BusMetrics) *MetricsHook {
	return &MetricsHook{metrics: busMetrics}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil && h.metrics != nil {
			h.metrics.ConnectionErrors.WithLabelValues(backend).Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(cmd.Name(), err, time.Since(start))
		return err
	}
}

// ProcessPipelineHook tracks a pipeline as a single operation.
func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observe("pipeline", err, time.Since(start))
		return err
	}
}

func (h *MetricsHook) observe(operation string, err error, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}

	status := "success"
	if err != nil && !errors.Is(err, goredis.Nil) {
		status = "error"
	}

	h.metrics.OpsTotal.WithLabelValues(backend, operation, status).Inc()
	h.metrics.OpDuration.WithLabelValues(backend, operation).Observe(elapsed.Seconds())
}
