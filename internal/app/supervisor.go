package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/retry"
)

const (
	restartInitialBackoff = 500 * time.Millisecond
	restartMaxBackoff     = 30 * time.Second
)

// Subscriber is the receiving half of the bridge.
type Subscriber interface {
	Run(ctx context.Context, target domain.Broadcaster) error
}

// Supervisor restarts the bridge subscriber after transport failures, with capped
// exponential backoff, until its context is cancelled. A subscriber that stayed up
// for longer than the backoff cap restarts from the initial backoff.
type Supervisor struct {
	subscriber Subscriber
	target     domain.Broadcaster
	policy     retry.Policy
	metrics    *metrics.BridgeMetrics
}

// NewSupervisor feeds target (the local hub) from subscriber. bridgeMetrics may be nil.
func NewSupervisor(subscriber Subscriber, target domain.Broadcaster, clock clockwork.Clock, bridgeMetrics *metrics.BridgeMetrics) *Supervisor {
	s := &Supervisor{
		subscriber: subscriber,
		target:     target,
		metrics:    bridgeMetrics,
	}
	s.policy = retry.Policy{
		InitialBackoff: restartInitialBackoff,
		MaxBackoff:     restartMaxBackoff,
		ResetAfter:     restartMaxBackoff,
		Clock:          clock,
		OnRetry:        s.onRetry,
	}
	return s
}

// Run blocks until ctx is cancelled (nil) or the subscriber fails with an error
// that is not a transport error.
func (s *Supervisor) Run(ctx context.Context) error {
	err := retry.DoVoid(ctx, s.policy, classifySubscriberError, func() error {
		return s.subscriber.Run(ctx, s.target)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Supervisor) onRetry(attempt int, err error, backoff time.Duration) {
	slog.Warn("Bridge subscriber stopped, restarting", "attempt", attempt, "backoff", backoff, "error", err)
	if s.metrics != nil {
		s.metrics.Restarts.Inc()
	}
}

func classifySubscriberError(err error) retry.Action {
	if errors.Is(err, domain.ErrTransport) {
		return retry.Retry
	}
	return retry.Stop
}
