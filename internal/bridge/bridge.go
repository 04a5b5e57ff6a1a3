package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

// Config names the external bus and the channel mirrored through it.
type Config struct {
	Endpoint string
	Channel  string
}

// Bridge publishes local broadcasts to the bus and feeds bus messages into a
// local broadcaster. The config is fixed for the lifetime of a Bridge.
type Bridge struct {
	cfg     Config
	bus     domain.Bus
	echoes  *echoFilter
	live    atomic.Bool
	metrics *metrics.BridgeMetrics
	logger  *slog.Logger
}

// New creates a Bridge over an already connected bus. bridgeMetrics may be nil.
func New(cfg Config, bus domain.Bus, clock clockwork.Clock, bridgeMetrics *metrics.BridgeMetrics) (*Bridge, error) {
	if cfg.Channel == "" {
		return nil, errors.New("bridge channel is required")
	}
	if bus == nil {
		return nil, errors.New("bridge bus is required")
	}

	instance := uuid.New()
	return &Bridge{
		cfg:     cfg,
		bus:     bus,
		echoes:  newEchoFilter(clock, echoTTL),
		metrics: bridgeMetrics,
		logger:  slog.With("component", "bridge", "channel", cfg.Channel, "instance_id", instance.String()),
	}, nil
}

func (b *Bridge) Config() Config { return b.cfg }

// Publish sends the message payload to the bus. Failures come back as a
// *TransportError and are not retried.
//
// A payload is remembered for echo suppression only while Run holds a
// subscription; without one its copy never comes back.
func (b *Bridge) Publish(ctx context.Context, msg domain.Message) error {
	payload := msg.Bytes()

	recorded := b.live.Load()
	if recorded {
		b.echoes.record(payload)
	}
	if err := b.bus.Publish(ctx, b.cfg.Channel, payload); err != nil {
		// A timed out publish may still have reached the bus. Its record is left
		// to expire so the echo stays suppressed.
		if recorded && !isContextError(err) {
			b.echoes.forget(payload)
		}
		if b.metrics != nil {
			b.metrics.PublishFailures.Inc()
		}
		return &TransportError{Op: "publish", Channel: b.cfg.Channel, Err: err}
	}

	if b.metrics != nil {
		b.metrics.Published.Inc()
	}
	return nil
}

// Run subscribes to the channel and broadcasts every received payload to target
// as a Binary message until ctx is cancelled (nil) or the subscription fails
// (*TransportError). Reconnecting is up to the caller.
func (b *Bridge) Run(ctx context.Context, target domain.Broadcaster) error {
	sub, err := b.bus.Subscribe(ctx, b.cfg.Channel)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &TransportError{Op: "subscribe", Channel: b.cfg.Channel, Err: err}
	}
	b.echoes.reset()
	b.live.Store(true)
	defer func() {
		b.live.Store(false)
		if err := sub.Close(); err != nil {
			b.logger.Debug("Failed to close subscription", "error", err)
		}
	}()

	b.logger.Info("Bridge subscriber started", "endpoint", b.cfg.Endpoint)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bridge subscriber stopped")
			return nil

		case payload, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return &TransportError{Op: "receive", Channel: b.cfg.Channel, Err: errSubscriptionClosed}
			}

			if b.echoes.consume(payload) {
				if b.metrics != nil {
					b.metrics.EchoesSuppressed.Inc()
				}
				continue
			}

			if b.metrics != nil {
				b.metrics.Received.Inc()
			}
			target.Broadcast(domain.BinaryMessage(payload))
		}
	}
}

// CheckSubscriber fails while Run holds no subscription, e.g. between restarts.
func (b *Bridge) CheckSubscriber(context.Context) error {
	if !b.live.Load() {
		return &TransportError{Op: "subscribe", Channel: b.cfg.Channel, Err: errNotSubscribed}
	}
	return nil
}

// Ping checks that the bus is reachable.
func (b *Bridge) Ping(ctx context.Context) error {
	if err := b.bus.Ping(ctx); err != nil {
		return &TransportError{Op: "ping", Channel: b.cfg.Channel, Err: err}
	}
	return nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
