package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/sony/gobreaker"
)

const (
	backend                = "nats"
	connectTimeout         = 5 * time.Second
	reconnectWait          = 2 * time.Second
	flushTimeout           = 2 * time.Second
	subscriptionBufferSize = 256

	breakerFailureThreshold = 5
	breakerTimeout          = 30 * time.Second
)

var errConnectionClosed = errors.New("nats connection closed")

// Bus is a domain.Bus on NATS. A subject's subscribers receive every publish,
// including this instance's own.
type Bus struct {
	conn    *nats.Conn
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.BusMetrics
	publish func(ctx context.Context, subject string, data []byte) error

	closed    chan struct{}
	closeOnce sync.Once
}

var _ domain.Bus = (*Bus)(nil)

// Connect dials the NATS URL and retries lost connections indefinitely.
// busMetrics may be nil.
func Connect(url string, busMetrics *metrics.BusMetrics) (*Bus, error) {
	b := newBus(busMetrics)

	conn, err := nats.Connect(url,
		nats.Name("fanout"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(b.handleDisconnect),
		nats.ReconnectHandler(b.handleReconnect),
		nats.ClosedHandler(b.handleClosed),
	)
	if err != nil {
		if busMetrics != nil {
			busMetrics.ConnectionErrors.WithLabelValues(backend).Inc()
		}
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	b.conn = conn
	b.publish = b.publishAndFlush
	return b, nil
}

func newBus(busMetrics *metrics.BusMetrics) *Bus {
	return &Bus{
		breaker: newBreaker(busMetrics),
		metrics: busMetrics,
		closed:  make(chan struct{}),
	}
}

func newBreaker(busMetrics *metrics.BusMetrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        backend,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
			if busMetrics != nil {
				busMetrics.BreakerTransitions.WithLabelValues(backend, to.String()).Inc()
				busMetrics.BreakerState.WithLabelValues(backend).Set(stateToFloat(to))
			}
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	start := time.Now()
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.publish(ctx, channel, payload)
	})
	b.observe("publish", err, time.Since(start))

	if err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *Bus) publishAndFlush(ctx context.Context, subject string, data []byte) error {
	if err := b.conn.Publish(subject, data); err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return b.conn.FlushWithContext(ctx)
}

func (b *Bus) Subscribe(_ context.Context, channel string) (domain.Subscription, error) {
	in := make(chan *nats.Msg, subscriptionBufferSize)
	natsSub, err := b.conn.ChanSubscribe(channel, in)
	if err != nil {
		b.observe("subscribe", err, 0)
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	b.observe("subscribe", nil, 0)

	sub := &subscription{
		sub:        natsSub,
		out:        make(chan []byte, subscriptionBufferSize),
		done:       make(chan struct{}),
		connClosed: b.closed,
	}
	go sub.forward(in)
	return sub, nil
}

func (b *Bus) Ping(ctx context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return errConnectionClosed
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains pending publishes and subscriptions before closing the connection.
func (b *Bus) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrConnectionDraining) {
		return err
	}
	return nil
}

func (b *Bus) handleDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		slog.Warn("NATS disconnected", "error", err)
	}
	if b.metrics != nil {
		b.metrics.ConnectionErrors.WithLabelValues(backend).Inc()
	}
}

func (b *Bus) handleReconnect(conn *nats.Conn) {
	slog.Info("NATS reconnected", "url", conn.ConnectedUrl())
}

func (b *Bus) handleClosed(*nats.Conn) {
	b.closeOnce.Do(func() { close(b.closed) })
	slog.Info("NATS connection closed")
}

func (b *Bus) observe(operation string, err error, elapsed time.Duration) {
	if b.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	b.metrics.OpsTotal.WithLabelValues(backend, operation, status).Inc()
	if elapsed > 0 {
		b.metrics.OpDuration.WithLabelValues(backend, operation).Observe(elapsed.Seconds())
	}
}

type subscription struct {
	sub        *nats.Subscription
	out        chan []byte
	done       chan struct{}
	connClosed <-chan struct{}
	closeOnce  sync.Once
}

func (s *subscription) forward(in <-chan *nats.Msg) {
	defer close(s.out)

	for {
		select {
		case msg := <-in:
			select {
			case s.out <- msg.Data:
			case <-s.done:
				return
			}
		case <-s.connClosed:
			return
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Messages() <-chan []byte { return s.out }

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		uerr := s.sub.Unsubscribe()
		switch {
		case uerr == nil,
			errors.Is(uerr, nats.ErrConnectionClosed),
			errors.Is(uerr, nats.ErrConnectionDraining),
			errors.Is(uerr, nats.ErrBadSubscription):
		default:
			err = uerr
		}
	})
	return err
}
