package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/correlation"
)

const (
	mirrorPublishTimeout = 2 * time.Second
	mirrorDrainTimeout   = 5 * time.Second
)

// Mirror publishes locally originated messages to the external bus.
type Mirror interface {
	Publish(ctx context.Context, msg domain.Message) error
}

// Dispatcher sends new messages to the local hub and, if a mirror is set, to the
// bus. Messages received from the bus must go to the hub directly, never here.
type Dispatcher struct {
	local   domain.Broadcaster
	mirror  Mirror
	queue   chan domain.Message
	metrics *metrics.BridgeMetrics

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher starts the background mirror worker when mirror is non-nil.
// bridgeMetrics may be nil.
func NewDispatcher(local domain.Broadcaster, mirror Mirror, queueSize int, bridgeMetrics *metrics.BridgeMetrics) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		local:   local,
		mirror:  mirror,
		queue:   make(chan domain.Message, queueSize),
		metrics: bridgeMetrics,
		done:    make(chan struct{}),
	}
	if mirror != nil {
		d.wg.Add(1)
		go d.runMirror()
	}
	return d
}

func (d *Dispatcher) Mirrored() bool { return d.mirror != nil }

// Broadcast delivers msg locally and queues it for mirroring without blocking.
// Session frames arrive here; mirror order matches call order.
func (d *Dispatcher) Broadcast(msg domain.Message) {
	d.local.Broadcast(msg)
	if d.mirror == nil {
		return
	}

	select {
	case <-d.done:
		return
	default:
	}

	select {
	case d.queue <- msg:
	default:
		if d.metrics != nil {
			d.metrics.MirrorDrops.Inc()
		}
		slog.Warn("Mirror queue full, message not mirrored", "kind", msg.Kind().String(), "capacity", cap(d.queue))
	}
}

// Dispatch delivers msg locally, then publishes it to the bus and returns the
// publish error. Local delivery has happened even when an error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.Message) error {
	d.local.Broadcast(msg)
	if d.mirror == nil {
		return nil
	}
	ctx, _ = correlation.Ensure(ctx)
	return d.mirror.Publish(ctx, msg)
}

// Stop flushes queued mirror messages (bounded by a drain timeout) and stops the worker.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

func (d *Dispatcher) runMirror() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.queue:
			d.publish(context.Background(), msg)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorDrainTimeout)
	defer cancel()

	for {
		select {
		case msg := <-d.queue:
			if ctx.Err() != nil {
				slog.Warn("Mirror drain timed out", "remaining", len(d.queue)+1)
				return
			}
			d.publish(ctx, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(parent context.Context, msg domain.Message) {
	ctx, _ := correlation.Ensure(parent)
	ctx, cancel := context.WithTimeout(ctx, mirrorPublishTimeout)
	defer cancel()

	if err := d.mirror.Publish(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Mirror publish failed", "kind", msg.Kind().String(), "error", err)
	}
}
