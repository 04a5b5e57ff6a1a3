package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

const (
	commandTimeout      = 5 * time.Second
	stopTimeout         = 10 * time.Second
	commandChannelSize  = 256
	depthSampleInterval = 1 * time.Second
)

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type subscribeCmd struct {
	baseHubCmd
	recipient domain.Recipient
}

type unsubscribeCmd struct {
	baseHubCmd
	recipient domain.Recipient
}

type broadcastCmd struct {
	baseHubCmd
	message domain.Message
}

type countCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the registry every message flows through. All methods are safe for
// concurrent use; commands are served in arrival order, so messages sent by one
// goroutine are broadcast in the order they were sent.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	members     map[domain.Recipient]struct{}
	metrics     *metrics.HubMetrics
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
}

var _ domain.Registry = (*Hub)(nil)

// NewHub starts the hub goroutine. hubMetrics may be nil.
func NewHub(clock clockwork.Clock, hubMetrics *metrics.HubMetrics) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandChannelSize),
		clock:       clock,
		members:     make(map[domain.Recipient]struct{}),
		metrics:     hubMetrics,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Subscribe adds r to the live set. Subscribing twice is a no-op.
func (h *Hub) Subscribe(r domain.Recipient) {
	h.send(subscribeCmd{recipient: r})
}

// Unsubscribe removes r from the live set. Unknown recipients are ignored.
func (h *Hub) Unsubscribe(r domain.Recipient) {
	h.send(unsubscribeCmd{recipient: r})
}

// Broadcast enqueues msg for every recipient subscribed when the command is served.
func (h *Hub) Broadcast(msg domain.Message) {
	h.send(broadcastCmd{message: msg})
}

// SubscriberCount returns the size of the live set, or -1 if the hub is
// stopped or does not answer within the command timeout.
func (h *Hub) SubscriberCount() int {
	replyCh := make(chan int, 1)
	if !h.send(countCmd{replyChannel: replyCh}) {
		return -1
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-h.done:
		return -1
	case <-timer.Chan():
		slog.Warn("SubscriberCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the hub down and waits for its goroutine to exit. Commands issued
// afterwards are dropped. Mailboxes are left to their sessions.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		if !h.send(stopCmd{}) {
			return
		}

		timeout := h.clock.NewTimer(h.stopTimeout)
		defer timeout.Stop()

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Hub stop timeout exceeded", "timeout", h.stopTimeout)
		}
	})
}

// send reports false when the hub has already exited.
func (h *Hub) send(cmd hubCmd) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r, "subscribers", len(h.members))
			if h.metrics != nil {
				h.metrics.Panics.Inc()
			}
		}
	}()

	depthTicker := h.clock.NewTicker(depthSampleInterval)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			h.sampleDepth()

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case subscribeCmd:
				h.handleSubscribe(c)
			case unsubscribeCmd:
				h.handleUnsubscribe(c)
			case broadcastCmd:
				h.handleBroadcast(c)
			case countCmd:
				c.replyChannel <- len(h.members)
			case stopCmd:
				slog.Info("Hub shutting down", "subscribers", len(h.members))
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleSubscribe(c subscribeCmd) {
	if _, exists := h.members[c.recipient]; exists {
		return
	}
	h.members[c.recipient] = struct{}{}
	h.updateSubscribers()
	slog.Debug("Recipient subscribed", "subscribers", len(h.members))
}

func (h *Hub) handleUnsubscribe(c unsubscribeCmd) {
	if _, exists := h.members[c.recipient]; !exists {
		return
	}
	delete(h.members, c.recipient)
	h.updateSubscribers()
	slog.Debug("Recipient unsubscribed", "subscribers", len(h.members))
}

// Failed deliveries are counted, not pruned: the recipient's own teardown unsubscribes it.
func (h *Hub) handleBroadcast(c broadcastCmd) {
	delivered, failed := 0, 0
	for r := range h.members {
		if r.Deliver(c.message) {
			delivered++
		} else {
			failed++
		}
	}

	if failed > 0 {
		slog.Debug("Broadcast delivery failed for some recipients",
			"kind", c.message.Kind().String(),
			"delivered", delivered,
			"failed", failed,
		)
	}

	if h.metrics != nil {
		h.metrics.Broadcasts.Inc()
		h.metrics.Deliveries.Add(float64(delivered))
		h.metrics.DeliveryFailures.Add(float64(failed))
	}
}

func (h *Hub) updateSubscribers() {
	if h.metrics != nil {
		h.metrics.Subscribers.Set(float64(len(h.members)))
	}
}

func (h *Hub) sampleDepth() {
	depth := len(h.cmdCh)
	if h.metrics != nil {
		h.metrics.CommandChannelDepth.Set(float64(depth))
	}

	if depth > commandChannelSize*4/5 {
		slog.Warn("Command channel near capacity",
			"depth", depth,
			"capacity", cap(h.cmdCh),
		)
	}
}
