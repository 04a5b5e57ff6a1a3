package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/pscheid92/fanout/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const subscriptionBufferSize = 256

// Bus is a domain.Bus on Redis PUBLISH/SUBSCRIBE. Redis delivers a publish to every
// subscriber of the channel, the publishing connection's own instance included.
type Bus struct {
	rdb *goredis.Client
}

var _ domain.Bus = (*Bus)(nil)

func NewBus(rdb *goredis.Client) *Bus {
	return &Bus{rdb: rdb}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription. go-redis reconnects
// the subscription on its own; messages published during an outage are lost.
func (b *Bus) Subscribe(ctx context.Context, channel string) (domain.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &subscription{
		ps:   ps,
		out:  make(chan []byte, subscriptionBufferSize),
		done: make(chan struct{}),
	}
	go sub.forward(ps.Channel(goredis.WithChannelSize(subscriptionBufferSize)))
	return sub, nil
}

func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *Bus) Close() error {
	return b.rdb.Close()
}

type subscription struct {
	ps        *goredis.PubSub
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) forward(in <-chan *goredis.Message) {
	defer close(s.out)

	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
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
		err = s.ps.Close()
	})
	return err
}
