package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/pscheid92/fanout/internal/domain"
)

// memBus is an in-process domain.Bus. Every subscriber of a channel receives every
// publish, including the publisher's own, like Redis pub/sub.
type memBus struct {
	mu           sync.Mutex
	subs         map[string][]*memSub
	published    [][]byte
	publishErr   error
	subscribeErr error
	closed       bool
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string][]*memSub)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, payload)

	for _, sub := range b.subs[channel] {
		sub.ch <- append([]byte(nil), payload...)
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	sub := &memSub{ch: make(chan []byte, 64), bus: b, channel: channel}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub, nil
}

func (b *memBus) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("bus closed")
	}
	return nil
}

func (b *memBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *memBus) setPublishErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

func (b *memBus) subscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *memBus) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// drop closes every subscription on channel, as a lost connection would.
func (b *memBus) drop(channel string) {
	b.mu.Lock()
	subs := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce.Do(func() { close(sub.ch) })
	}
}

type memSub struct {
	ch        chan []byte
	bus       *memBus
	channel   string
	closeOnce sync.Once
}

func (s *memSub) Messages() <-chan []byte { return s.ch }

func (s *memSub) Close() error {
	s.bus.mu.Lock()
	subs := s.bus.subs[s.channel]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.bus.mu.Unlock()

	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (r *recorder) Broadcast(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) snapshot() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.msgs...)
}
