package app

import (
	"context"
	"sync"

	"github.com/pscheid92/fanout/internal/domain"
)

type recorder struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (r *recorder) Broadcast(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = string(m.Bytes())
	}
	return out
}

// fakeMirror records publishes. When gate is set, each Publish signals entered and
// waits for gate before returning.
type fakeMirror struct {
	mu      sync.Mutex
	msgs    []domain.Message
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (m *fakeMirror) Publish(ctx context.Context, msg domain.Message) error {
	if m.gate != nil {
		m.entered <- struct{}{}
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *fakeMirror) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.msgs))
	for i, msg := range m.msgs {
		out[i] = string(msg.Bytes())
	}
	return out
}
