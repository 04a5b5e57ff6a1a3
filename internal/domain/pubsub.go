package domain

import (
	"context"
)

// Bus is an external publish/subscribe transport. Payloads are opaque.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription delivers payloads received on one channel. Messages is closed
// when the subscription drops or is closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
