package bridge

import (
	"errors"
	"fmt"

	"github.com/pscheid92/fanout/internal/domain"
)

var (
	errSubscriptionClosed = errors.New("subscription closed")
	errNotSubscribed      = errors.New("subscriber not running")
)

// TransportError reports a failed bus operation. It matches domain.ErrTransport
// and the underlying cause with errors.Is.
type TransportError struct {
	Op      string
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge %s on channel %q: %v", e.Op, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{domain.ErrTransport, e.Err}
}
