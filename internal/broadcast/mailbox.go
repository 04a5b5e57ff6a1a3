package broadcast

import (
	"sync"

	"github.com/pscheid92/fanout/internal/domain"
)

// Mailbox is a bounded per-session queue. The hub holds it as a domain.Recipient
// (send side); the owning session drains Messages (receive side).
type Mailbox struct {
	mu     sync.Mutex
	ch     chan domain.Message
	closed bool
}

var _ domain.Recipient = (*Mailbox)(nil)

func NewMailbox(size int) *Mailbox {
	if size < 1 {
		size = 1
	}
	return &Mailbox{ch: make(chan domain.Message, size)}
}

// Deliver enqueues msg without blocking. Returns false if the mailbox is closed or full.
func (m *Mailbox) Deliver(msg domain.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	select {
	case m.ch <- msg:
		return true
	default:
		return false
	}
}

// Messages is closed once Close has been called and the buffer is drained.
func (m *Mailbox) Messages() <-chan domain.Message {
	return m.ch
}

// Close is safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// Len reports how many messages are queued and not yet taken by the reader.
func (m *Mailbox) Len() int {
	return len(m.ch)
}
