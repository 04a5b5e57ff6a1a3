package domain

// Recipient is the send-only side of a session's mailbox. Implementations must
// be comparable (pointer types) so the same handle can be added and removed.
// Deliver must never block; it reports false when the mailbox is closed or full.
type Recipient interface {
	Deliver(msg Message) bool
}

// Broadcaster accepts messages for delivery to every live recipient.
type Broadcaster interface {
	Broadcast(msg Message)
}

// Registry is the membership side of the hub.
type Registry interface {
	Broadcaster
	Subscribe(r Recipient)
	Unsubscribe(r Recipient)
}
