package domain

import "errors"

var (
	// ErrProtocol marks a malformed or unsupported frame on a client connection.
	ErrProtocol = errors.New("protocol error")
	// ErrTimeout marks a session whose peer stopped answering liveness probes.
	ErrTimeout = errors.New("heartbeat timeout")
	// ErrConnectionLost marks a transport that went away without a close frame.
	ErrConnectionLost = errors.New("connection lost")
	// ErrTransport marks an unreachable or failed external bus.
	ErrTransport = errors.New("transport error")
	// ErrHubStopped reports a hub that no longer answers queries, as seen by the
	// readiness check when SubscriberCount gives -1.
	ErrHubStopped = errors.New("hub stopped")
)
