// Package session runs the server side of one websocket connection.
//
// A Session subscribes its mailbox to the hub, re-broadcasts every application frame
// it reads, writes every hub message it receives, and probes the peer on a fixed
// interval. The run loop multiplexes inbound frames, the heartbeat ticker and writer
// failures; data writes happen on their own goroutine and control frames go through
// WriteControl, so a slow peer never delays liveness checks.
package session
