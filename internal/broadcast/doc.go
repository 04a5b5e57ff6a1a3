// Package broadcast implements the process-wide fan-out hub using the actor pattern.
//
// A single goroutine owns the membership set and serves subscribe, unsubscribe and
// broadcast commands from a buffered channel (no mutexes around the set). Each session
// owns a bounded Mailbox; the hub only ever enqueues into it, so a stalled session
// degrades itself and nobody else.
package broadcast
