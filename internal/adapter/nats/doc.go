// Package nats implements the bridge bus on core NATS subjects.
//
// Publishes are flushed so an unreachable server surfaces as an error instead of
// sitting in the client buffer, and they run behind a gobreaker circuit breaker.
// Subscriptions end when the connection is closed for good; reconnects in between
// are handled by the client.
package nats
