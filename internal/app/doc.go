// Package app wires the core components into the producer and bridge use cases.
//
// Dispatcher is the single entry point for new messages: it broadcasts locally and
// mirrors to the bridge when one is configured. Supervisor keeps the bridge
// subscriber running across dropped connections. Both depend on small interfaces,
// not on the concrete hub or bridge.
package app
