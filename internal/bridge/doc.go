// Package bridge mirrors hub traffic through an external publish/subscribe bus so
// that several instances sharing one channel deliver the same messages.
//
// Publish and Run are independent: a bus that accepts publishes but drops the
// subscription (or the reverse) degrades one direction only. Messages arriving from
// the bus go straight to the local hub and are never published again.
package bridge
