// Package httpserver is the echo HTTP surface: the websocket upgrade route,
// the producer routes, health, version and metrics.
package httpserver
