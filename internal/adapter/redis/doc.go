// Package redis implements the bridge bus on Redis pub/sub with go-redis.
//
// Every command goes through two hooks: MetricsHook records per-command counts and
// latency, CircuitBreakerHook fails fast while Redis is unhealthy so publishes do
// not pile up behind dial timeouts.
package redis
