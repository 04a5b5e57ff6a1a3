package bridge

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
)

const (
	echoTTL           = 30 * time.Second
	echoSweepInterval = 10 * time.Second
)

// echoFilter remembers payloads this instance published so their copy coming back
// from the bus can be dropped. Entries are counted per payload hash: publishing the
// same bytes twice suppresses two arrivals, no more.
type echoFilter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	ttl       time.Duration
	pending   map[uint64][]time.Time
	lastSweep time.Time
}

func newEchoFilter(clock clockwork.Clock, ttl time.Duration) *echoFilter {
	return &echoFilter{
		clock:     clock,
		ttl:       ttl,
		pending:   make(map[uint64][]time.Time),
		lastSweep: clock.Now(),
	}
}

func (f *echoFilter) record(payload []byte) {
	key := xxhash.Sum64(payload)
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending[key] = append(f.pending[key], now.Add(f.ttl))
	if now.Sub(f.lastSweep) >= echoSweepInterval {
		f.sweepLocked(now)
	}
}

// forget undoes the most recent record of payload, used when the publish failed.
func (f *echoFilter) forget(payload []byte) {
	key := xxhash.Sum64(payload)

	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.pending[key]
	if len(entries) == 0 {
		return
	}
	if len(entries) == 1 {
		delete(f.pending, key)
		return
	}
	f.pending[key] = entries[:len(entries)-1]
}

// reset drops every record. Records made under an earlier subscription can no
// longer be matched by an arrival.
func (f *echoFilter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.pending)
	f.lastSweep = f.clock.Now()
}

// consume reports whether payload is one of our own publishes and, if so, uses up
// one record of it.
func (f *echoFilter) consume(payload []byte) bool {
	key := xxhash.Sum64(payload)
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	entries := dropExpired(f.pending[key], now)
	if len(entries) == 0 {
		delete(f.pending, key)
		return false
	}

	if len(entries) == 1 {
		delete(f.pending, key)
	} else {
		f.pending[key] = entries[1:]
	}
	return true
}

func (f *echoFilter) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, entries := range f.pending {
		n += len(entries)
	}
	return n
}

func (f *echoFilter) sweepLocked(now time.Time) {
	for key, entries := range f.pending {
		entries = dropExpired(entries, now)
		if len(entries) == 0 {
			delete(f.pending, key)
			continue
		}
		f.pending[key] = entries
	}
	f.lastSweep = now
}

// dropExpired relies on entries being ordered by expiry.
func dropExpired(entries []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(entries) && !now.Before(entries[i]) {
		i++
	}
	return entries[i:]
}
