package httpserver

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
)

// recordingProducer captures messages instead of fanning them out.
type recordingProducer struct {
	mu          sync.Mutex
	broadcasts  []domain.Message
	dispatches  []domain.Message
	dispatchErr error
	mirrored    bool
}

func (p *recordingProducer) Broadcast(msg domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, msg)
}

func (p *recordingProducer) Dispatch(_ context.Context, msg domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, msg)
	return p.dispatchErr
}

func (p *recordingProducer) Mirrored() bool { return p.mirrored }

func (p *recordingProducer) broadcasted() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Message(nil), p.broadcasts...)
}

func (p *recordingProducer) dispatched() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Message(nil), p.dispatches...)
}

// nopRegistry satisfies domain.Registry for tests that never upgrade.
type nopRegistry struct{}

func (nopRegistry) Subscribe(domain.Recipient)   {}
func (nopRegistry) Unsubscribe(domain.Recipient) {}
func (nopRegistry) Broadcast(domain.Message)     {}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		AppURL:                  "http://localhost:7070",
		Port:                    "0",
		HeartbeatInterval:       10 * time.Second,
		ClientTimeout:           30 * time.Second,
		WriteTimeout:            5 * time.Second,
		MaxMessageSize:          65536,
		MailboxSize:             64,
		BridgeChannel:           "events",
		MirrorQueueSize:         256,
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     100,
		ConnectionRatePerIP:     100,
		ConnectionBurst:         100,
		ProducerRateLimit:       100,
		ProducerBurst:           100,
	}
}

type serverOption func(*config.Config, *Dependencies)

func withConfig(fn func(*config.Config)) serverOption {
	return func(cfg *config.Config, _ *Dependencies) { fn(cfg) }
}

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(_ *config.Config, deps *Dependencies) { deps.HealthChecks = checks }
}

func withRegistry(r domain.Registry) serverOption {
	return func(_ *config.Config, deps *Dependencies) { deps.Registry = r }
}

func withMetrics() serverOption {
	return func(_ *config.Config, deps *Dependencies) {
		reg := metrics.NewRegistry()
		deps.Metrics = reg
		deps.HTTPMetrics = metrics.NewHTTPMetrics(reg)
		deps.WebSocketMetrics = metrics.NewWebSocketMetrics(reg)
	}
}

func newTestServer(t *testing.T, producer Producer, opts ...serverOption) *Server {
	t.Helper()

	cfg := testConfig()
	deps := Dependencies{
		Registry: nopRegistry{},
		Producer: producer,
		Clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	srv := NewServer(cfg, deps)
	t.Cleanup(srv.CloseSessions)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}
