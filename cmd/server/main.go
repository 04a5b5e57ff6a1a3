package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/httpserver"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/adapter/nats"
	"github.com/pscheid92/fanout/internal/adapter/redis"
	"github.com/pscheid92/fanout/internal/app"
	"github.com/pscheid92/fanout/internal/bridge"
	"github.com/pscheid92/fanout/internal/broadcast"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
	"github.com/pscheid92/fanout/internal/platform/logging"
	"github.com/pscheid92/fanout/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupBus picks the bus adapter from the BRIDGE_URL scheme.
func setupBus(ctx context.Context, cfg *config.Config, busMetrics *metrics.BusMetrics) (domain.Bus, error) {
	switch cfg.BridgeScheme() {
	case "redis", "rediss":
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := redis.NewClient(ctx, cfg.BridgeURL, busMetrics)
		if err != nil {
			return nil, err
		}
		return redis.NewBus(client), nil
	case "nats":
		return nats.Connect(cfg.BridgeURL, busMetrics)
	default:
		return nil, fmt.Errorf("unsupported bridge scheme %q", cfg.BridgeScheme())
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "build", version.Get().String())

	reg := metrics.NewRegistry()
	hubMetrics := metrics.NewHubMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	bridgeMetrics := metrics.NewBridgeMetrics(reg)
	busMetrics := metrics.NewBusMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	hub := broadcast.NewHub(clock, hubMetrics)

	healthChecks := []httpserver.HealthCheck{{
		Name: "hub",
		Check: func(context.Context) error {
			if hub.SubscriberCount() < 0 {
				return domain.ErrHubStopped
			}
			return nil
		},
	}}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		bus        domain.Bus
		br         *bridge.Bridge
		dispatcher *app.Dispatcher
	)
	if cfg.BridgeEnabled() {
		var err error
		bus, err = setupBus(rootCtx, cfg, busMetrics)
		if err != nil {
			slog.Error("Failed to connect to bridge bus", "scheme", cfg.BridgeScheme(), "error", err)
			os.Exit(1)
		}

		br, err = bridge.New(bridge.Config{Endpoint: cfg.BridgeURL, Channel: cfg.BridgeChannel}, bus, clock, bridgeMetrics)
		if err != nil {
			slog.Error("Failed to create bridge", "error", err)
			os.Exit(1)
		}
		healthChecks = append(healthChecks,
			httpserver.HealthCheck{Name: "bus", Check: br.Ping},
			httpserver.HealthCheck{Name: "bus_subscriber", Check: br.CheckSubscriber},
		)

		dispatcher = app.NewDispatcher(hub, br, cfg.MirrorQueueSize, bridgeMetrics)
		slog.Info("Bridge enabled", "scheme", cfg.BridgeScheme(), "channel", cfg.BridgeChannel)
	} else {
		dispatcher = app.NewDispatcher(hub, nil, cfg.MirrorQueueSize, bridgeMetrics)
		slog.Info("Bridge disabled, running standalone")
	}

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		Registry:         hub,
		Producer:         dispatcher,
		Clock:            clock,
		HealthChecks:     healthChecks,
		Metrics:          reg,
		HTTPMetrics:      httpMetrics,
		WebSocketMetrics: wsMetrics,
	})

	// The supervisor gets its own context so it can be stopped after HTTP.
	bridgeCtx, cancelBridge := context.WithCancel(context.Background())
	defer cancelBridge()

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(srv.Start)

	var bridgeDone chan struct{}
	if br != nil {
		bridgeDone = make(chan struct{})
		supervisor := app.NewSupervisor(br, hub, clock, bridgeMetrics)
		g.Go(func() error {
			defer close(bridgeDone)
			if err := supervisor.Run(bridgeCtx); err != nil {
				return fmt.Errorf("bridge subscriber stopped: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelBridge()
		if bridgeDone != nil {
			<-bridgeDone
		}

		dispatcher.Stop()
		hub.Stop()

		if bus != nil {
			if err := bus.Close(); err != nil {
				slog.Error("Failed to close bridge bus", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
