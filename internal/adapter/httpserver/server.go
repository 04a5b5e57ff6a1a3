package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
	"github.com/pscheid92/fanout/internal/session"
)

// Producer is the outbound path for messages entering through HTTP or a
// session. Broadcast never blocks; Dispatch also waits for the mirror publish.
type Producer interface {
	domain.Broadcaster
	Dispatch(ctx context.Context, msg domain.Message) error
	Mirrored() bool
}

// Dependencies are the collaborators the server routes requests to.
type Dependencies struct {
	Registry     domain.Registry
	Producer     Producer
	Clock        clockwork.Clock
	HealthChecks []HealthCheck

	Metrics          *prometheus.Registry
	HTTPMetrics      *metrics.HTTPMetrics
	WebSocketMetrics *metrics.WebSocketMetrics
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	registry     domain.Registry
	producer     Producer
	clock        clockwork.Clock
	healthChecks []HealthCheck

	promRegistry *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	wsMetrics    *metrics.WebSocketMetrics

	upgrader    websocket.Upgrader
	checkOrigin func(*http.Request) bool
	limits      *ConnectionLimits
	sessionCfg  session.Config

	// sessions outlive their HTTP request from echo's point of view, so
	// they hang off their own context and are tracked for shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	mu         sync.Mutex
	closing    bool
	sessions   sync.WaitGroup

	startTime time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		echo:         e,
		config:       cfg,
		registry:     deps.Registry,
		producer:     deps.Producer,
		clock:        clock,
		healthChecks: deps.HealthChecks,
		promRegistry: deps.Metrics,
		httpMetrics:  deps.HTTPMetrics,
		wsMetrics:    deps.WebSocketMetrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin is checked before the upgrade so rejections can be counted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		checkOrigin: newOriginChecker(cfg.AppURL, cfg.AppEnv == "development"),
		limits: NewConnectionLimits(clock, int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP,
			cfg.ConnectionRatePerIP, cfg.ConnectionBurst),
		sessionCfg: sessionConfig(cfg),
		baseCtx:    ctx,
		cancelBase: cancel,
		startTime:  clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ClientTimeout:     cfg.ClientTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		MaxMessageSize:    cfg.MaxMessageSize,
		MailboxSize:       cfg.MailboxSize,
	}
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then closes every live session with a
// going-away frame and waits for their teardown until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
	}

	s.CloseSessions()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("All websocket sessions closed")
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for websocket sessions: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}

// CloseSessions refuses new upgrades and cancels the context of every live
// session. It does not wait.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancelBase()
}

// trackSession registers a session for shutdown. It returns false once
// CloseSessions has been called.
func (s *Server) trackSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}
