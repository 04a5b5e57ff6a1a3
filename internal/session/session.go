package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/broadcast"
	"github.com/pscheid92/fanout/internal/domain"
)

// closeGrace bounds the final close frame write during teardown.
const closeGrace = time.Second

// State is the lifecycle position of a Session.
type State int32

const (
	StateStarting State = iota
	StateActive
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config holds the per-session tunables.
type Config struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	MailboxSize       int
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		ClientTimeout:     30 * time.Second,
		WriteTimeout:      5 * time.Second,
		MaxMessageSize:    64 * 1024,
		MailboxSize:       64,
	}
}

// Session owns one client connection. Create with New, then call Run exactly once.
type Session struct {
	id        uuid.UUID
	conn      *websocket.Conn
	registry  domain.Registry
	publisher domain.Broadcaster
	mailbox   *broadcast.Mailbox
	clock     clockwork.Clock
	cfg       Config
	metrics   *metrics.WebSocketMetrics
	logger    *slog.Logger

	state atomic.Int32

	heartbeatMu   sync.Mutex
	lastHeartbeat time.Time

	frames   chan domain.Message
	readErr  chan error
	writeErr chan error
	done     chan struct{}

	teardownOnce sync.Once
	wg           sync.WaitGroup
}

// New wraps an upgraded connection. Inbound frames go to publisher; if publisher is
// nil they are broadcast straight through registry. wsMetrics may be nil.
func New(conn *websocket.Conn, registry domain.Registry, publisher domain.Broadcaster, clock clockwork.Clock, cfg Config, wsMetrics *metrics.WebSocketMetrics) *Session {
	if publisher == nil {
		publisher = registry
	}
	id := uuid.New()
	return &Session{
		id:        id,
		conn:      conn,
		registry:  registry,
		publisher: publisher,
		mailbox:   broadcast.NewMailbox(cfg.MailboxSize),
		clock:     clock,
		cfg:       cfg,
		metrics:   wsMetrics,
		logger:    slog.With("component", "session", "session_id", id.String()),
		frames:    make(chan domain.Message),
		readErr:   make(chan error, 1),
		writeErr:  make(chan error, 1),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Recipient is the handle this session registers with the hub.
func (s *Session) Recipient() domain.Recipient { return s.mailbox }

func (s *Session) LastHeartbeat() time.Time {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	return s.lastHeartbeat
}

func (s *Session) touch() {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	s.lastHeartbeat = s.clock.Now()
}

// Run serves the connection until the peer closes, the heartbeat times out, a
// protocol error occurs, or ctx is cancelled. It returns nil for a peer close or
// shutdown, and otherwise an error matching domain.ErrTimeout, domain.ErrProtocol
// or domain.ErrConnectionLost. The hub subscription is always removed before Run
// returns, including when the loop panics.
func (s *Session) Run(ctx context.Context) (err error) {
	shutdown := false
	defer func() { s.teardown(err, shutdown) }()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session panic recovered", "panic", r)
			err = fmt.Errorf("session panic: %v", r)
		}
	}()

	s.touch()
	s.state.Store(int32(StateActive))
	s.registry.Subscribe(s.mailbox)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	s.logger.Debug("Session active", "remote_addr", s.conn.RemoteAddr().String())

	s.configureConn()

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	ticker := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdown = true
			return nil

		case msg := <-s.frames:
			if s.metrics != nil {
				s.metrics.FramesReceived.WithLabelValues(msg.Kind().String()).Inc()
			}
			s.publisher.Broadcast(msg)

		case err := <-s.readErr:
			return classifyReadError(err)

		case err := <-s.writeErr:
			return fmt.Errorf("%w: write: %v", domain.ErrConnectionLost, err)

		case <-ticker.Chan():
			if elapsed := s.clock.Since(s.LastHeartbeat()); elapsed > s.cfg.ClientTimeout {
				s.logger.Info("Heartbeat timeout", "elapsed", elapsed, "timeout", s.cfg.ClientTimeout)
				return domain.ErrTimeout
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				if s.metrics != nil {
					s.metrics.PingFailures.Inc()
				}
				return fmt.Errorf("%w: ping: %v", domain.ErrConnectionLost, err)
			}
		}
	}
}

func (s *Session) configureConn() {
	if s.cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	}

	s.conn.SetPingHandler(func(data string) error {
		s.touch()
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})

	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	// The close frame is answered during teardown with our own status code.
	s.conn.SetCloseHandler(func(int, string) error { return nil })
}

// readLoop is the only reader of the connection. Control frames are handled
// inside ReadMessage by the handlers installed in configureConn.
func (s *Session) readLoop() {
	defer s.wg.Done()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr <- err
			return
		}
		s.touch()

		var msg domain.Message
		if messageType == websocket.TextMessage {
			msg = domain.TextMessage(string(data))
		} else {
			msg = domain.BinaryMessage(data)
		}

		select {
		case s.frames <- msg:
		case <-s.done:
			return
		}
	}
}

// writeLoop is the only data writer of the connection.
func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case msg, ok := <-s.mailbox.Messages():
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(frameType(msg), msg.Bytes()); err != nil {
				s.writeErr <- err
				return
			}
			if s.metrics != nil {
				s.metrics.FramesSent.Inc()
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) teardown(err error, shutdown bool) {
	s.teardownOnce.Do(func() {
		s.state.Store(int32(StateClosing))

		s.registry.Unsubscribe(s.mailbox)
		s.mailbox.Close()
		close(s.done)

		code, text := closeStatus(err, shutdown)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(closeGrace))
		_ = s.conn.Close()
		s.wg.Wait()

		s.state.Store(int32(StateTerminated))

		reason := closeReason(err, shutdown)
		unsent := s.mailbox.Len()
		if s.metrics != nil {
			s.metrics.ActiveSessions.Dec()
			s.metrics.SessionsClosed.WithLabelValues(reason).Inc()
		}
		if err != nil && !errors.Is(err, domain.ErrConnectionLost) {
			s.logger.Warn("Session closed", "reason", reason, "unsent", unsent, "error", err)
		} else {
			s.logger.Debug("Session closed", "reason", reason, "unsent", unsent)
		}
	})
}

func frameType(msg domain.Message) int {
	if msg.IsText() {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// classifyReadError maps a ReadMessage failure onto the session error taxonomy.
// A regular close frame from the peer yields nil.
func classifyReadError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseAbnormalClosure {
			return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
		}
		return nil
	}

	var netErr net.Error
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	return fmt.Errorf("%w: %v", domain.ErrProtocol, err)
}

func closeStatus(err error, shutdown bool) (int, string) {
	switch {
	case shutdown:
		return websocket.CloseGoingAway, "server shutting down"
	case err == nil:
		return websocket.CloseNormalClosure, ""
	case errors.Is(err, domain.ErrTimeout):
		return websocket.ClosePolicyViolation, "heartbeat timeout"
	case errors.Is(err, domain.ErrProtocol):
		return websocket.CloseProtocolError, "protocol error"
	default:
		return websocket.CloseInternalServerErr, ""
	}
}

func closeReason(err error, shutdown bool) string {
	switch {
	case shutdown:
		return "shutdown"
	case err == nil:
		return "peer_close"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrProtocol):
		return "protocol_error"
	case errors.Is(err, domain.ErrConnectionLost):
		return "connection_lost"
	default:
		return "internal_error"
	}
}
