package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/domain"
	apperrors "github.com/pscheid92/fanout/internal/platform/errors"
	"github.com/pscheid92/fanout/internal/session"
)

// handleWebSocket upgrades the request and runs a session on the request
// goroutine until the session terminates.
func (s *Server) handleWebSocket(c echo.Context) error {
	req := c.Request()

	if !s.checkOrigin(req) {
		s.rejectUpgrade("origin")
		return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		s.rejectUpgrade(string(reason))
		if reason == LimitReasonGlobal {
			return apperrors.UnavailableError("too many websocket connections", nil).WithContext("reason", reason)
		}
		return apperrors.RateLimitedError("websocket connection limit exceeded").WithContext("reason", reason)
	}
	defer s.limits.Release(ip)

	if !s.trackSession() {
		s.rejectUpgrade("shutting_down")
		return apperrors.UnavailableError("server shutting down", nil)
	}
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(c.Response(), req, nil)
	if err != nil {
		// The upgrader has already written an error response.
		s.rejectUpgrade("handshake")
		slog.DebugContext(req.Context(), "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	sess := session.New(conn, s.registry, s.producer, s.clock, s.sessionCfg, s.wsMetrics)
	slog.DebugContext(req.Context(), "WebSocket session started", "session_id", sess.ID(), "remote_ip", ip)

	if err := sess.Run(s.baseCtx); err != nil && !errors.Is(err, domain.ErrConnectionLost) {
		slog.DebugContext(req.Context(), "WebSocket session ended", "session_id", sess.ID(), "reason", err)
	}
	return nil
}

func (s *Server) rejectUpgrade(reason string) {
	if s.wsMetrics != nil {
		s.wsMetrics.RejectedUpgrades.WithLabelValues(reason).Inc()
	}
}
