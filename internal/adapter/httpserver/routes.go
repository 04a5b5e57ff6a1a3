package httpserver

import (
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/platform/correlation"
	apperrors "github.com/pscheid92/fanout/internal/platform/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(apperrors.Middleware(s.errorCounter()))

	s.registerHealthRoutes()
	s.registerWebSocketRoutes()
	s.registerProducerRoutes()

	if s.promRegistry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.promRegistry)))
	}
}

func (s *Server) registerWebSocketRoutes() {
	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/ws/", s.handleWebSocket)
}

func (s *Server) registerProducerRoutes() {
	// Per-route middleware: a prefix-less group would also wrap unmatched paths.
	limits := []echo.MiddlewareFunc{
		newRateLimiter(s.config.ProducerRateLimit, s.config.ProducerBurst),
		middleware.BodyLimit(fmt.Sprintf("%dB", s.config.MaxMessageSize)),
	}

	s.echo.POST("/ws/json/json/stuff", s.handleJSONToJSON, limits...)
	s.echo.POST("/ws/json/pb/stuff", s.handleJSONToProtobuf, limits...)
	s.echo.POST("/ws/pb/pb/stuff", s.handleProtobufToProtobuf, limits...)
	s.echo.POST("/broadcast", s.handleBroadcast, limits...)
}

func (s *Server) errorCounter() *prometheus.CounterVec {
	if s.httpMetrics == nil {
		return nil
	}
	return s.httpMetrics.Errors
}

// correlationMiddleware reuses an incoming X-Request-ID or mints one, and
// carries it in the request context for slog.
func correlationMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: correlation.NewID,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	})
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
