package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllGroupsRegisterOnOneRegistry(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewHubMetrics(reg)
		NewWebSocketMetrics(reg)
		NewBridgeMetrics(reg)
		NewBusMetrics(reg)
		NewHTTPMetrics(reg)
	})
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	hub := NewHubMetrics(reg)
	hub.Broadcasts.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fanout_hub_broadcasts_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSkipPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/metrics", true},
		{"/ws", true},
		{"/ws/", true},
		{"/health/live", true},
		{"/health/ready", true},
		{"/broadcast", false},
		{"/ws/json/json/stuff", false},
		{"/version", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, skipPath(tt.path))
		})
	}
}

func TestHTTPMiddleware_RecordsRoute(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.POST("/broadcast", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader("x")))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "/broadcast", "202")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}
