package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"browser-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request. Upgraded WebSocket requests are counted but kept
// out of the in-flight gauge and the latency histogram: their handler runs
// for the lifetime of the relay, which the relay metrics already cover.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			upgrade := isUpgrade(c.Request())
			if !upgrade {
				m.RequestsInFlight.Inc()
				defer m.RequestsInFlight.Dec()
			}

			start := time.Now()
			err := next(c)

			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)
			status := strconv.Itoa(statusOf(c, err))

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			if !upgrade || c.Response().Status != http.StatusSwitchingProtocols {
				m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())
			}

			return err
		}
	}
}

// statusOf returns the status the client will see. An *echo.HTTPError is
// written by Echo's error handler after the middleware chain returns.
func statusOf(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}
