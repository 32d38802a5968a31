package handler

import (
	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"browser-proxy-go/internal/metrics"
	"browser-proxy-go/internal/relay"
)

// Relay upgrades the request and relays it to the same path on the browser.
// Requests that are not WebSocket upgrades are passed to fallback.
func (h *ProxyHandler) Relay(fallback echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if !c.IsWebSocket() {
			return fallback(c)
		}

		target := relay.Target{
			URL:    h.service.WebSocketURL(req.URL.Path, req.URL.RawQuery),
			Header: h.service.RelayHeaders(req.Header),
			Route:  metrics.NormalizePath(req.URL.Path),
		}

		ws, err := websocket.Accept(c.Response(), req, &websocket.AcceptOptions{
			OriginPatterns: h.originPatterns,
		})
		if err != nil {
			// Accept has already written the error response.
			h.logger.Warn("websocket upgrade failed", "err", err, "path", req.URL.Path)
			return nil
		}

		if err := h.relays.Relay(req.Context(), ws, target); err != nil {
			h.logger.Debug("relay ended with error", "err", err, "path", req.URL.Path)
		}
		return nil
	}
}
