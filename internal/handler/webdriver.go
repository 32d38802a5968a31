package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CreateSession forwards POST /session. WebDriver bodies are JSON even when
// a client omits the header, so the content type is set before forwarding.
func (h *ProxyHandler) CreateSession(c echo.Context) error {
	header := c.Request().Header.Clone()
	header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	ex, err := h.forward(c, header)
	if err != nil {
		return h.mapError(c, err)
	}
	return h.writeJSON(c, ex)
}

func (h *ProxyHandler) webDriverRoutes() []Route {
	return []Route{
		{http.MethodPost, "/session", KindForwardJSON, h.CreateSession},
		{http.MethodGet, "/session", KindRelay, h.Relay(h.ForwardJSON)},
		{http.MethodGet, "/session/:sessionId", KindRelay, h.Relay(h.ForwardJSON)},
		// Commands such as GET /session/{id}/url, and BiDi sockets on
		// deeper paths.
		{http.MethodGet, "/session/*", KindRelay, h.Relay(h.ForwardJSON)},
		{http.MethodPost, "/session/*", KindForwardJSON, h.ForwardJSON},
		{http.MethodDelete, "/session/*", KindForwardJSON, h.ForwardJSON},
	}
}
