package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// DevTools forwards GET /devtools/* as plain text. Paths under page/ belong
// to the page relay and are not handled here.
func (h *ProxyHandler) DevTools(c echo.Context) error {
	if strings.HasPrefix(c.Param("*"), "page/") {
		return echo.ErrNotFound
	}
	return h.ForwardText(c)
}

func (h *ProxyHandler) cdpRoutes() []Route {
	return []Route{
		{http.MethodGet, "/json", KindForwardJSON, h.ForwardJSON},
		{http.MethodGet, "/json/*", KindForwardAuto, h.ForwardAuto},
		{http.MethodPut, "/json/*", KindForwardAuto, h.ForwardAuto},
		{http.MethodGet, "/devtools/page/*", KindRelay, h.Relay(h.ForwardText)},
		{http.MethodGet, "/devtools/browser/*", KindRelay, h.Relay(h.ForwardText)},
		{http.MethodGet, "/devtools/*", KindForwardText, h.DevTools},
	}
}
