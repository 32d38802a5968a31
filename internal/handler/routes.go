package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind says what a route does with a request.
type Kind string

const (
	KindForwardJSON Kind = "forward-json" // single-shot forward, JSON answer
	KindForwardAuto Kind = "forward-auto" // JSON or raw text per backend content type
	KindForwardText Kind = "forward-text" // single-shot forward, raw answer
	KindRelay       Kind = "relay"        // WebSocket relay
	KindLocal       Kind = "local"        // answered by the proxy itself
)

// Route is one entry of the route table.
type Route struct {
	Method  string
	Path    string
	Kind    Kind
	Handler echo.HandlerFunc
}

// Routes returns the route table. It is built once at startup.
func Routes(proxy *ProxyHandler, health *HealthHandler) []Route {
	routes := []Route{
		{http.MethodGet, "/healthz", KindLocal, health.Healthz},
		{http.MethodGet, "/proxy/status", KindLocal, health.Status},
	}
	routes = append(routes, proxy.webDriverRoutes()...)
	routes = append(routes, proxy.cdpRoutes()...)
	return routes
}

// RegisterRoutes wires the route table onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	for _, r := range Routes(proxy, health) {
		e.Add(r.Method, r.Path, r.Handler)
	}
}
