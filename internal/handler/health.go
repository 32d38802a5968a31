package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"browser-proxy-go/internal/config"
	"browser-proxy-go/internal/relay"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	relays  *relay.Manager
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, relays *relay.Manager) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, relays: relays}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version, the browser target and the number of
// open relays.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        string(h.version),
		"forward_target": h.cfg.Forward.Addr(),
		"active_relays":  h.relays.Active(),
	})
}
