package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"

	"browser-proxy-go/internal/config"
	"browser-proxy-go/internal/model"
	"browser-proxy-go/internal/relay"
	"browser-proxy-go/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errNotJSON marks a backend answer that should have been JSON but was not.
var errNotJSON = errors.New("backend response is not valid JSON")

// ProxyHandler forwards WebDriver and DevTools traffic to the browser.
type ProxyHandler struct {
	service        *service.ForwardService
	relays         *relay.Manager
	originPatterns []string
	logger         *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ForwardService, relays *relay.Manager, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:        svc,
		relays:         relays,
		originPatterns: cfg.Relay.OriginPatterns,
		logger:         logger.With("component", "proxy_handler"),
	}
}

// exchange is a fully read backend answer.
type exchange struct {
	status      int
	contentType string
	body        []byte
}

// forward sends the inbound request to the same path on the browser and
// reads the whole answer.
func (h *ProxyHandler) forward(c echo.Context, header http.Header) (*exchange, error) {
	req := c.Request()

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}

	resp, err := h.service.Forward(&model.ProxyRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
		Header:   header,
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read browser response: %w", err)
	}
	return &exchange{
		status:      resp.StatusCode,
		contentType: resp.Header.Get(echo.HeaderContentType),
		body:        data,
	}, nil
}

// ForwardJSON forwards the request and answers with the browser's status
// and JSON body, byte for byte. A body that is not JSON is an error.
func (h *ProxyHandler) ForwardJSON(c echo.Context) error {
	ex, err := h.forward(c, c.Request().Header)
	if err != nil {
		return h.mapError(c, err)
	}
	return h.writeJSON(c, ex)
}

// ForwardAuto forwards the request and answers with JSON when the browser
// declares application/json, or with the raw body and the browser's
// content type otherwise.
func (h *ProxyHandler) ForwardAuto(c echo.Context) error {
	ex, err := h.forward(c, c.Request().Header)
	if err != nil {
		return h.mapError(c, err)
	}
	if isJSON(ex.contentType) {
		return h.writeJSON(c, ex)
	}
	return writeText(c, ex)
}

// ForwardText forwards the request and answers with the raw body.
func (h *ProxyHandler) ForwardText(c echo.Context) error {
	ex, err := h.forward(c, c.Request().Header)
	if err != nil {
		return h.mapError(c, err)
	}
	return writeText(c, ex)
}

func (h *ProxyHandler) writeJSON(c echo.Context, ex *exchange) error {
	if len(ex.body) == 0 {
		return c.NoContent(ex.status)
	}
	if !json.Valid(ex.body) {
		return h.mapError(c, errNotJSON)
	}
	return c.JSONBlob(ex.status, ex.body)
}

func writeText(c echo.Context, ex *exchange) error {
	ct := ex.contentType
	if ct == "" {
		ct = echo.MIMETextPlainCharsetUTF8
	}
	return c.Blob(ex.status, ct, ex.body)
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), echo.MIMEApplicationJSON)
}

// mapError answers 500 with a generic message. The log line carries the
// classified cause.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		// Request body rejected by middleware, e.g. over the size limit.
		return he
	}

	req := c.Request()
	h.logger.Error("proxy error",
		"err", err,
		"reason", errorReason(err),
		"method", req.Method,
		"path", req.URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": fmt.Sprintf("Failed to proxy %s request", req.Method),
	})
}

func errorReason(err error) string {
	if errors.Is(err, errNotJSON) {
		return "invalid_json"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "client_disconnected"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "connection"
	}
	return "upstream"
}
