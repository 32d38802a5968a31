// Package service knows how to reach the browser backend: it builds backend
// URLs, rewrites request headers and forwards single-shot HTTP exchanges.
package service

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"browser-proxy-go/internal/client"
	"browser-proxy-go/internal/config"
	"browser-proxy-go/internal/model"
)

// hopByHopHeaders apply to a single connection and are never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// handshakeHeaders are negotiated per WebSocket handshake. The backend dial
// performs its own handshake, so the client's values must not leak into it.
// Origin is included: Chrome refuses DevTools handshakes that carry one
// unless it was started with --remote-allow-origins.
var handshakeHeaders = []string{
	"Sec-WebSocket-Key",
	"Sec-WebSocket-Version",
	"Sec-WebSocket-Extensions",
	"Sec-WebSocket-Protocol",
	"Sec-WebSocket-Accept",
	"Origin",
}

// ForwardService forwards requests to the configured browser backend.
type ForwardService struct {
	client   *client.BrowserClient
	logger   *slog.Logger
	hostport string
}

// NewForwardService creates a ForwardService for cfg.Forward.
func NewForwardService(c *client.BrowserClient, cfg *config.Config, logger *slog.Logger) (*ForwardService, error) {
	if cfg.Forward.Host == "" || cfg.Forward.Port <= 0 {
		return nil, fmt.Errorf("forward target %q is incomplete", cfg.Forward.Addr())
	}
	return &ForwardService{
		client:   c,
		logger:   logger.With("component", "forward_service"),
		hostport: cfg.Forward.Addr(),
	}, nil
}

// Target returns the backend host:port.
func (s *ForwardService) Target() string {
	return s.hostport
}

// HTTPURL returns the backend URL for an HTTP request to path.
func (s *ForwardService) HTTPURL(path, rawQuery string) string {
	u := url.URL{Scheme: "http", Host: s.hostport, Path: path, RawQuery: rawQuery}
	return u.String()
}

// WebSocketURL returns the backend URL for a WebSocket relay to path.
func (s *ForwardService) WebSocketURL(path, rawQuery string) string {
	u := url.URL{Scheme: "ws", Host: s.hostport, Path: path, RawQuery: rawQuery}
	return u.String()
}

// Forward sends a ProxyRequest to the same path on the browser and returns
// the response. The caller is responsible for closing the response body.
func (s *ForwardService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target := s.HTTPURL(pr.Path, pr.RawQuery)
	header := s.ForwardHeaders(pr.Header)

	// A nil body keeps ContentLength at zero; bytes.Reader lets net/http
	// compute Content-Length from the (possibly normalized) payload.
	var body io.Reader
	if len(pr.Body) > 0 {
		body = bytes.NewReader(pr.Body)
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"bytes", len(pr.Body),
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, target, header, body)
	if err != nil {
		return nil, fmt.Errorf("forward to browser: %w", err)
	}
	return resp, nil
}

// ForwardHeaders returns the headers for a single-shot HTTP forward. On top
// of RewriteHeaders it drops Content-Length, which is recomputed from the
// forwarded body, and Accept-Encoding, so the transport negotiates and
// decodes compression itself.
func (s *ForwardService) ForwardHeaders(src http.Header) http.Header {
	dst := RewriteHeaders(src, s.hostport)
	dst.Del("Content-Length")
	dst.Del("Accept-Encoding")
	return dst
}

// RelayHeaders returns the headers for the backend WebSocket handshake.
func (s *ForwardService) RelayHeaders(src http.Header) http.Header {
	dst := RewriteHeaders(src, s.hostport)
	for _, h := range handshakeHeaders {
		dst.Del(h)
	}
	return dst
}

// RewriteHeaders returns a new header map for a request to the backend at
// hostport. Host is overridden with hostport because the inbound Host names
// the proxy, not the browser. Hop-by-hop headers, including any listed in
// Connection, are dropped. Every other header passes through unchanged, so
// cookies and authorization reach the browser. src is not modified.
func RewriteHeaders(src http.Header, hostport string) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dst.Del(name)
			}
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
	dst.Set("Host", hostport)
	return dst
}
