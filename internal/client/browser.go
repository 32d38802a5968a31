// Package client provides the upstream HTTP client for the browser's
// WebDriver and DevTools HTTP endpoints.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"browser-proxy-go/internal/config"
	"browser-proxy-go/internal/metrics"
	"browser-proxy-go/internal/model"
)

// BrowserClient sends requests to the browser backend.
type BrowserClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBrowserClient creates a BrowserClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBrowserClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BrowserClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Forward.IdleConnections,
		MaxIdleConnsPerHost: cfg.Forward.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BrowserClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Forward.Timeout(),
			// The browser's redirects belong to the automation client, not to us.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "browser_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the browser and returns the raw response.
// The caller is responsible for closing the response body.
func (c *BrowserClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	method := metrics.NormalizeMethod(req.Method)
	path := metrics.NormalizePath(req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	elapsed := time.Since(start)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
		c.metrics.UpstreamResponses.WithLabelValues(method, status, path).Inc()
	}
	c.logger.Debug("browser request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	)

	if err != nil {
		return nil, fmt.Errorf("browser request: %w", err)
	}
	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream builds and executes a request and returns the response body as a stream.
// The caller is responsible for closing the returned ReadCloser.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *BrowserClient) DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}
