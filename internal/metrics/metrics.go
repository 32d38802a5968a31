// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for HTTP latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Relay durations span seconds to hours; a browser session can stay open for a long time.
var relayBuckets = []float64{1, 5, 15, 60, 300, 900, 3600, 14400}

// Relay directions.
const (
	DirectionToBackend = "to_backend"
	DirectionToClient  = "to_client"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RelaysActive      prometheus.Gauge
	RelaysTotal       *prometheus.CounterVec
	RelayDuration     prometheus.Histogram
	RelayDialFailures prometheus.Counter
	RelayMessages     *prometheus.CounterVec
	RelayBytes        *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "browser_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browser_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "browser_proxy_upstream_request_duration_seconds",
			Help:    "Browser backend HTTP call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "path_prefix"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_proxy_upstream_responses_total",
			Help: "Total browser backend responses by method and status code; status_code is \"error\" when no response arrived.",
		}, []string{"method", "status_code", "path_prefix"}),

		RelaysActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browser_proxy_relays_active",
			Help: "Number of WebSocket relays currently open.",
		}),

		RelaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_proxy_relays_total",
			Help: "Total WebSocket relays by path prefix.",
		}, []string{"path_prefix"}),

		RelayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "browser_proxy_relay_duration_seconds",
			Help:    "Lifetime of completed WebSocket relays in seconds.",
			Buckets: relayBuckets,
		}),

		RelayDialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "browser_proxy_relay_dial_failures_total",
			Help: "Backend WebSocket handshakes that failed.",
		}),

		RelayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_proxy_relay_messages_total",
			Help: "WebSocket messages forwarded by direction.",
		}, []string{"direction"}),

		RelayBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_proxy_relay_bytes_total",
			Help: "WebSocket payload bytes forwarded by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RelaysActive,
		m.RelaysTotal,
		m.RelayDuration,
		m.RelayDialFailures,
		m.RelayMessages,
		m.RelayBytes,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
// Longer prefixes come first so /devtools/page wins over /devtools.
var knownPrefixes = []string{
	"/devtools/page",
	"/devtools/browser",
	"/devtools",
	"/session",
	"/json",
	"/healthz",
	"/proxy/status",
	"/metrics",
}

// NormalizePath returns a bounded path label for Prometheus metrics.
// Session and target ids never reach a label.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
