// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/browser-proxy/config.toml",
	"configs/config.toml",
}

// reservedPrefixes are routes served by the proxy; metrics.path must not shadow them.
var reservedPrefixes = []string{"/session", "/json", "/devtools", "/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string `kong:"help='Listen host (overrides config).',env='HOST'"`
	ListenPort  int    `kong:"short='p',help='Listen port (overrides config).',env='LISTEN_PORT'"`
	ForwardHost string `kong:"help='Browser debugging host (overrides config).',env='FORWARD_HOST'"`
	ForwardPort int    `kong:"help='Browser debugging port (overrides config).',env='FORWARD_PORT'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Forward ForwardConfig `toml:"forward"`
	Relay   RelayConfig   `toml:"relay"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (9222)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ForwardConfig describes the single browser backend every route forwards to.
type ForwardConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"` // 0 means "use default" (9221)
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// RelayConfig tunes WebSocket relays.
type RelayConfig struct {
	DialTimeoutSeconds int      `toml:"dial_timeout_seconds"`
	QueueSize          int      `toml:"queue_size"`
	MaxMessageBytes    int64    `toml:"max_message_bytes"`
	OriginPatterns     []string `toml:"origin_patterns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/browser-proxy/config.toml then configs/config.toml. Finding nothing is
// not an error: the proxy then runs on defaults.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.ListenPort != 0 {
		c.Server.Port = cli.ListenPort
	}
	if cli.ForwardHost != "" {
		c.Forward.Host = cli.ForwardHost
	}
	if cli.ForwardPort != 0 {
		c.Forward.Port = cli.ForwardPort
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Forward.Port < 0 || c.Forward.Port > 65535 {
		return fmt.Errorf("forward.port must be 0–65535; got %d", c.Forward.Port)
	}
	if strings.ContainsAny(c.Forward.Host, "/:?#@ ") && net.ParseIP(c.Forward.Host) == nil {
		return fmt.Errorf("forward.host must be a bare hostname or IP; got %q", c.Forward.Host)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Forward.TimeoutSeconds < 0 {
		return fmt.Errorf("forward.timeout_seconds must be non-negative; got %d", c.Forward.TimeoutSeconds)
	}
	if c.Forward.IdleConnections < 0 {
		return fmt.Errorf("forward.idle_connections must be non-negative; got %d", c.Forward.IdleConnections)
	}
	if c.Relay.DialTimeoutSeconds < 0 {
		return fmt.Errorf("relay.dial_timeout_seconds must be non-negative; got %d", c.Relay.DialTimeoutSeconds)
	}
	if c.Relay.QueueSize < 0 {
		return fmt.Errorf("relay.queue_size must be non-negative; got %d", c.Relay.QueueSize)
	}
	if c.Relay.MaxMessageBytes < 0 {
		return fmt.Errorf("relay.max_message_bytes must be non-negative; got %d", c.Relay.MaxMessageBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedPrefixes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// TOML cannot distinguish an explicit 0 from an omitted key, so port=0
// results in the default port.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9222
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Forward.Host == "" {
		c.Forward.Host = "localhost"
	}
	if c.Forward.Port == 0 {
		c.Forward.Port = 9221
	}
	if c.Forward.TimeoutSeconds == 0 {
		c.Forward.TimeoutSeconds = 60
	}
	if c.Forward.IdleConnections == 0 {
		c.Forward.IdleConnections = 16
	}
	if c.Relay.DialTimeoutSeconds == 0 {
		c.Relay.DialTimeoutSeconds = 10
	}
	if c.Relay.QueueSize == 0 {
		c.Relay.QueueSize = 256
	}
	if c.Relay.MaxMessageBytes == 0 {
		c.Relay.MaxMessageBytes = 128 * 1024 * 1024 // CDP screenshots and traces are large
	}
	if len(c.Relay.OriginPatterns) == 0 {
		c.Relay.OriginPatterns = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Addr returns the backend address as host:port.
func (c *ForwardConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Timeout returns the per-request upstream timeout.
func (c *ForwardConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DialTimeout returns the deadline for the backend WebSocket handshake.
func (c *RelayConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
