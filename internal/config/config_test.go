package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[forward]
host = "127.0.0.1"
port = 9333
timeout_seconds = 15
idle_connections = 4

[relay]
dial_timeout_seconds = 3
queue_size = 32
max_message_bytes = 1048576
origin_patterns = ["localhost:*"]

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Forward.Addr() != "127.0.0.1:9333" {
		t.Errorf("Forward.Addr() = %q, want %q", cfg.Forward.Addr(), "127.0.0.1:9333")
	}
	if cfg.Forward.Timeout() != 15*time.Second {
		t.Errorf("Forward.Timeout() = %v, want %v", cfg.Forward.Timeout(), 15*time.Second)
	}
	if cfg.Relay.DialTimeout() != 3*time.Second {
		t.Errorf("Relay.DialTimeout() = %v, want %v", cfg.Relay.DialTimeout(), 3*time.Second)
	}
	if cfg.Relay.QueueSize != 32 {
		t.Errorf("Relay.QueueSize = %d, want %d", cfg.Relay.QueueSize, 32)
	}
	if cfg.Relay.MaxMessageBytes != 1048576 {
		t.Errorf("Relay.MaxMessageBytes = %d, want %d", cfg.Relay.MaxMessageBytes, 1048576)
	}
	if len(cfg.Relay.OriginPatterns) != 1 || cfg.Relay.OriginPatterns[0] != "localhost:*" {
		t.Errorf("Relay.OriginPatterns = %v, want [localhost:*]", cfg.Relay.OriginPatterns)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	orig := configSearchPaths
	configSearchPaths = []string{filepath.Join(t.TempDir(), "missing.toml")}
	t.Cleanup(func() { configSearchPaths = orig })

	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v; a missing config file should fall back to defaults", err)
	}
	if cfg.Server.Port != 9222 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9222)
	}
	if cfg.Forward.Addr() != "localhost:9221" {
		t.Errorf("Forward.Addr() = %q, want %q", cfg.Forward.Addr(), "localhost:9221")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "# empty\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 9222 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 9222)
	}
	if cfg.Server.BodyMaxBytes != 10*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 10*1024*1024)
	}
	if cfg.Forward.Host != "localhost" {
		t.Errorf("default Forward.Host = %q, want %q", cfg.Forward.Host, "localhost")
	}
	if cfg.Forward.Port != 9221 {
		t.Errorf("default Forward.Port = %d, want %d", cfg.Forward.Port, 9221)
	}
	if cfg.Relay.QueueSize != 256 {
		t.Errorf("default Relay.QueueSize = %d, want %d", cfg.Relay.QueueSize, 256)
	}
	if len(cfg.Relay.OriginPatterns) != 1 || cfg.Relay.OriginPatterns[0] != "*" {
		t.Errorf("default Relay.OriginPatterns = %v, want [*]", cfg.Relay.OriginPatterns)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "verbose"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for explicitly named missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 9222

[forward]
host = "localhost"
port = 9221

[log]
level = "info"
`)

	cli := &CLI{
		Config:      path,
		Host:        "127.0.0.1",
		ListenPort:  3000,
		ForwardHost: "chrome",
		ForwardPort: 4000,
		LogLevel:    "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Forward.Host != "chrome" {
		t.Errorf("Forward.Host = %q, want %q (CLI override)", cfg.Forward.Host, "chrome")
	}
	if cfg.Forward.Port != 4000 {
		t.Errorf("Forward.Port = %d, want %d (CLI override)", cfg.Forward.Port, 4000)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"negative listen port", "[server]\nport = -1\n", "server.port"},
		{"listen port too large", "[server]\nport = 70000\n", "server.port"},
		{"negative forward port", "[forward]\nport = -1\n", "forward.port"},
		{"forward host with scheme", "[forward]\nhost = \"http://localhost\"\n", "forward.host"},
		{"negative body_max_bytes", "[server]\nbody_max_bytes = -1\n", "body_max_bytes"},
		{"negative timeout", "[forward]\ntimeout_seconds = -5\n", "timeout_seconds"},
		{"negative idle connections", "[forward]\nidle_connections = -1\n", "idle_connections"},
		{"negative dial timeout", "[relay]\ndial_timeout_seconds = -1\n", "dial_timeout_seconds"},
		{"negative queue size", "[relay]\nqueue_size = -1\n", "queue_size"},
		{"negative max message", "[relay]\nmax_message_bytes = -1\n", "max_message_bytes"},
		{"bad log format", "[log]\nformat = \"xml\"\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatalf("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_IPv6ForwardHost(t *testing.T) {
	path := writeConfig(t, "[forward]\nhost = \"::1\"\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Forward.Addr() != "[::1]:9221" {
		t.Errorf("Forward.Addr() = %q, want %q", cfg.Forward.Addr(), "[::1]:9221")
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 0
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for rate limit enabled with requests_per_second=0, got nil")
	}
	if !strings.Contains(err.Error(), "requests_per_second") {
		t.Errorf("error = %q, want mention of requests_per_second", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestWarnPermissions_NoFile(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	(&Config{}).WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning without a config file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	path := writeConfig(t, "[forward]\nport = 9221\n")

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeConfig(t, "")
	path2 := writeConfig(t, "")

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestLoad_MetricsPathDefault(t *testing.T) {
	path := writeConfig(t, "[metrics]\nenabled = true\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MetricsPathNoLeadingSlash(t *testing.T) {
	path := writeConfig(t, "[metrics]\nenabled = true\npath = \"metrics\"\n")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path without leading slash, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsPathConflictsWithProxyRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"session exact", "/session"},
		{"session sub", "/session/metrics"},
		{"json", "/json"},
		{"devtools sub", "/devtools/metrics"},
		{"healthz", "/healthz"},
		{"proxy/status", "/proxy/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "[metrics]\nenabled = true\npath = \""+tt.path+"\"\n")

			_, err := Load(cliWithPath(path))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q conflicting with route, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, "[metrics]\nenabled = false\npath = \"bad-no-slash\"\n")

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
