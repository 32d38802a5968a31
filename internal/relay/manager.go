package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"browser-proxy-go/internal/config"
	"browser-proxy-go/internal/metrics"
)

const defaultDialTimeout = 10 * time.Second

// Options tunes every Pair created by a Manager.
type Options struct {
	DialTimeout time.Duration
	QueueSize   int
	ReadLimit   int64
}

// OptionsFromConfig maps the [relay] config section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DialTimeout: cfg.Relay.DialTimeout(),
		QueueSize:   cfg.Relay.QueueSize,
		ReadLimit:   cfg.Relay.MaxMessageBytes,
	}
}

// Target is the backend end of a relay.
type Target struct {
	URL    string
	Header http.Header
	// Route is a bounded label for metrics, e.g. "/devtools/page".
	Route string
}

// Manager creates relay pairs and tracks the ones still open.
type Manager struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	dial    func(ctx context.Context, t Target) (Conn, error)

	mu    sync.Mutex
	pairs map[string]*Pair
}

// NewManager creates a Manager. The metrics parameter is optional.
func NewManager(opts Options, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	mgr := &Manager{
		opts:    opts,
		logger:  logger.With("component", "relay"),
		metrics: m,
		pairs:   make(map[string]*Pair),
	}
	mgr.dial = mgr.dialWebSocket
	return mgr
}

// Relay forwards between client and the backend named by target until
// either side closes. It blocks for the lifetime of the relay.
func (m *Manager) Relay(ctx context.Context, client Conn, target Target) error {
	setReadLimit(client, m.opts.ReadLimit)

	dial := func(ctx context.Context) (Conn, error) {
		return m.dial(ctx, target)
	}
	p := newPair(ctx, uuid.NewString(), target.URL, client, dial, m.opts, m.logger, m.metrics)

	m.track(p)
	defer m.untrack(p)

	start := time.Now()
	if m.metrics != nil {
		m.metrics.RelaysActive.Inc()
		m.metrics.RelaysTotal.WithLabelValues(target.Route).Inc()
		defer func() {
			m.metrics.RelaysActive.Dec()
			m.metrics.RelayDuration.Observe(time.Since(start).Seconds())
		}()
	}

	return p.Run(ctx)
}

// Active returns the number of open relays.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pairs)
}

// CloseAll terminates every open relay. It is meant for process shutdown;
// closing the listener alone leaves established relays running.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	pairs := make([]*Pair, 0, len(m.pairs))
	for _, p := range m.pairs {
		pairs = append(pairs, p)
	}
	m.mu.Unlock()

	if len(pairs) > 0 {
		m.logger.Info("closing open relays", "count", len(pairs))
	}

	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Close()
		}()
	}
	wg.Wait()
}

func (m *Manager) track(p *Pair) {
	m.mu.Lock()
	m.pairs[p.ID()] = p
	m.mu.Unlock()
}

func (m *Manager) untrack(p *Pair) {
	m.mu.Lock()
	delete(m.pairs, p.ID())
	m.mu.Unlock()
}

func (m *Manager) dialWebSocket(ctx context.Context, t Target) (Conn, error) {
	c, resp, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{
		HTTPHeader: t.Header,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}
	setReadLimit(c, m.opts.ReadLimit)
	return c, nil
}

// setReadLimit raises the per-message read limit when the connection
// supports it. The library default of 32 KiB is far below CDP message sizes.
func setReadLimit(c Conn, n int64) {
	if n <= 0 {
		return
	}
	if l, ok := c.(interface{ SetReadLimit(int64) }); ok {
		l.SetReadLimit(n)
	}
}
