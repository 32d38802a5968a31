// Package relay pumps WebSocket messages between an automation client and
// the browser backend.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"browser-proxy-go/internal/metrics"
)

// Conn is one side of a relay. *websocket.Conn satisfies it.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens the backend side of a Pair.
type DialFunc func(ctx context.Context) (Conn, error)

type frame struct {
	typ  websocket.MessageType
	data []byte
}

// Pair owns one client connection and one backend connection and forwards
// messages between them until either side closes. Client messages that
// arrive before the backend handshake completes wait in a FIFO queue and
// are delivered once the backend is connected. When the client closes, the
// frames it sent before closing are still delivered before the backend is
// closed. Teardown runs exactly once.
type Pair struct {
	id     string
	target string
	client Conn
	dial   DialFunc

	queue       chan frame
	dialTimeout time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics

	ioCtx    context.Context
	ioCancel context.CancelFunc
	done     chan struct{}
	once     sync.Once
	cleanups atomic.Int32

	mu         sync.Mutex
	backend    Conn
	dialCancel context.CancelFunc

	// Set by readClient before it closes queue.
	clientCode   websocket.StatusCode
	clientReason string
}

func newPair(ctx context.Context, id, target string, client Conn, dial DialFunc, opts Options, logger *slog.Logger, m *metrics.Metrics) *Pair {
	// Reads and writes must outlive the caller's cancellation: a canceled
	// read context makes the websocket library drop the connection without
	// a close frame. Teardown closes both sides first, then cancels ioCtx.
	ioCtx, ioCancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Pair{
		id:          id,
		target:      target,
		client:      client,
		dial:        dial,
		queue:       make(chan frame, opts.QueueSize),
		dialTimeout: opts.DialTimeout,
		logger:      logger.With("relay_id", id, "target", target),
		metrics:     m,
		ioCtx:       ioCtx,
		ioCancel:    ioCancel,
		done:        make(chan struct{}),
	}
}

// ID returns the pair's identifier.
func (p *Pair) ID() string { return p.id }

// Target returns the backend URL.
func (p *Pair) Target() string { return p.target }

// Done is closed once the pair has terminated.
func (p *Pair) Done() <-chan struct{} { return p.done }

// Terminated reports whether teardown has run.
func (p *Pair) Terminated() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close terminates the pair. Calling it more than once, or after the pair
// ended on its own, is a no-op.
func (p *Pair) Close() {
	p.terminate(websocket.StatusGoingAway, "proxy shutting down")
}

// Run dials the backend and forwards messages until the pair terminates.
// It returns an error only when the backend handshake fails.
func (p *Pair) Run(ctx context.Context) error {
	p.logger.Info("proxying websocket connection")

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	p.mu.Lock()
	p.dialCancel = cancel
	p.mu.Unlock()
	if p.Terminated() {
		cancel()
	}

	go p.readClient()

	backend, err := p.dial(dialCtx)
	cancel()
	if err != nil {
		if p.Terminated() {
			// The client left while we were dialing and had nothing queued.
			return nil
		}
		if p.metrics != nil {
			p.metrics.RelayDialFailures.Inc()
		}
		p.logger.Error("backend websocket handshake failed", "err", err)
		p.terminate(websocket.StatusInternalError, "backend unavailable")
		return fmt.Errorf("dial %s: %w", p.target, err)
	}

	if !p.attach(backend) {
		_ = backend.Close(websocket.StatusGoingAway, "client disconnected")
		return nil
	}
	p.logger.Info("websocket client connected to browser")

	go p.readBackend(backend)
	p.writeBackend(backend)

	<-p.done
	return nil
}

// attach publishes the dialed backend unless the pair already terminated.
func (p *Pair) attach(backend Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Terminated() {
		return false
	}
	p.backend = backend
	return true
}

// readClient queues client messages for the backend. A full queue blocks
// the read, which pushes back on the client instead of dropping messages.
// When the client ends, the queue is closed and writeBackend tears the pair
// down once everything already read has been sent.
func (p *Pair) readClient() {
	defer close(p.queue)
	for {
		typ, data, err := p.client.Read(p.ioCtx)
		if err != nil {
			code, reason := closeStatus(err)
			if !p.Terminated() {
				p.logger.Info("client websocket connection closed", "status", websocket.CloseStatus(err))
			}
			p.clientCode, p.clientReason = code, reason

			// Nothing to flush while dialing: stop the dial now.
			p.mu.Lock()
			attached := p.backend != nil
			p.mu.Unlock()
			if !attached && len(p.queue) == 0 {
				p.terminate(code, reason)
			}
			return
		}
		select {
		case p.queue <- frame{typ: typ, data: data}:
		case <-p.done:
			return
		}
	}
}

// writeBackend drains the queue into the backend in arrival order. A closed
// queue means the client has gone and every frame it sent was delivered.
func (p *Pair) writeBackend(backend Conn) {
	for {
		select {
		case <-p.done:
			return
		case f, ok := <-p.queue:
			if !ok {
				p.terminate(p.clientCode, p.clientReason)
				return
			}
			p.logFrame(metrics.DirectionToBackend, f)
			if err := backend.Write(p.ioCtx, f.typ, f.data); err != nil {
				p.logger.Warn("write to browser failed", "err", err)
				p.terminate(closeStatus(err))
				return
			}
			p.count(metrics.DirectionToBackend, f)
		}
	}
}

// readBackend forwards backend messages straight to the client.
func (p *Pair) readBackend(backend Conn) {
	for {
		typ, data, err := backend.Read(p.ioCtx)
		if err != nil {
			if !p.Terminated() {
				p.logger.Info("browser websocket connection closed", "status", websocket.CloseStatus(err))
			}
			p.terminate(closeStatus(err))
			return
		}
		f := frame{typ: typ, data: data}
		p.logFrame(metrics.DirectionToClient, f)
		if err := p.client.Write(p.ioCtx, typ, data); err != nil {
			p.logger.Warn("write to client failed", "err", err)
			p.terminate(closeStatus(err))
			return
		}
		p.count(metrics.DirectionToClient, f)
	}
}

// terminate closes both connections once. Later calls return immediately
// after the first call has finished.
func (p *Pair) terminate(code websocket.StatusCode, reason string) {
	p.once.Do(func() {
		close(p.done)

		p.mu.Lock()
		backend, dialCancel := p.backend, p.dialCancel
		p.mu.Unlock()
		if dialCancel != nil {
			dialCancel()
		}

		p.logger.Info("closing websocket connection", "code", int(code), "reason", reason)

		var wg sync.WaitGroup
		closeSide := func(side string, c Conn) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.Close(code, reason); err != nil {
					p.logger.Debug("close", "side", side, "err", err)
				}
			}()
		}
		closeSide("client", p.client)
		if backend != nil {
			closeSide("browser", backend)
		}
		wg.Wait()

		p.ioCancel()
		p.cleanups.Add(1)
	})
}

func (p *Pair) count(direction string, f frame) {
	if p.metrics == nil {
		return
	}
	p.metrics.RelayMessages.WithLabelValues(direction).Inc()
	p.metrics.RelayBytes.WithLabelValues(direction).Add(float64(len(f.data)))
}

// logFrame logs a forwarded message at debug level. It only inspects a copy
// of the payload; the forwarded bytes are never touched.
func (p *Pair) logFrame(direction string, f frame) {
	if !p.logger.Enabled(p.ioCtx, slog.LevelDebug) {
		return
	}
	if f.typ == websocket.MessageBinary {
		p.logger.Debug("proxying binary message", "direction", direction, "bytes", len(f.data))
		return
	}
	p.logger.Debug("proxying message", "direction", direction, "message", Summarize(f.data))
}

// closeStatus picks the status to send to both sides when one side ends.
// A peer's close code is passed through when it may legally be sent;
// a connection lost without a close frame maps to going-away.
func closeStatus(err error) (websocket.StatusCode, string) {
	code := websocket.CloseStatus(err)
	if code == -1 {
		return websocket.StatusGoingAway, "peer connection lost"
	}
	if !sendable(code) {
		return websocket.StatusNormalClosure, ""
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return code, ce.Reason
	}
	return code, ""
}

// sendable reports whether code may appear in a close frame on the wire.
// 1004-1006 and 1015 are reserved for local use.
func sendable(code websocket.StatusCode) bool {
	switch {
	case code >= 1000 && code <= 1003,
		code >= 1007 && code <= 1014,
		code >= 3000 && code <= 4999:
		return true
	}
	return false
}
