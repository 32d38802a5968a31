package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeEvent is one result of Read: a frame, or the error that ends reading.
type fakeEvent struct {
	f   frame
	err error
}

// fakeConn is an in-memory Conn. Frames and peer errors pushed with send,
// peerClose or drop are returned by Read in order; frames passed to Write
// are delivered on written.
type fakeConn struct {
	incoming chan fakeEvent
	written  chan frame

	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32

	mu        sync.Mutex
	closeCode websocket.StatusCode
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan fakeEvent, 64),
		written:  make(chan frame, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case ev := <-c.incoming:
		if ev.err != nil {
			return 0, nil, ev.err
		}
		return ev.f.typ, ev.f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, typ websocket.MessageType, p []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.written <- frame{typ: typ, data: append([]byte(nil), p...)}
	return nil
}

func (c *fakeConn) Close(code websocket.StatusCode, _ string) error {
	c.closeCalls.Add(1)
	c.mu.Lock()
	c.closeCode = code
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// send queues a text frame to be returned by Read.
func (c *fakeConn) send(s string) {
	c.incoming <- fakeEvent{f: frame{typ: websocket.MessageText, data: []byte(s)}}
}

// peerClose makes the next Read fail as if the peer sent a close frame.
func (c *fakeConn) peerClose(code websocket.StatusCode, reason string) {
	c.incoming <- fakeEvent{err: websocket.CloseError{Code: code, Reason: reason}}
}

// drop makes the next Read fail as if the TCP connection vanished.
func (c *fakeConn) drop() {
	c.incoming <- fakeEvent{err: errors.New("read tcp: connection reset by peer")}
}

func (c *fakeConn) code() websocket.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// expectFrame waits for the next written frame.
func (c *fakeConn) expectFrame(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-c.written:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded frame")
		return frame{}
	}
}

// waitClosed waits until Close has been called.
func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection close")
	}
}
