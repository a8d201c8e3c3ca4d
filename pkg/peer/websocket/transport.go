// Package websocket carries the sync channel over a gorilla/websocket
// connection. The primary device runs a Listener; the companion runs a Dialer
// that keeps reconnecting. Each side holds at most one live connection.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/papercomputeco/voicenotes/pkg/peer"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	eventBuffer = 256

	// maxFrameSize bounds a single message; catalog responses may carry audio.
	maxFrameSize = 64 << 20

	// authHeader carries the optional pairing token.
	authHeader = "Authorization"
)

// transport holds the connection state shared by Listener and Dialer.
type transport struct {
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	// writeMu serializes writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
	events    chan peer.Event
}

func newTransport(logger *slog.Logger) *transport {
	return &transport{
		logger: logger,
		done:   make(chan struct{}),
		events: make(chan peer.Event, eventBuffer),
	}
}

func (t *transport) current() *websocket.Conn {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn
}

// attach makes conn the live connection, dropping any previous one, and
// serves it until it fails. It blocks for the lifetime of the connection.
func (t *transport) attach(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	t.connMu.Lock()
	prev := t.conn
	t.conn = conn
	t.connMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	t.logger.Info("sync peer connected", "remote", conn.RemoteAddr().String())
	t.emit(peer.Event{Kind: peer.EventConnected})

	stopPing := make(chan struct{})
	go t.pingLoop(conn, stopPing)

	t.readLoop(conn)
	close(stopPing)

	t.connMu.Lock()
	wasCurrent := t.conn == conn
	if wasCurrent {
		t.conn = nil
	}
	t.connMu.Unlock()
	_ = conn.Close()

	if wasCurrent {
		t.logger.Info("sync peer disconnected", "remote", conn.RemoteAddr().String())
		t.emit(peer.Event{Kind: peer.EventDisconnected})
	}
}

func (t *transport) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("sync read ended", "error", err)
			}
			return
		}

		msg, err := peer.Decode(frame)
		if err != nil {
			t.logger.Warn("dropping undecodable sync frame", "error", err, "bytes", len(frame))
			continue
		}
		t.emit(peer.Event{Kind: peer.EventMessage, Message: msg})
	}
}

func (t *transport) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			t.writeMu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		case <-stop:
			return
		case <-t.done:
			return
		}
	}
}

// Send writes msg to the live connection. Without one the message is dropped
// and ErrUnreachable returned.
func (t *transport) Send(ctx context.Context, msg peer.Message) error {
	if t.isClosed() {
		return peer.ErrClosed
	}

	conn := t.current()
	if conn == nil {
		return peer.ErrUnreachable
	}

	frame, err := peer.Encode(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %w", peer.ErrUnreachable, err)
	}
	return nil
}

func (t *transport) emit(ev peer.Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *transport) Events() <-chan peer.Event {
	return t.events
}

func (t *transport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Connected reports whether a peer connection is live.
func (t *transport) Connected() bool {
	return t.current() != nil
}

func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		t.connMu.Lock()
		if t.conn != nil {
			t.writeMu.Lock()
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			t.writeMu.Unlock()
			_ = t.conn.Close()
		}
		t.connMu.Unlock()

		t.mu.Lock()
		t.closed = true
		close(t.events)
		t.mu.Unlock()
	})
	return nil
}
