// Package loopback connects two peer.Channel endpoints in process. Frames are
// encoded and decoded exactly as on a real transport, and reachability can be
// toggled to simulate the peer walking out of range.
package loopback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/papercomputeco/voicenotes/pkg/peer"
)

const eventBuffer = 256

type link struct {
	mu        sync.Mutex
	reachable bool
}

// Endpoint is one side of a loopback pair.
type Endpoint struct {
	link   *link
	other  *Endpoint
	logger *slog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
	events    chan peer.Event
}

// NewPair returns two connected endpoints. Both report EventConnected first.
func NewPair(logger *slog.Logger) (*Endpoint, *Endpoint) {
	l := &link{reachable: true}
	a := newEndpoint(l, logger.With("endpoint", "a"))
	b := newEndpoint(l, logger.With("endpoint", "b"))
	a.other, b.other = b, a

	a.events <- peer.Event{Kind: peer.EventConnected}
	b.events <- peer.Event{Kind: peer.EventConnected}
	return a, b
}

func newEndpoint(l *link, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		link:   l,
		logger: logger,
		done:   make(chan struct{}),
		events: make(chan peer.Event, eventBuffer),
	}
}

// SetReachable connects or disconnects the pair. Both endpoints observe the
// transition as an event.
func (e *Endpoint) SetReachable(reachable bool) {
	e.link.mu.Lock()
	changed := e.link.reachable != reachable
	e.link.reachable = reachable
	e.link.mu.Unlock()

	if !changed {
		return
	}

	kind := peer.EventDisconnected
	if reachable {
		kind = peer.EventConnected
	}
	ctx := context.Background()
	e.emit(ctx, peer.Event{Kind: kind})
	e.other.emit(ctx, peer.Event{Kind: kind})
}

// Reachable reports the current link state.
func (e *Endpoint) Reachable() bool {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	return e.link.reachable
}

func (e *Endpoint) Send(ctx context.Context, msg peer.Message) error {
	if e.isClosed() {
		return peer.ErrClosed
	}
	if !e.Reachable() {
		return peer.ErrUnreachable
	}

	frame, err := peer.Encode(msg)
	if err != nil {
		return err
	}
	return e.other.Deliver(ctx, frame)
}

// Deliver hands a raw frame to this endpoint as if it arrived from the peer.
// Undecodable frames are logged and dropped.
func (e *Endpoint) Deliver(ctx context.Context, frame []byte) error {
	msg, err := peer.Decode(frame)
	if err != nil {
		e.logger.Warn("dropping undecodable sync frame", "error", err, "bytes", len(frame))
		return nil
	}
	if !e.emit(ctx, peer.Event{Kind: peer.EventMessage, Message: msg}) {
		return peer.ErrUnreachable
	}
	return nil
}

func (e *Endpoint) emit(ctx context.Context, ev peer.Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}

	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (e *Endpoint) Events() <-chan peer.Event {
	return e.events
}

func (e *Endpoint) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		close(e.events)
	})
	return nil
}
