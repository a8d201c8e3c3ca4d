package peer

import (
	"context"
	"errors"
)

// ErrUnreachable is returned by Send when there is no live connection to the
// peer. The message has been dropped.
var ErrUnreachable = errors.New("peer unreachable")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("sync channel closed")

// EventKind classifies what a Channel reports.
type EventKind int

const (
	// EventMessage delivers a decoded message from the peer.
	EventMessage EventKind = iota

	// EventConnected reports that a session with the peer was (re)established.
	EventConnected

	// EventDisconnected reports that the session was lost.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is emitted by a Channel.
type Event struct {
	Kind    EventKind
	Message Message
}

// Channel is a bidirectional, best-effort link to the paired device.
// Implementations own their connection state; undecodable frames are logged
// and dropped without closing the channel.
type Channel interface {
	// Send delivers msg if the peer is reachable right now.
	Send(ctx context.Context, msg Message) error

	// Events is closed when the channel is closed.
	Events() <-chan Event

	Close() error
}
