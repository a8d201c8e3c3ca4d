// Package peer is the sync channel between the two devices of a pair. It
// carries memo updates and catalog exchanges with at-most-once delivery:
// a message sent while the peer is unreachable is dropped, never queued.
package peer

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/voicenotes/pkg/memo"
)

// SchemaVersionV1 is the first version of the wire envelope.
const SchemaVersionV1 = 1

// Kind names a message type.
type Kind string

const (
	// KindHello is sent by each side when a connection is established.
	KindHello Kind = "hello"

	// KindMemoUpdate carries one memo created or modified by the sender.
	KindMemoUpdate Kind = "memo_update"

	// KindCatalogRequest asks the receiver for its whole collection.
	KindCatalogRequest Kind = "catalog_request"

	// KindCatalogResponse answers a catalog request.
	KindCatalogResponse Kind = "catalog_response"
)

// Role distinguishes the two devices of a pair.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleCompanion Role = "companion"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleCompanion
}

// Snapshot is a memo as carried on the wire. Audio holds the WAV bytes
// behind Memo.AudioRef when the sender ships audio with its updates.
type Snapshot struct {
	Memo  memo.Memo `json:"memo"`
	Audio []byte    `json:"audio,omitempty"`
}

// Message is the versioned envelope for everything on the channel.
type Message struct {
	SchemaVersion int        `json:"schema_version"`
	Kind          Kind       `json:"kind"`
	MessageID     string     `json:"message_id"`
	SentAt        time.Time  `json:"sent_at"`
	Sender        string     `json:"sender,omitempty"`
	Role          Role       `json:"role,omitempty"`
	Memo          *Snapshot  `json:"memo,omitempty"`
	Catalog       []Snapshot `json:"catalog,omitempty"`
}

// Origin identifies the sending device.
type Origin struct {
	DeviceID string
	Role     Role
}

func (o Origin) envelope(kind Kind) Message {
	return Message{
		SchemaVersion: SchemaVersionV1,
		Kind:          kind,
		MessageID:     uuid.NewString(),
		SentAt:        time.Now().UTC(),
		Sender:        o.DeviceID,
		Role:          o.Role,
	}
}

// Hello announces the sender on a new connection.
func (o Origin) Hello() Message {
	return o.envelope(KindHello)
}

// MemoUpdate wraps one memo.
func (o Origin) MemoUpdate(snap Snapshot) Message {
	msg := o.envelope(KindMemoUpdate)
	msg.Memo = &snap
	return msg
}

// CatalogRequest asks the peer for its collection.
func (o Origin) CatalogRequest() Message {
	return o.envelope(KindCatalogRequest)
}

// CatalogResponse carries the sender's collection.
func (o Origin) CatalogResponse(catalog []Snapshot) Message {
	msg := o.envelope(KindCatalogResponse)
	if catalog == nil {
		catalog = []Snapshot{}
	}
	msg.Catalog = catalog
	return msg
}
