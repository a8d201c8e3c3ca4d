package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/voicenotes/pkg/memo"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoStored is emitted after a memo is inserted or replaced.
	EventTypeMemoStored = "voicenotes.memo.stored"

	// EventTypeMemoRemoved is emitted after a memo is deleted.
	EventTypeMemoRemoved = "voicenotes.memo.removed"
)

// MemoEvent is a transport-neutral event payload for a Recording Store change.
type MemoEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Memo          memo.Memo   `json:"memo"`
}

// EventSource identifies the device whose store changed.
type EventSource struct {
	DeviceID string `json:"device_id"`
	Role     string `json:"role"`
}

// NewMemoEvent builds an event of eventType for a copy of m.
func NewMemoEvent(eventType string, source EventSource, m *memo.Memo, now time.Time) *MemoEvent {
	return &MemoEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     now.UTC(),
		Source:        source,
		Memo:          *m.Clone(),
	}
}
