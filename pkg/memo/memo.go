// Package memo defines the voice memo record shared by every device.
package memo

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/voicenotes/pkg/audio"
)

// Status is the transcription state of a memo.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TranscriptSeparator joins successive transcript fragments.
const TranscriptSeparator = "\n\n"

var (
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid transcript status transition")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("invalid memo")
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Memo is a recorded note with its accumulated transcript.
type Memo struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	AudioRef   audio.Ref `json:"audio_ref"`
	Transcript string    `json:"transcript"`
	Status     Status    `json:"transcript_status"`

	// DeltaOffset is where the audio the transcript does not cover yet
	// starts. Zero means the transcript, if any, covers the whole recording.
	DeltaOffset time.Duration `json:"delta_offset,omitempty"`
}

// New creates a pending memo for freshly captured audio.
func New(ref audio.Ref, now time.Time) *Memo {
	return &Memo{
		ID:        uuid.NewString(),
		Timestamp: now,
		AudioRef:  ref,
		Status:    StatusPending,
	}
}

// Clone returns a copy that shares nothing with m.
func (m *Memo) Clone() *Memo {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Validate checks the fields every stored memo must carry.
func (m *Memo) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, m.Status)
	}
	if m.DeltaOffset < 0 {
		return fmt.Errorf("%w: negative delta offset", ErrInvalid)
	}
	return nil
}

// SetStatus moves the memo to status to. A pending memo may complete or fail;
// a completed or failed memo may only go back to pending for a new attempt.
func (m *Memo) SetStatus(to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if m.Status == to && to == StatusPending {
		return nil
	}

	switch m.Status {
	case StatusPending:
		if to == StatusCompleted || to == StatusFailed {
			m.Status = to
			return nil
		}
	case StatusCompleted, StatusFailed:
		if to == StatusPending {
			m.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, to)
}

// AppendTranscript adds text after the existing transcript.
func (m *Memo) AppendTranscript(text string) {
	if m.Transcript == "" {
		m.Transcript = text
		return
	}
	m.Transcript = m.Transcript + TranscriptSeparator + text
}

// HasDelta reports whether part of the audio still awaits transcription
// after an extension was spliced on without transcribing it.
func (m *Memo) HasDelta() bool {
	return m.DeltaOffset > 0
}

// Touch advances the timestamp to now, or by one nanosecond when now does not
// move it forward.
func (m *Memo) Touch(now time.Time) {
	if now.After(m.Timestamp) {
		m.Timestamp = now
		return
	}
	m.Timestamp = m.Timestamp.Add(time.Nanosecond)
}

// NewerThan reports whether m should win over other in last-writer-wins.
func (m *Memo) NewerThan(other *Memo) bool {
	return m.Timestamp.After(other.Timestamp)
}

// SortNewestFirst orders memos for display.
func SortNewestFirst(memos []*Memo) {
	sort.SliceStable(memos, func(i, j int) bool {
		if memos[i].Timestamp.Equal(memos[j].Timestamp) {
			return memos[i].ID < memos[j].ID
		}
		return memos[i].Timestamp.After(memos[j].Timestamp)
	})
}
