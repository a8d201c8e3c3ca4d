package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/voicenotes/pkg/eventstream"
)

// RecordingPublisher keeps every published memo event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []eventstream.MemoEvent
	closed bool
}

func (p *RecordingPublisher) PublishMemo(_ context.Context, event *eventstream.MemoEvent) error {
	if event == nil {
		return eventstream.ErrNilMemoEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Events returns a copy of the published events in order.
func (p *RecordingPublisher) Events() []eventstream.MemoEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]eventstream.MemoEvent(nil), p.events...)
}

// EventTypes returns the event type of each published event for memoID.
func (p *RecordingPublisher) EventTypes(memoID string) []string {
	var types []string
	for _, ev := range p.Events() {
		if ev.Memo.ID == memoID {
			types = append(types, ev.EventType)
		}
	}
	return types
}
