// Package nop provides the publisher used when no event stream is configured.
// Events are logged at Debug and dropped.
package nop

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/papercomputeco/voicenotes/pkg/eventstream"
)

// Publisher drops memo events.
type Publisher struct {
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewPublisher creates a Publisher that logs each dropped event to logger.
func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{logger: logger}
}

func (p *Publisher) PublishMemo(ctx context.Context, event *eventstream.MemoEvent) error {
	if event == nil {
		return eventstream.ErrNilMemoEvent
	}
	p.dropped.Add(1)
	p.logger.DebugContext(ctx, "memo event dropped",
		"event_type", event.EventType,
		"memo_id", event.Memo.ID,
	)
	return nil
}

// Dropped is the number of events received so far.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() error {
	return nil
}
