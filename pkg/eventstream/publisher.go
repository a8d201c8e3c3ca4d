package eventstream

import "context"

// Publisher publishes memo events to an event stream backend.
type Publisher interface {
	PublishMemo(ctx context.Context, event *MemoEvent) error
	Close() error
}
