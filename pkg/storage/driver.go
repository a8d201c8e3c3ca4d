// Package storage defines the Recording Store: the per-device collection of
// memos keyed by id.
package storage

import (
	"context"

	"github.com/papercomputeco/voicenotes/pkg/memo"
)

// Driver is a storage backend for memos. Drivers store and return copies;
// callers never share a *memo.Memo with the backend.
type Driver interface {
	// InsertOrReplace stores m under m.ID, replacing any previous record.
	// Storing an identical memo twice is a no-op.
	InsertOrReplace(ctx context.Context, m *memo.Memo) error

	// Get retrieves a memo by id, returning NotFoundError when absent.
	Get(ctx context.Context, id string) (*memo.Memo, error)

	// List returns every stored memo in no particular order.
	List(ctx context.Context) ([]*memo.Memo, error)

	// Remove deletes a memo by id and returns the removed record.
	Remove(ctx context.Context, id string) (*memo.Memo, error)

	// Close releases any resources held by the driver.
	Close() error
}
