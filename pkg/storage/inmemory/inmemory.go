// Package inmemory provides a map-backed storage.Driver.
package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	mu sync.RWMutex

	// memos is keyed by memo id
	memos map[string]*memo.Memo
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		memos: make(map[string]*memo.Memo),
	}
}

func (d *Driver) InsertOrReplace(_ context.Context, m *memo.Memo) error {
	if m == nil {
		return errors.New("cannot store nil memo")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.memos[m.ID] = m.Clone()
	return nil
}

func (d *Driver) Get(_ context.Context, id string) (*memo.Memo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.memos[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return m.Clone(), nil
}

func (d *Driver) List(_ context.Context) ([]*memo.Memo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*memo.Memo, 0, len(d.memos))
	for _, m := range d.memos {
		result = append(result, m.Clone())
	}
	return result, nil
}

func (d *Driver) Remove(_ context.Context, id string) (*memo.Memo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.memos[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	delete(d.memos, id)
	return m, nil
}

func (d *Driver) Close() error {
	return nil
}
