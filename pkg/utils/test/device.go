package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/voicenotes/pkg/capture"
)

// FakeDevice is a capture.Device whose availability tests control.
type FakeDevice struct {
	mu sync.Mutex

	// Unavailable makes Activate fail with capture.ErrUnavailable.
	Unavailable bool

	// Active reports whether the device is currently activated.
	Active bool
}

func (d *FakeDevice) Activate(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Unavailable {
		return capture.ErrUnavailable
	}
	d.Active = true
	return nil
}

func (d *FakeDevice) Deactivate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Active = false
	return nil
}
