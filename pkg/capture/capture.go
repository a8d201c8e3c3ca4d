// Package capture is the boundary to the audio input device. Device setup is
// left to the host; the core only needs to know whether capture can start.
package capture

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by Activate when the input device cannot be used,
// for example because permission was denied.
var ErrUnavailable = errors.New("capture device unavailable")

// Device is an audio input that must be activated before frames flow.
type Device interface {
	Activate(ctx context.Context) error
	Deactivate() error
}

// External is a Device whose frames are pushed by an outside producer (an
// HTTP upload or a file import), so activation always succeeds.
type External struct{}

func (External) Activate(context.Context) error { return nil }
func (External) Deactivate() error              { return nil }
