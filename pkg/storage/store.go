package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/memo"
)

// AudioReleaser deletes the audio content behind a memo that has been removed.
type AudioReleaser interface {
	Release(ctx context.Context, ref audio.Ref) error
}

// Store is the Recording Store. It validates writes and releases audio when
// a memo is removed.
type Store struct {
	driver   Driver
	releaser AudioReleaser
	logger   *slog.Logger
}

// NewStore wraps driver. A nil releaser leaves audio in place on Remove.
func NewStore(driver Driver, releaser AudioReleaser, logger *slog.Logger) *Store {
	return &Store{
		driver:   driver,
		releaser: releaser,
		logger:   logger,
	}
}

// InsertOrReplace stores m, replacing any memo with the same id.
func (s *Store) InsertOrReplace(ctx context.Context, m *memo.Memo) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.driver.InsertOrReplace(ctx, m.Clone()); err != nil {
		return fmt.Errorf("storing memo %s: %w", m.ID, err)
	}
	return nil
}

// Get returns a copy of the memo with the given id.
func (s *Store) Get(ctx context.Context, id string) (*memo.Memo, error) {
	return s.driver.Get(ctx, id)
}

// List returns copies of every memo.
func (s *Store) List(ctx context.Context) ([]*memo.Memo, error) {
	return s.driver.List(ctx)
}

// Remove deletes the memo and releases its audio. A release failure is
// logged; the memo is gone either way.
func (s *Store) Remove(ctx context.Context, id string) (*memo.Memo, error) {
	removed, err := s.driver.Remove(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.releaser != nil && removed.AudioRef != "" {
		if err := s.releaser.Release(ctx, removed.AudioRef); err != nil {
			s.logger.Warn("failed to release memo audio",
				"memo_id", id,
				"audio_ref", removed.AudioRef,
				"error", err,
			)
		}
	}

	return removed, nil
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}
