package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/voicenotes/pkg/blob"
)

const (
	// ContentType is the MIME type of every segment written by the editor.
	ContentType = "audio/wav"

	segmentPrefix = "segments/"
)

// Ref is an opaque handle to stored audio content.
type Ref string

func (r Ref) String() string { return string(r) }

// NewRef allocates a fresh segment key.
func NewRef() Ref {
	return Ref(segmentPrefix + uuid.NewString() + ".wav")
}

// MergeError is returned when two segments cannot be spliced.
type MergeError struct {
	Base     Ref
	Addition Ref
	Err      error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merging %s with %s: %v", e.Base, e.Addition, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// TrimError is returned when a segment cannot be trimmed at an offset.
type TrimError struct {
	Ref    Ref
	Offset time.Duration
	Err    error
}

func (e *TrimError) Error() string {
	return fmt.Sprintf("trimming %s at %s: %v", e.Ref, e.Offset, e.Err)
}

func (e *TrimError) Unwrap() error { return e.Err }

// Editor resolves refs against a blob store and produces new segments from
// existing ones. Inputs are never modified; every output is a new ref.
type Editor struct {
	store  blob.Store
	logger *slog.Logger
}

// NewEditor creates an Editor over store.
func NewEditor(store blob.Store, logger *slog.Logger) *Editor {
	return &Editor{store: store, logger: logger}
}

// Store returns the backing blob store.
func (e *Editor) Store() blob.Store {
	return e.store
}

// Open returns the raw WAV bytes behind ref.
func (e *Editor) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	_, rc, err := e.store.Get(ctx, string(ref))
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Load reads and decodes the segment behind ref.
func (e *Editor) Load(ctx context.Context, ref Ref) (*Segment, error) {
	rc, err := e.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	seg, err := Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ref, err)
	}
	return seg, nil
}

// Save encodes seg under a new ref.
func (e *Editor) Save(ctx context.Context, seg *Segment) (Ref, error) {
	data, err := seg.Bytes()
	if err != nil {
		return "", err
	}
	return e.SaveBytes(ctx, data)
}

// SaveBytes stores already-encoded WAV bytes under a new ref.
func (e *Editor) SaveBytes(ctx context.Context, data []byte) (Ref, error) {
	ref := NewRef()
	if _, err := e.store.Put(ctx, string(ref), bytes.NewReader(data), blob.PutOptions{ContentType: ContentType}); err != nil {
		return "", fmt.Errorf("storing segment %s: %w", ref, err)
	}
	return ref, nil
}

// Import stores data under an existing ref. It is a no-op when the ref is
// already present, so repeated deliveries of the same audio are harmless.
func (e *Editor) Import(ctx context.Context, ref Ref, data []byte) error {
	if _, err := e.store.Head(ctx, string(ref)); err == nil {
		return nil
	} else if !errors.Is(err, blob.ErrNotFound) {
		return err
	}

	_, err := e.store.Put(ctx, string(ref), bytes.NewReader(data), blob.PutOptions{ContentType: ContentType})
	if errors.Is(err, blob.ErrExists) {
		return nil
	}
	return err
}

// ReadAll returns the WAV bytes behind ref.
func (e *Editor) ReadAll(ctx context.Context, ref Ref) ([]byte, error) {
	rc, err := e.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Duration is the playback length of the segment behind ref.
func (e *Editor) Duration(ctx context.Context, ref Ref) (time.Duration, error) {
	seg, err := e.Load(ctx, ref)
	if err != nil {
		return 0, err
	}
	return seg.Duration(), nil
}

// Merge produces a new segment with addition spliced after base.
func (e *Editor) Merge(ctx context.Context, base, addition Ref) (Ref, error) {
	wrap := func(err error) error {
		return &MergeError{Base: base, Addition: addition, Err: err}
	}

	baseSeg, err := e.Load(ctx, base)
	if err != nil {
		return "", wrap(err)
	}
	addSeg, err := e.Load(ctx, addition)
	if err != nil {
		return "", wrap(err)
	}

	merged, err := Concat(baseSeg, addSeg)
	if err != nil {
		return "", wrap(err)
	}

	ref, err := e.Save(ctx, merged)
	if err != nil {
		return "", wrap(err)
	}

	e.logger.Debug("segments merged",
		"base", base,
		"addition", addition,
		"merged", ref,
		"duration", merged.Duration(),
	)
	return ref, nil
}

// Trim produces a new segment covering ref from start to its end.
func (e *Editor) Trim(ctx context.Context, ref Ref, start time.Duration) (Ref, error) {
	wrap := func(err error) error {
		return &TrimError{Ref: ref, Offset: start, Err: err}
	}

	seg, err := e.Load(ctx, ref)
	if err != nil {
		return "", wrap(err)
	}

	trimmed, err := Slice(seg, start)
	if err != nil {
		return "", wrap(err)
	}

	out, err := e.Save(ctx, trimmed)
	if err != nil {
		return "", wrap(err)
	}

	e.logger.Debug("segment trimmed",
		"source", ref,
		"offset", start,
		"trimmed", out,
		"duration", trimmed.Duration(),
	)
	return out, nil
}

// Release deletes the audio behind ref. Missing content is not an error.
func (e *Editor) Release(ctx context.Context, ref Ref) error {
	if ref == "" {
		return nil
	}
	if _, err := e.store.Delete(ctx, string(ref)); err != nil {
		return fmt.Errorf("releasing %s: %w", ref, err)
	}
	return nil
}

// Discard releases every non-empty ref, logging failures.
func (e *Editor) Discard(ctx context.Context, refs ...Ref) {
	for _, ref := range refs {
		if err := e.Release(ctx, ref); err != nil {
			e.logger.Warn("failed to discard segment", "ref", ref, "error", err)
		}
	}
}
