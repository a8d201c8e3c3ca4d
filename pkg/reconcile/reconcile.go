// Package reconcile applies memos received from the peer device to the local
// Recording Store using last-writer-wins on the memo timestamp.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/storage"
)

// Result is the outcome of applying one incoming memo.
type Result int

const (
	// ResultDiscarded means the local copy was at least as new.
	ResultDiscarded Result = iota

	// ResultInserted means the memo was unknown locally.
	ResultInserted

	// ResultReplaced means the incoming memo was newer than the local copy.
	ResultReplaced
)

func (r Result) String() string {
	switch r {
	case ResultInserted:
		return "inserted"
	case ResultReplaced:
		return "replaced"
	default:
		return "discarded"
	}
}

// Applied reports whether the store changed.
func (r Result) Applied() bool {
	return r == ResultInserted || r == ResultReplaced
}

// Store is the part of the Recording Store the reconciler writes to.
type Store interface {
	Get(ctx context.Context, id string) (*memo.Memo, error)
	InsertOrReplace(ctx context.Context, m *memo.Memo) error
}

// AudioImporter writes carried audio bytes under their original ref.
type AudioImporter interface {
	Import(ctx context.Context, ref audio.Ref, data []byte) error
}

// Summary counts the results of a catalog application.
type Summary struct {
	Inserted  int
	Replaced  int
	Discarded int
	Failed    int

	// Applied holds the memos that changed the store, as stored.
	Applied []*memo.Memo
}

// Reconciler merges incoming snapshots into a Store.
type Reconciler struct {
	store    Store
	importer AudioImporter
	logger   *slog.Logger
}

// New creates a Reconciler. A nil importer ignores carried audio.
func New(store Store, importer AudioImporter, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, importer: importer, logger: logger}
}

// Apply inserts an unknown memo, replaces a known memo only when the incoming
// timestamp is strictly newer, and otherwise discards it. Applying the same
// snapshot twice leaves the store unchanged the second time.
func (r *Reconciler) Apply(ctx context.Context, snap peer.Snapshot) (Result, error) {
	incoming := snap.Memo.Clone()
	if err := incoming.Validate(); err != nil {
		return ResultDiscarded, err
	}

	result := ResultInserted
	local, err := r.store.Get(ctx, incoming.ID)
	switch {
	case err == nil:
		if !incoming.NewerThan(local) {
			r.logger.Debug("discarding stale memo",
				"memo_id", incoming.ID,
				"incoming", incoming.Timestamp,
				"local", local.Timestamp,
			)
			return ResultDiscarded, nil
		}
		result = ResultReplaced
	case storage.IsNotFound(err):
	default:
		return ResultDiscarded, fmt.Errorf("reading memo %s: %w", incoming.ID, err)
	}

	if len(snap.Audio) > 0 && r.importer != nil && incoming.AudioRef != "" {
		if err := r.importer.Import(ctx, incoming.AudioRef, snap.Audio); err != nil {
			return ResultDiscarded, fmt.Errorf("importing audio for memo %s: %w", incoming.ID, err)
		}
	}

	if err := r.store.InsertOrReplace(ctx, incoming); err != nil {
		return ResultDiscarded, err
	}

	r.logger.Debug("memo reconciled",
		"memo_id", incoming.ID,
		"result", result.String(),
		"transcript_status", incoming.Status,
	)
	return result, nil
}

// ApplyAll applies every snapshot of a catalog. Failures are counted and
// joined; the rest of the catalog is still applied.
func (r *Reconciler) ApplyAll(ctx context.Context, catalog []peer.Snapshot) (Summary, error) {
	var (
		summary Summary
		errs    []error
	)

	for _, snap := range catalog {
		result, err := r.Apply(ctx, snap)
		if err != nil {
			summary.Failed++
			errs = append(errs, err)
			continue
		}

		switch result {
		case ResultInserted:
			summary.Inserted++
		case ResultReplaced:
			summary.Replaced++
		default:
			summary.Discarded++
			continue
		}
		summary.Applied = append(summary.Applied, snap.Memo.Clone())
	}

	return summary, errors.Join(errs...)
}
