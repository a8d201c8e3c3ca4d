// Package node is one device of a voice memo pair. A Node is the single owner
// of its Recording Store, Recording Session and Sync Channel: every store
// mutation runs on the goroutine executing Run, while transcription and audio
// editing run on per-memo goroutines whose results are posted back.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/eventstream"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/peer/outbox"
	"github.com/papercomputeco/voicenotes/pkg/pipeline"
	"github.com/papercomputeco/voicenotes/pkg/reconcile"
	"github.com/papercomputeco/voicenotes/pkg/session"
	"github.com/papercomputeco/voicenotes/pkg/storage"
)

var (
	// ErrBusy is returned when a memo already has a pipeline in flight.
	ErrBusy = errors.New("memo has work in progress")

	// ErrStopped is returned when the node's owner loop is not running.
	ErrStopped = errors.New("node stopped")

	// ErrNotRetryable is returned when Retry is called on a completed memo.
	ErrNotRetryable = errors.New("memo is not awaiting transcription")
)

// Config wires a Node to its collaborators.
type Config struct {
	DeviceID string
	Role     peer.Role

	Store    *storage.Store
	Editor   *audio.Editor
	Session  *session.Session
	Pipeline *pipeline.Pipeline
	Channel  peer.Channel

	// Publisher receives a memo event for every store change. Optional.
	Publisher eventstream.Publisher

	// IncludeAudio ships WAV bytes with every outgoing snapshot.
	IncludeAudio bool

	// RequestCatalogOnConnect asks the peer for its catalog whenever the
	// channel connects.
	RequestCatalogOnConnect bool

	// TranscribeRemotePending transcribes pending memos received from the
	// peer and pushes the result back.
	TranscribeRemotePending bool

	// DeferTranscription leaves fresh recordings pending for the peer to
	// transcribe instead of transcribing locally. Extensions are spliced
	// locally and only the added audio is left for the peer.
	DeferTranscription bool

	// PushWorkers and QueueSize size the outbox pool.
	PushWorkers uint
	QueueSize   uint

	Logger *slog.Logger

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Node is a running device instance.
type Node struct {
	cfg        Config
	origin     peer.Origin
	store      *storage.Store
	editor     *audio.Editor
	session    *session.Session
	pipeline   *pipeline.Pipeline
	channel    peer.Channel
	publisher  eventstream.Publisher
	reconciler *reconcile.Reconciler
	outbox     *outbox.Pool
	logger     *slog.Logger
	now        func() time.Time

	ops     chan func()
	stopped chan struct{}

	// inflight is only touched on the owner goroutine.
	inflight map[string]struct{}
	jobs     sync.WaitGroup
}

// New creates a Node. Call Run to start its owner loop.
func New(cfg Config) (*Node, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("node requires a device id")
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("unknown device role %q", cfg.Role)
	}
	if cfg.Store == nil || cfg.Editor == nil || cfg.Session == nil || cfg.Pipeline == nil || cfg.Channel == nil {
		return nil, errors.New("node requires a store, editor, session, pipeline and channel")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("device_id", cfg.DeviceID, "role", cfg.Role)

	pool, err := outbox.NewPool(&outbox.Config{
		Sender:     cfg.Channel,
		NumWorkers: cfg.PushWorkers,
		QueueSize:  cfg.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating outbox: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Node{
		cfg:        cfg,
		origin:     peer.Origin{DeviceID: cfg.DeviceID, Role: cfg.Role},
		store:      cfg.Store,
		editor:     cfg.Editor,
		session:    cfg.Session,
		pipeline:   cfg.Pipeline,
		channel:    cfg.Channel,
		publisher:  cfg.Publisher,
		reconciler: reconcile.New(cfg.Store, cfg.Editor, logger),
		outbox:     pool,
		logger:     logger,
		now:        now,
		ops:        make(chan func()),
		stopped:    make(chan struct{}),
		inflight:   make(map[string]struct{}),
	}, nil
}

// Origin identifies this device on the sync channel.
func (n *Node) Origin() peer.Origin {
	return n.origin
}

// Run is the owner loop. It serializes operations, pipeline completions and
// inbound sync events until ctx ends.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.stopped)

	n.logger.Info("node started")
	events := n.channel.Events()
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("node stopping")
			return ctx.Err()
		case op := <-n.ops:
			op()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			n.handleEvent(ctx, ev)
		}
	}
}

// Wait blocks until every in-flight pipeline has been stored.
func (n *Node) Wait() {
	n.jobs.Wait()
}

// Close drains pending pushes. Call it after Run has returned.
func (n *Node) Close() {
	n.outbox.Close()
}

// do runs fn on the owner goroutine and returns its error.
func (n *Node) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	op := func() { errc <- fn() }

	select {
	case n.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopped:
		return ErrStopped
	}

	// An accepted op always runs to completion before Run returns.
	return <-errc
}

// launch runs work off the owner goroutine and posts its outcome back.
func (n *Node) launch(id string, work func(ctx context.Context) pipeline.Outcome, base audio.Ref) {
	n.inflight[id] = struct{}{}
	n.jobs.Add(1)

	go func() {
		defer n.jobs.Done()

		// Pipelines are never aborted once started.
		outcome := work(context.Background())

		err := n.do(context.Background(), func() error {
			n.complete(context.Background(), id, base, outcome)
			return nil
		})
		if err != nil {
			n.logger.Warn("pipeline finished after node stopped, result dropped",
				"memo_id", id,
				"error", err,
			)
		}
	}()
}

// complete stores a pipeline outcome. It runs on the owner goroutine.
func (n *Node) complete(ctx context.Context, id string, base audio.Ref, outcome pipeline.Outcome) {
	delete(n.inflight, id)
	next := outcome.Memo

	current, err := n.store.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			n.logger.Info("memo deleted while its pipeline ran, result dropped", "memo_id", id)
			if next.AudioRef != base {
				n.editor.Discard(ctx, next.AudioRef)
			}
			return
		}
		n.logger.Error("reading memo for pipeline result", "memo_id", id, "error", err)
		return
	}

	// The peer may have touched the memo meanwhile; the local result still
	// lands after it.
	if !next.NewerThan(current) {
		next.Touch(current.Timestamp)
	}

	if err := n.save(ctx, next); err != nil {
		n.logger.Error("storing pipeline result", "memo_id", id, "error", err)
		return
	}

	if next.AudioRef != base && current.AudioRef == base {
		n.editor.Discard(ctx, base)
	}

	if outcome.Err != nil {
		n.logger.Warn("memo marked failed", "memo_id", id, "error", outcome.Err)
	}
}

// save stores m, publishes the change and pushes it to the peer.
func (n *Node) save(ctx context.Context, m *memo.Memo) error {
	if err := n.store.InsertOrReplace(ctx, m); err != nil {
		return err
	}
	n.publish(ctx, eventstream.EventTypeMemoStored, m)
	n.push(ctx, m)
	return nil
}

func (n *Node) publish(ctx context.Context, eventType string, m *memo.Memo) {
	if n.publisher == nil {
		return
	}
	source := eventstream.EventSource{DeviceID: n.origin.DeviceID, Role: string(n.origin.Role)}
	event := eventstream.NewMemoEvent(eventType, source, m, n.now())
	if err := n.publisher.PublishMemo(ctx, event); err != nil {
		n.logger.Warn("failed to publish memo event",
			"memo_id", m.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}

func (n *Node) push(ctx context.Context, m *memo.Memo) {
	n.outbox.Enqueue(outbox.Job{Message: n.origin.MemoUpdate(n.snapshot(ctx, m))})
}

// snapshot wraps m for the wire, attaching its audio when configured.
func (n *Node) snapshot(ctx context.Context, m *memo.Memo) peer.Snapshot {
	snap := peer.Snapshot{Memo: *m.Clone()}
	if !n.cfg.IncludeAudio || m.AudioRef == "" {
		return snap
	}

	data, err := n.editor.ReadAll(ctx, m.AudioRef)
	if err != nil {
		n.logger.Warn("sending memo without audio",
			"memo_id", m.ID,
			"audio_ref", m.AudioRef,
			"error", err,
		)
		return snap
	}
	snap.Audio = data
	return snap
}

// StartRecording begins a fresh capture.
func (n *Node) StartRecording(ctx context.Context) error {
	return n.do(ctx, func() error {
		return n.session.Start(ctx)
	})
}

// StartExtend begins a capture that will be spliced onto memo id.
func (n *Node) StartExtend(ctx context.Context, id string) error {
	return n.do(ctx, func() error {
		if _, err := n.store.Get(ctx, id); err != nil {
			return err
		}
		if _, busy := n.inflight[id]; busy {
			return fmt.Errorf("%w: %s", ErrBusy, id)
		}
		return n.session.StartExtend(ctx, id)
	})
}

// PauseRecording pauses the current capture.
func (n *Node) PauseRecording(ctx context.Context) error {
	return n.do(ctx, n.session.Pause)
}

// ResumeRecording resumes a paused capture.
func (n *Node) ResumeRecording(ctx context.Context) error {
	return n.do(ctx, n.session.Resume)
}

// Write feeds captured PCM frames to the session. It may be called from a
// capture goroutine.
func (n *Node) Write(p []byte) (int, error) {
	return n.session.Write(p)
}

// SessionState reports the recording session state.
func (n *Node) SessionState() session.State {
	return n.session.State()
}

// Format is the PCM layout Write expects.
func (n *Node) Format() audio.Format {
	return n.session.Format()
}

// StopRecording finalizes the capture. A fresh capture becomes a new pending
// memo; an extension marks its target pending. Either way the memo as stored
// at stop time is returned and the pipeline continues in the background.
func (n *Node) StopRecording(ctx context.Context) (*memo.Memo, error) {
	var stored *memo.Memo
	err := n.do(ctx, func() error {
		res, err := n.session.Stop(ctx)
		if err != nil {
			return err
		}

		if res.Extension {
			stored, err = n.beginExtension(ctx, res)
			return err
		}

		stored, err = n.beginFresh(ctx, res)
		return err
	})
	return stored, err
}

func (n *Node) beginFresh(ctx context.Context, res session.Result) (*memo.Memo, error) {
	m := memo.New(res.Ref, n.now())
	if err := n.save(ctx, m); err != nil {
		n.editor.Discard(ctx, res.Ref)
		return nil, err
	}

	n.logger.Info("memo recorded",
		"memo_id", m.ID,
		"audio_ref", m.AudioRef,
		"duration", res.Duration,
	)

	if !n.cfg.DeferTranscription {
		n.launch(m.ID, n.transcription(m), m.AudioRef)
	}
	return m.Clone(), nil
}

func (n *Node) beginExtension(ctx context.Context, res session.Result) (*memo.Memo, error) {
	target, err := n.store.Get(ctx, res.MemoID)
	if err != nil {
		n.editor.Discard(ctx, res.Ref)
		return nil, err
	}
	if _, busy := n.inflight[target.ID]; busy {
		n.editor.Discard(ctx, res.Ref)
		return nil, fmt.Errorf("%w: %s", ErrBusy, target.ID)
	}

	if err := target.SetStatus(memo.StatusPending); err != nil {
		n.editor.Discard(ctx, res.Ref)
		return nil, err
	}
	target.Touch(n.now())
	if err := n.save(ctx, target); err != nil {
		n.editor.Discard(ctx, res.Ref)
		return nil, err
	}

	n.logger.Info("memo extension captured",
		"memo_id", target.ID,
		"addition", res.Ref,
		"duration", res.Duration,
	)

	snap := target.Clone()
	n.launch(target.ID, func(ctx context.Context) pipeline.Outcome {
		if n.cfg.DeferTranscription {
			return n.pipeline.Splice(ctx, snap, res.Ref)
		}
		return n.pipeline.Extend(ctx, snap, res.Ref)
	}, target.AudioRef)
	return target.Clone(), nil
}

// transcription returns the job that brings m's transcript up to date: the
// untranscribed delta alone when there is one, the whole recording otherwise.
func (n *Node) transcription(m *memo.Memo) func(ctx context.Context) pipeline.Outcome {
	snap := m.Clone()
	if snap.HasDelta() {
		return func(ctx context.Context) pipeline.Outcome {
			return n.pipeline.TranscribeDelta(ctx, snap)
		}
	}
	return func(ctx context.Context) pipeline.Outcome {
		return n.pipeline.Transcribe(ctx, snap)
	}
}

// Get returns the memo with the given id.
func (n *Node) Get(ctx context.Context, id string) (*memo.Memo, error) {
	return n.store.Get(ctx, id)
}

// List returns every memo, newest first.
func (n *Node) List(ctx context.Context) ([]*memo.Memo, error) {
	memos, err := n.store.List(ctx)
	if err != nil {
		return nil, err
	}
	memo.SortNewestFirst(memos)
	return memos, nil
}

// Delete removes a memo and releases its audio. The peer is not told.
func (n *Node) Delete(ctx context.Context, id string) error {
	return n.do(ctx, func() error {
		removed, err := n.store.Remove(ctx, id)
		if err != nil {
			return err
		}
		n.publish(ctx, eventstream.EventTypeMemoRemoved, removed)
		n.logger.Info("memo deleted", "memo_id", id)
		return nil
	})
}

// Retry starts a new transcription of a failed or stalled pending memo. A
// device that defers transcription only marks the memo pending again and
// pushes it for the peer to pick up; when its transcript already covers the
// audio, as after a failed splice, the memo is completed instead.
func (n *Node) Retry(ctx context.Context, id string) (*memo.Memo, error) {
	var stored *memo.Memo
	err := n.do(ctx, func() error {
		m, err := n.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, busy := n.inflight[id]; busy {
			return fmt.Errorf("%w: %s", ErrBusy, id)
		}
		if m.Status == memo.StatusCompleted {
			return fmt.Errorf("%w: %s", ErrNotRetryable, id)
		}

		if err := m.SetStatus(memo.StatusPending); err != nil {
			return err
		}
		covered := n.cfg.DeferTranscription && !m.HasDelta() && m.Transcript != ""
		if covered {
			_ = m.SetStatus(memo.StatusCompleted)
		}
		m.Touch(n.now())
		if err := n.save(ctx, m); err != nil {
			return err
		}

		if !n.cfg.DeferTranscription {
			n.launch(id, n.transcription(m), m.AudioRef)
		}

		n.logger.Info("transcription retried",
			"memo_id", id,
			"delta_only", m.HasDelta(),
			"already_covered", covered,
		)
		stored = m.Clone()
		return nil
	})
	return stored, err
}

// OpenAudio returns the audio of a memo for playback.
func (n *Node) OpenAudio(ctx context.Context, id string) (*memo.Memo, io.ReadCloser, error) {
	m, err := n.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := n.editor.Open(ctx, m.AudioRef)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audio of memo %s: %w", id, err)
	}
	return m, rc, nil
}

// RequestCatalog asks the peer for its whole collection. ErrUnreachable is
// returned when no peer is connected; the request is not retried.
func (n *Node) RequestCatalog(ctx context.Context) error {
	return n.channel.Send(ctx, n.origin.CatalogRequest())
}
