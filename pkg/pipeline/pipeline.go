// Package pipeline turns captured audio into memo updates: transcribing a
// fresh recording, or splicing an extension onto an existing memo and
// transcribing only the new part. A device that cannot transcribe splices
// without transcribing and leaves the delta for its peer.
//
// Pipelines never touch the Recording Store. They compute the memo state the
// device owner should store and return it as an Outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
)

// Editor is the subset of audio.Editor the pipeline needs.
type Editor interface {
	Merge(ctx context.Context, base, addition audio.Ref) (audio.Ref, error)
	Trim(ctx context.Context, ref audio.Ref, start time.Duration) (audio.Ref, error)
	Duration(ctx context.Context, ref audio.Ref) (time.Duration, error)
	Discard(ctx context.Context, refs ...audio.Ref)
}

// Outcome is the result of running a pipeline. Memo is always the state to
// store; Err records why it ended up Failed.
type Outcome struct {
	Memo *memo.Memo
	Err  error
}

// Pipeline runs extension and transcription jobs.
type Pipeline struct {
	editor      Editor
	transcriber transcribe.Transcriber
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline.
func New(editor Editor, transcriber transcribe.Transcriber, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		editor:      editor,
		transcriber: transcriber,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extend splices addition onto m's audio and appends the transcription of the
// added audio alone. When m still carries an untranscribed delta, that delta
// is transcribed along with the addition. On any failure the returned memo
// keeps its audio and transcript, is marked Failed, and every intermediate
// segment is discarded.
func (p *Pipeline) Extend(ctx context.Context, m *memo.Memo, addition audio.Ref) Outcome {
	log := p.logger.With("memo_id", m.ID, "addition", addition)
	base := m.AudioRef

	var merged, delta audio.Ref
	fail := func(step string, err error) Outcome {
		p.editor.Discard(ctx, merged, delta, addition)
		log.Warn("extension failed, memo rolled back", "step", step, "error", err)
		return p.failed(m, fmt.Errorf("%s: %w", step, err))
	}

	merged, err := p.editor.Merge(ctx, base, addition)
	if err != nil {
		return fail("merge", err)
	}

	baseDur, err := p.editor.Duration(ctx, base)
	if err != nil {
		return fail("measure base", err)
	}

	start := baseDur
	if m.HasDelta() {
		start = m.DeltaOffset
	}

	delta, err = p.editor.Trim(ctx, merged, start)
	if err != nil {
		return fail("trim", err)
	}

	text, err := p.transcriber.Transcribe(ctx, delta)
	if err != nil {
		return fail("transcribe", err)
	}

	next := m.Clone()
	next.AudioRef = merged
	next.AppendTranscript(text)
	next.DeltaOffset = 0
	complete(next)
	next.Touch(p.now())

	p.editor.Discard(ctx, delta, addition)

	log.Info("memo extended",
		"base", base,
		"merged", merged,
		"delta_start", start,
	)
	return Outcome{Memo: next}
}

// Splice merges addition onto m's audio without transcribing it. The memo
// keeps the merged audio, stays Pending, and records where the untranscribed
// delta starts so a device that can transcribe finishes it with
// TranscribeDelta. On failure the memo keeps its audio, is marked Failed, and
// the merged segment and the addition are discarded.
func (p *Pipeline) Splice(ctx context.Context, m *memo.Memo, addition audio.Ref) Outcome {
	log := p.logger.With("memo_id", m.ID, "addition", addition)
	base := m.AudioRef

	var merged audio.Ref
	fail := func(step string, err error) Outcome {
		p.editor.Discard(ctx, merged, addition)
		log.Warn("splice failed, memo rolled back", "step", step, "error", err)
		return p.failed(m, fmt.Errorf("%s: %w", step, err))
	}

	merged, err := p.editor.Merge(ctx, base, addition)
	if err != nil {
		return fail("merge", err)
	}

	start := m.DeltaOffset
	if !m.HasDelta() {
		start, err = p.editor.Duration(ctx, base)
		if err != nil {
			return fail("measure base", err)
		}
	}

	next := m.Clone()
	next.AudioRef = merged
	next.DeltaOffset = start
	_ = next.SetStatus(memo.StatusPending)
	next.Touch(p.now())

	p.editor.Discard(ctx, addition)

	log.Info("memo spliced, delta left for the peer",
		"base", base,
		"merged", merged,
		"delta_start", start,
	)
	return Outcome{Memo: next}
}

// TranscribeDelta transcribes the audio of m from its DeltaOffset on and
// appends the text. The memo must carry a delta. On failure the memo keeps
// its audio, transcript and offset and is marked Failed.
func (p *Pipeline) TranscribeDelta(ctx context.Context, m *memo.Memo) Outcome {
	log := p.logger.With("memo_id", m.ID, "audio_ref", m.AudioRef, "delta_start", m.DeltaOffset)

	if !m.HasDelta() {
		return p.failed(m, errors.New("memo has no untranscribed delta"))
	}

	delta, err := p.editor.Trim(ctx, m.AudioRef, m.DeltaOffset)
	if err != nil {
		log.Warn("delta transcription failed", "step", "trim", "error", err)
		return p.failed(m, fmt.Errorf("trim: %w", err))
	}
	defer p.editor.Discard(ctx, delta)

	text, err := p.transcriber.Transcribe(ctx, delta)
	if err != nil {
		log.Warn("delta transcription failed", "step", "transcribe", "error", err)
		return p.failed(m, fmt.Errorf("transcribe: %w", err))
	}

	next := m.Clone()
	next.AppendTranscript(text)
	next.DeltaOffset = 0
	complete(next)
	next.Touch(p.now())

	log.Info("memo delta transcribed", "chars", len(text))
	return Outcome{Memo: next}
}

// Transcribe runs a fresh transcription over m's whole audio and replaces
// the transcript with the result.
func (p *Pipeline) Transcribe(ctx context.Context, m *memo.Memo) Outcome {
	log := p.logger.With("memo_id", m.ID, "audio_ref", m.AudioRef)

	text, err := p.transcriber.Transcribe(ctx, m.AudioRef)
	if err != nil {
		log.Warn("transcription failed", "error", err)
		return p.failed(m, fmt.Errorf("transcribe: %w", err))
	}

	next := m.Clone()
	next.Transcript = text
	next.DeltaOffset = 0
	complete(next)
	next.Touch(p.now())

	log.Info("memo transcribed", "chars", len(text))
	return Outcome{Memo: next}
}

func (p *Pipeline) failed(m *memo.Memo, err error) Outcome {
	next := m.Clone()
	finish(next, memo.StatusFailed)
	next.Touch(p.now())
	return Outcome{Memo: next, Err: err}
}

func complete(m *memo.Memo) {
	finish(m, memo.StatusCompleted)
}

// finish ends an attempt. A memo handed in without being marked Pending first
// is treated as having started one.
func finish(m *memo.Memo, to memo.Status) {
	_ = m.SetStatus(memo.StatusPending)
	_ = m.SetStatus(to)
}
