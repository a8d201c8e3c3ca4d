package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/papercomputeco/voicenotes/pkg/audio"
)

// Response is one scripted transcription outcome.
type Response struct {
	Text string
	Err  error
}

// ScriptedTranscriber returns Responses in order, then Default.
type ScriptedTranscriber struct {
	mu sync.Mutex

	Responses []Response
	Default   Response

	// Gate, when set, blocks every call until a value is received or the
	// context ends.
	Gate chan struct{}

	// Editor, when set, records the length of every transcribed segment.
	Editor *audio.Editor

	calls     []audio.Ref
	durations []time.Duration
}

func (s *ScriptedTranscriber) Transcribe(ctx context.Context, ref audio.Ref) (string, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var dur time.Duration
	if s.Editor != nil {
		d, err := s.Editor.Duration(ctx, ref)
		if err != nil {
			return "", errors.Join(errors.New("loading audio"), err)
		}
		dur = d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ref)
	if s.Editor != nil {
		s.durations = append(s.durations, dur)
	}

	resp := s.Default
	if len(s.Responses) > 0 {
		resp = s.Responses[0]
		s.Responses = s.Responses[1:]
	}
	return resp.Text, resp.Err
}

// Calls returns the refs transcribed so far.
func (s *ScriptedTranscriber) Calls() []audio.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Ref(nil), s.calls...)
}

// Durations returns the length of every segment transcribed so far. It is
// empty unless Editor is set.
func (s *ScriptedTranscriber) Durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.durations...)
}

// DurationTranscriber "recognizes" a segment as its length, which lets tests
// see exactly which audio was sent for transcription.
type DurationTranscriber struct {
	Editor *audio.Editor

	// Err, when set, is returned instead.
	Err error
}

func (d *DurationTranscriber) Transcribe(ctx context.Context, ref audio.Ref) (string, error) {
	if d.Err != nil {
		return "", d.Err
	}
	dur, err := d.Editor.Duration(ctx, ref)
	if err != nil {
		return "", errors.Join(errors.New("loading audio"), err)
	}
	return fmt.Sprintf("spoken %s", dur), nil
}
