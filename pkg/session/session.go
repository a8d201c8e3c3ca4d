// Package session implements the recording session state machine: capture
// audio, pause and resume, then finalize the capture as a stored segment.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/capture"
)

// State of a recording session.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateExtending State = "extending"
)

var (
	// ErrDeviceUnavailable is returned when capture cannot start.
	ErrDeviceUnavailable = errors.New("recording device unavailable")

	// ErrAlreadyRecording is returned when a capture is already in progress.
	ErrAlreadyRecording = errors.New("already recording")

	// ErrInvalidState is returned for an operation the current state forbids.
	ErrInvalidState = errors.New("invalid recording state")
)

// Result describes a finished capture.
type Result struct {
	Ref      audio.Ref
	Duration time.Duration

	// Extension is true when the capture was started with StartExtend;
	// MemoID then names the memo being extended.
	Extension bool
	MemoID    string
}

// Saver stores a finished capture.
type Saver interface {
	Save(ctx context.Context, seg *audio.Segment) (audio.Ref, error)
}

// Session captures one recording at a time. It is safe for concurrent use:
// frames may arrive on a capture goroutine while control calls come from the
// device owner.
type Session struct {
	mu sync.Mutex

	device capture.Device
	saver  Saver
	format audio.Format
	logger *slog.Logger

	state State
	// resume is the state to return to from StatePaused.
	resume State
	target string
	pcm    []byte
}

// New creates an idle session writing format PCM through saver.
func New(device capture.Device, saver Saver, format audio.Format, logger *slog.Logger) *Session {
	return &Session{
		device: device,
		saver:  saver,
		format: format,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Format is the PCM layout Write expects.
func (s *Session) Format() audio.Format {
	return s.format
}

// Target is the memo id of an extension capture, or empty.
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Start begins a fresh capture.
func (s *Session) Start(ctx context.Context) error {
	return s.begin(ctx, StateRecording, "")
}

// StartExtend begins a capture that will be spliced onto memoID.
func (s *Session) StartExtend(ctx context.Context, memoID string) error {
	if memoID == "" {
		return fmt.Errorf("%w: extension needs a memo id", ErrInvalidState)
	}
	return s.begin(ctx, StateExtending, memoID)
}

func (s *Session) begin(ctx context.Context, to State, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("%w: session is %s", ErrAlreadyRecording, s.state)
	}

	if err := s.device.Activate(ctx); err != nil {
		s.logger.Warn("capture device unavailable", "error", err)
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	s.state = to
	s.target = target
	s.pcm = nil

	s.logger.Debug("recording started", "state", to, "memo_id", target)
	return nil
}

// Pause stops accepting frames until Resume.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording && s.state != StateExtending {
		return fmt.Errorf("%w: cannot pause while %s", ErrInvalidState, s.state)
	}
	s.resume = s.state
	s.state = StatePaused
	return nil
}

// Resume continues a paused capture.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("%w: cannot resume while %s", ErrInvalidState, s.state)
	}
	s.state = s.resume
	return nil
}

// Write appends PCM frames to the capture. Frames written while paused are
// dropped.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRecording, StateExtending:
		s.pcm = append(s.pcm, p...)
		return len(p), nil
	case StatePaused:
		return len(p), nil
	default:
		return 0, fmt.Errorf("%w: not recording", ErrInvalidState)
	}
}

// Stop finalizes the capture and returns to idle. The captured audio is
// stored as a new segment even if it is empty.
func (s *Session) Stop(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return Result{}, fmt.Errorf("%w: not recording", ErrInvalidState)
	}

	mode := s.state
	if mode == StatePaused {
		mode = s.resume
	}

	seg := audio.NewSegment(s.format, s.pcm)
	target := s.target

	s.state = StateIdle
	s.resume = ""
	s.target = ""
	s.pcm = nil

	if err := s.device.Deactivate(); err != nil {
		s.logger.Warn("failed to deactivate capture device", "error", err)
	}

	ref, err := s.saver.Save(ctx, seg)
	if err != nil {
		return Result{}, fmt.Errorf("saving capture: %w", err)
	}

	res := Result{
		Ref:       ref,
		Duration:  seg.Duration(),
		Extension: mode == StateExtending,
		MemoID:    target,
	}

	s.logger.Debug("recording stopped",
		"ref", ref,
		"duration", res.Duration,
		"extension", res.Extension,
		"memo_id", target,
	)
	return res, nil
}
