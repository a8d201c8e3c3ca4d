// Package transcribe defines the speech-to-text boundary. Providers turn the
// audio behind a ref into text; callers make exactly one attempt per request.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/papercomputeco/voicenotes/pkg/audio"
)

var (
	// ErrUnavailable is returned when no transcription capability is usable:
	// no provider configured, missing credentials, or the service is down.
	ErrUnavailable = errors.New("transcription unavailable")

	// ErrRecognitionFailed is returned when the provider produced no usable text.
	ErrRecognitionFailed = errors.New("speech recognition failed")
)

// Transcriber converts the audio behind a ref into text.
type Transcriber interface {
	Transcribe(ctx context.Context, ref audio.Ref) (string, error)
}

// Source loads the audio a provider sends upstream.
type Source interface {
	Load(ctx context.Context, ref audio.Ref) (*audio.Segment, error)
	ReadAll(ctx context.Context, ref audio.Ref) ([]byte, error)
}

// Unavailable is the Transcriber of a device without speech capability.
type Unavailable struct{}

func (Unavailable) Transcribe(context.Context, audio.Ref) (string, error) {
	return "", ErrUnavailable
}

// Unavailablef wraps ErrUnavailable with detail.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// RecognitionFailedf wraps ErrRecognitionFailed with detail.
func RecognitionFailedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRecognitionFailed, fmt.Sprintf(format, args...))
}
