// Package openai transcribes memos with the OpenAI audio transcription API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
)

const defaultModel = openai.AudioModelWhisper1

// Config configures the OpenAI transcriber.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// Transcriber implements transcribe.Transcriber.
type Transcriber struct {
	client   openai.Client
	source   transcribe.Source
	model    openai.AudioModel
	language string
	logger   *slog.Logger
}

// New creates a transcriber. The client never retries on its own.
func New(cfg Config, source transcribe.Source, logger *slog.Logger) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, transcribe.Unavailablef("openai api key not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.AudioModel(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &Transcriber{
		client:   openai.NewClient(opts...),
		source:   source,
		model:    model,
		language: cfg.Language,
		logger:   logger,
	}, nil
}

func (t *Transcriber) Transcribe(ctx context.Context, ref audio.Ref) (string, error) {
	data, err := t.source.ReadAll(ctx, ref)
	if err != nil {
		return "", transcribe.RecognitionFailedf("reading %s: %v", ref, err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(data), "memo.wav", audio.ContentType),
		Model: t.model,
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", transcribe.RecognitionFailedf("empty transcription for %s", ref)
	}

	t.logger.Debug("openai transcription complete", "ref", ref, "chars", len(text))
	return text, nil
}

// classify maps client errors onto the transcription taxonomy: the request
// itself being rejected means the audio was unusable, anything else means the
// service could not be reached.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return transcribe.RecognitionFailedf("openai rejected audio: %v", err)
		}
		return transcribe.Unavailablef("openai returned %d: %v", apiErr.StatusCode, err)
	}
	return transcribe.Unavailablef("openai request failed: %v", err)
}
