// Package google transcribes memos with Google Cloud Speech-to-Text v2.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	speech "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
)

const (
	defaultLanguageCode = "en-US"
	defaultModel        = "long"
	globalRegion        = "global"
)

// Config configures the Google transcriber.
type Config struct {
	ProjectID string
	Region    string
	Model     string
	Language  string

	// APIKey is optional; application default credentials are used otherwise.
	APIKey string
}

// Transcriber implements transcribe.Transcriber.
type Transcriber struct {
	client *speech.Client
	source transcribe.Source
	cfg    Config
	logger *slog.Logger
}

// New dials the Speech-to-Text service.
func New(ctx context.Context, cfg Config, source transcribe.Source, logger *slog.Logger) (*Transcriber, error) {
	if cfg.ProjectID == "" {
		return nil, transcribe.Unavailablef("google project id not configured")
	}
	if cfg.Region == "" {
		cfg.Region = globalRegion
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguageCode
	}

	client, err := speech.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, transcribe.Unavailablef("creating speech client: %v", err)
	}

	return &Transcriber{client: client, source: source, cfg: cfg, logger: logger}, nil
}

// ClientOptions returns the dial options for cfg. Regional recognizers live
// behind regional endpoints.
func ClientOptions(cfg Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Region != "" && cfg.Region != globalRegion {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:443", cfg.Region)))
	}
	return opts
}

// Recognizer is the implicit recognizer resource for cfg.
func Recognizer(cfg Config) string {
	region := cfg.Region
	if region == "" {
		region = globalRegion
	}
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", cfg.ProjectID, region)
}

// RecognitionConfig describes raw PCM in format for the recognizer.
func RecognitionConfig(cfg Config, format audio.Format) *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
			ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
				Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
				SampleRateHertz:   int32(format.SampleRate),
				AudioChannelCount: int32(format.Channels),
			},
		},
		Features: &speechpb.RecognitionFeatures{
			EnableAutomaticPunctuation: true,
		},
		LanguageCodes: strings.Split(cfg.Language, ","),
		Model:         cfg.Model,
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, ref audio.Ref) (string, error) {
	seg, err := t.source.Load(ctx, ref)
	if err != nil {
		return "", transcribe.RecognitionFailedf("loading %s: %v", ref, err)
	}
	if seg.Format.BitsPerSample != 16 {
		return "", transcribe.RecognitionFailedf("%d-bit audio is not LINEAR16", seg.Format.BitsPerSample)
	}

	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer:  Recognizer(t.cfg),
		Config:      RecognitionConfig(t.cfg, seg.Format),
		AudioSource: &speechpb.RecognizeRequest_Content{Content: seg.PCM},
	})
	if err != nil {
		return "", transcribe.Unavailablef("recognize: %v", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", transcribe.RecognitionFailedf("no speech recognized in %s", ref)
	}

	t.logger.Debug("google transcription complete", "ref", ref, "results", len(parts))
	return strings.Join(parts, " "), nil
}

// Close releases the client connection.
func (t *Transcriber) Close() error {
	return t.client.Close()
}
