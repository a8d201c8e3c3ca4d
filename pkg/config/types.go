package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent voicenotes configuration stored as
// config.toml in the .voicenotes/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version       int                 `toml:"version"`
	Device        DeviceConfig        `toml:"device"`
	Storage       StorageConfig       `toml:"storage"`
	Blob          BlobConfig          `toml:"blob"`
	Audio         AudioConfig         `toml:"audio"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Sync          SyncConfig          `toml:"sync"`
	API           APIConfig           `toml:"api"`
	Client        ClientConfig        `toml:"client"`
	Events        EventsConfig        `toml:"events"`
}

// DeviceConfig identifies this device within its pair.
type DeviceConfig struct {
	// ID defaults to the host name when empty.
	ID string `toml:"id,omitempty"`

	// Role is "primary" or "companion".
	Role string `toml:"role,omitempty"`
}

// StorageConfig selects the Recording Store backend. With neither field set
// memos are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// BlobConfig selects where audio segments are kept.
type BlobConfig struct {
	// Driver is "memory", "fs" or "s3".
	Driver string `toml:"driver,omitempty"`

	// Root is the fs driver directory. Empty means <config dir>/audio.
	Root string `toml:"root,omitempty"`

	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3PathStyle bool   `toml:"s3_path_style,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
}

// AudioConfig is the PCM layout of captured audio.
type AudioConfig struct {
	SampleRate    uint `toml:"sample_rate,omitempty"`
	Channels      uint `toml:"channels,omitempty"`
	BitsPerSample uint `toml:"bits_per_sample,omitempty"`
}

// TranscriptionConfig selects the speech-to-text provider.
type TranscriptionConfig struct {
	// Provider is "none", "openai" or "google".
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	Language string `toml:"language,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`

	GoogleProject string `toml:"google_project,omitempty"`
	GoogleRegion  string `toml:"google_region,omitempty"`
}

// SyncConfig holds the device-to-device channel settings. The primary
// listens; the companion dials Peer.
type SyncConfig struct {
	Listen       string `toml:"listen,omitempty"`
	Peer         string `toml:"peer,omitempty"`
	Token        string `toml:"token,omitempty"`
	IncludeAudio bool   `toml:"include_audio"`
	PushWorkers  uint   `toml:"push_workers,omitempty"`
	QueueSize    uint   `toml:"queue_size,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// voicenotes server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// EventsConfig selects where memo events are published.
type EventsConfig struct {
	// Provider is "none" or "kafka".
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func oneOfKey(name string, allowed []string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			for _, a := range allowed {
				if v == a {
					*field(c) = v
					return nil
				}
			}
			return fmt.Errorf("invalid value for %s: %q (allowed: %v)", name, v, allowed)
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"device.id":   stringKey(func(c *Config) *string { return &c.Device.ID }),
	"device.role": oneOfKey("device.role", []string{RolePrimary, RoleCompanion}, func(c *Config) *string { return &c.Device.Role }),

	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"blob.driver":        oneOfKey("blob.driver", []string{"memory", "fs", "s3"}, func(c *Config) *string { return &c.Blob.Driver }),
	"blob.root":          stringKey(func(c *Config) *string { return &c.Blob.Root }),
	"blob.s3_bucket":     stringKey(func(c *Config) *string { return &c.Blob.S3Bucket }),
	"blob.s3_region":     stringKey(func(c *Config) *string { return &c.Blob.S3Region }),
	"blob.s3_endpoint":   stringKey(func(c *Config) *string { return &c.Blob.S3Endpoint }),
	"blob.s3_path_style": boolKey("blob.s3_path_style", func(c *Config) *bool { return &c.Blob.S3PathStyle }),
	"blob.s3_prefix":     stringKey(func(c *Config) *string { return &c.Blob.S3Prefix }),

	"audio.sample_rate":     uintKey("audio.sample_rate", func(c *Config) *uint { return &c.Audio.SampleRate }),
	"audio.channels":        uintKey("audio.channels", func(c *Config) *uint { return &c.Audio.Channels }),
	"audio.bits_per_sample": uintKey("audio.bits_per_sample", func(c *Config) *uint { return &c.Audio.BitsPerSample }),

	"transcription.provider":       oneOfKey("transcription.provider", []string{"none", "openai", "google"}, func(c *Config) *string { return &c.Transcription.Provider }),
	"transcription.model":          stringKey(func(c *Config) *string { return &c.Transcription.Model }),
	"transcription.language":       stringKey(func(c *Config) *string { return &c.Transcription.Language }),
	"transcription.api_key":        stringKey(func(c *Config) *string { return &c.Transcription.APIKey }),
	"transcription.base_url":       stringKey(func(c *Config) *string { return &c.Transcription.BaseURL }),
	"transcription.google_project": stringKey(func(c *Config) *string { return &c.Transcription.GoogleProject }),
	"transcription.google_region":  stringKey(func(c *Config) *string { return &c.Transcription.GoogleRegion }),

	"sync.listen":        stringKey(func(c *Config) *string { return &c.Sync.Listen }),
	"sync.peer":          stringKey(func(c *Config) *string { return &c.Sync.Peer }),
	"sync.token":         stringKey(func(c *Config) *string { return &c.Sync.Token }),
	"sync.include_audio": boolKey("sync.include_audio", func(c *Config) *bool { return &c.Sync.IncludeAudio }),
	"sync.push_workers":  uintKey("sync.push_workers", func(c *Config) *uint { return &c.Sync.PushWorkers }),
	"sync.queue_size":    uintKey("sync.queue_size", func(c *Config) *uint { return &c.Sync.QueueSize }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"events.provider": oneOfKey("events.provider", []string{"none", "kafka"}, func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
}
