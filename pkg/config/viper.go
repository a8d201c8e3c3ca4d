package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/voicenotes/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "VOICENOTES"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the VOICENOTES_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (VOICENOTES_API_LISTEN, VOICENOTES_SYNC_PEER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: VOICENOTES_DEVICE_ROLE, VOICENOTES_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Device
	v.SetDefault("device.id", d.Device.ID)
	v.SetDefault("device.role", d.Device.Role)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Blob
	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.root", d.Blob.Root)
	v.SetDefault("blob.s3_bucket", d.Blob.S3Bucket)
	v.SetDefault("blob.s3_region", d.Blob.S3Region)
	v.SetDefault("blob.s3_endpoint", d.Blob.S3Endpoint)
	v.SetDefault("blob.s3_path_style", d.Blob.S3PathStyle)
	v.SetDefault("blob.s3_prefix", d.Blob.S3Prefix)

	// Audio
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.bits_per_sample", d.Audio.BitsPerSample)

	// Transcription
	v.SetDefault("transcription.provider", d.Transcription.Provider)
	v.SetDefault("transcription.model", d.Transcription.Model)
	v.SetDefault("transcription.language", d.Transcription.Language)
	v.SetDefault("transcription.api_key", d.Transcription.APIKey)
	v.SetDefault("transcription.base_url", d.Transcription.BaseURL)
	v.SetDefault("transcription.google_project", d.Transcription.GoogleProject)
	v.SetDefault("transcription.google_region", d.Transcription.GoogleRegion)

	// Sync
	v.SetDefault("sync.listen", d.Sync.Listen)
	v.SetDefault("sync.peer", d.Sync.Peer)
	v.SetDefault("sync.token", d.Sync.Token)
	v.SetDefault("sync.include_audio", d.Sync.IncludeAudio)
	v.SetDefault("sync.push_workers", d.Sync.PushWorkers)
	v.SetDefault("sync.queue_size", d.Sync.QueueSize)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}

// FromViper resolves a Config from v, honoring the full precedence chain.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Device: DeviceConfig{
			ID:   v.GetString("device.id"),
			Role: v.GetString("device.role"),
		},
		Storage: StorageConfig{
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Blob: BlobConfig{
			Driver:      v.GetString("blob.driver"),
			Root:        v.GetString("blob.root"),
			S3Bucket:    v.GetString("blob.s3_bucket"),
			S3Region:    v.GetString("blob.s3_region"),
			S3Endpoint:  v.GetString("blob.s3_endpoint"),
			S3PathStyle: v.GetBool("blob.s3_path_style"),
			S3Prefix:    v.GetString("blob.s3_prefix"),
		},
		Audio: AudioConfig{
			SampleRate:    v.GetUint("audio.sample_rate"),
			Channels:      v.GetUint("audio.channels"),
			BitsPerSample: v.GetUint("audio.bits_per_sample"),
		},
		Transcription: TranscriptionConfig{
			Provider:      v.GetString("transcription.provider"),
			Model:         v.GetString("transcription.model"),
			Language:      v.GetString("transcription.language"),
			APIKey:        v.GetString("transcription.api_key"),
			BaseURL:       v.GetString("transcription.base_url"),
			GoogleProject: v.GetString("transcription.google_project"),
			GoogleRegion:  v.GetString("transcription.google_region"),
		},
		Sync: SyncConfig{
			Listen:       v.GetString("sync.listen"),
			Peer:         v.GetString("sync.peer"),
			Token:        v.GetString("sync.token"),
			IncludeAudio: v.GetBool("sync.include_audio"),
			PushWorkers:  v.GetUint("sync.push_workers"),
			QueueSize:    v.GetUint("sync.queue_size"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetString("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
	}
}
