package config

const (
	RolePrimary   = "primary"
	RoleCompanion = "companion"

	defaultRole        = RolePrimary
	defaultBlobDriver  = "fs"
	defaultSampleRate  = 44100
	defaultChannels    = 1
	defaultBitsPerSamp = 16

	defaultTranscriptionProvider = "none"

	defaultSyncListen   = ":8082"
	defaultPushWorkers  = 1
	defaultQueueSize    = 256
	defaultAPIListen    = ":8081"
	defaultAPITarget    = "http://localhost:8081"
	defaultEventsProv   = "none"
	defaultEventsTopic  = "voicenotes.memos"
	defaultIncludeAudio = true
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Device: DeviceConfig{
			Role: defaultRole,
		},
		Blob: BlobConfig{
			Driver: defaultBlobDriver,
		},
		Audio: AudioConfig{
			SampleRate:    defaultSampleRate,
			Channels:      defaultChannels,
			BitsPerSample: defaultBitsPerSamp,
		},
		Transcription: TranscriptionConfig{
			Provider: defaultTranscriptionProvider,
		},
		Sync: SyncConfig{
			Listen:       defaultSyncListen,
			IncludeAudio: defaultIncludeAudio,
			PushWorkers:  defaultPushWorkers,
			QueueSize:    defaultQueueSize,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultAPITarget,
		},
		Events: EventsConfig{
			Provider: defaultEventsProv,
			Topic:    defaultEventsTopic,
		},
	}
}
