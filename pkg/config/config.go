package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/voicenotes/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .voicenotes/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// orderedKeys lists config keys in the TOML section layout.
var orderedKeys = []string{
	"device.id",
	"device.role",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"blob.driver",
	"blob.root",
	"blob.s3_bucket",
	"blob.s3_region",
	"blob.s3_endpoint",
	"blob.s3_path_style",
	"blob.s3_prefix",
	"audio.sample_rate",
	"audio.channels",
	"audio.bits_per_sample",
	"transcription.provider",
	"transcription.model",
	"transcription.language",
	"transcription.api_key",
	"transcription.base_url",
	"transcription.google_project",
	"transcription.google_region",
	"sync.listen",
	"sync.peer",
	"sync.token",
	"sync.include_audio",
	"sync.push_workers",
	"sync.queue_size",
	"api.listen",
	"client.api_target",
	"events.provider",
	"events.brokers",
	"events.topic",
}

// ValidConfigKeys returns the list of all supported configuration key names
// in a stable order matching the TOML section layout.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// IsSecretKey reports whether a key holds a credential that listings mask.
func IsSecretKey(key string) bool {
	return key == "transcription.api_key" || key == "sync.token" || key == "storage.postgres_dsn"
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// Dir is the resolved .voicenotes/ directory, or empty.
func (c *Configer) Dir() string {
	if c.targetPath == "" {
		return ""
	}
	return filepath.Dir(c.targetPath)
}

// LoadConfig loads the configuration from config.toml in the target
// .voicenotes/ directory. If the file does not exist, returns defaults so
// callers always receive a fully-populated Config. Fields explicitly set in
// the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Device.Role == "" {
		cfg.Device.Role = defaults.Device.Role
	}

	if cfg.Blob.Driver == "" {
		cfg.Blob.Driver = defaults.Blob.Driver
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}
	if cfg.Audio.BitsPerSample == 0 {
		cfg.Audio.BitsPerSample = defaults.Audio.BitsPerSample
	}

	if cfg.Transcription.Provider == "" {
		cfg.Transcription.Provider = defaults.Transcription.Provider
	}

	if cfg.Sync.Listen == "" {
		cfg.Sync.Listen = defaults.Sync.Listen
	}
	if cfg.Sync.PushWorkers == 0 {
		cfg.Sync.PushWorkers = defaults.Sync.PushWorkers
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = defaults.Sync.QueueSize
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Client.APITarget == "" {
		cfg.Client.APITarget = defaults.Client.APITarget
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .voicenotes/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// DefaultConfigValue returns the built-in default of the given key.
func DefaultConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}
	return info.get(NewDefaultConfig()), nil
}

// PresetConfig returns a Config with sane defaults for the named device preset.
// Supported presets: "phone" (primary with cloud transcription) and "watch"
// (companion without speech recognition that dials the phone).
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "phone":
		cfg.Device.Role = RolePrimary
		cfg.Transcription.Provider = "openai"
		cfg.Transcription.Model = "whisper-1"
		return cfg, nil

	case "watch":
		cfg.Device.Role = RoleCompanion
		cfg.Transcription.Provider = "none"
		cfg.Sync.Listen = ""
		cfg.Sync.Peer = "ws://localhost:8082/sync"
		cfg.API.Listen = ":8083"
		cfg.Client.APITarget = "http://localhost:8083"
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: phone, watch)", name)
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"phone", "watch"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	// A false zero value cannot be told apart from an absent key.
	if !meta.IsDefined("sync", "include_audio") {
		cfg.Sync.IncludeAudio = defaultIncludeAudio
	}

	if cfg.Device.Role != "" && cfg.Device.Role != RolePrimary && cfg.Device.Role != RoleCompanion {
		return nil, fmt.Errorf("unknown device role %q", cfg.Device.Role)
	}

	return cfg, nil
}
