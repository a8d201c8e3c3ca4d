package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on both "voicenotes memos" and "voicenotes record").
type Flag struct {
	// Name is the long flag name (e.g. "api-listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "a"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagDeviceID      = "device-id"
	FlagRole          = "role"
	FlagSQLite        = "sqlite"
	FlagPostgres      = "postgres"
	FlagBlobDriver    = "blob-driver"
	FlagBlobRoot      = "blob-root"
	FlagTranscriber   = "transcriber"
	FlagSyncListen    = "sync-listen"
	FlagSyncPeer      = "peer"
	FlagSyncToken     = "sync-token"
	FlagIncludeAudio  = "include-audio"
	FlagPushWorkers   = "push-workers"
	FlagAPIListen     = "api-listen"
	FlagAPITarget     = "api-target"
	FlagEventProvider = "events-provider"
)

// ServeFlags are the flags of "voicenotes serve".
var ServeFlags = FlagSet{
	FlagDeviceID:      {Name: "device-id", ViperKey: "device.id", Description: "Identifier of this device (default: host name)"},
	FlagRole:          {Name: "role", Shorthand: "r", ViperKey: "device.role", Description: "Device role (primary, companion)"},
	FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: .voicenotes/voicenotes.db, \":memory:\" for none)"},
	FlagPostgres:      {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagBlobDriver:    {Name: "blob-driver", ViperKey: "blob.driver", Description: "Audio store driver (memory, fs, s3)"},
	FlagBlobRoot:      {Name: "blob-root", ViperKey: "blob.root", Description: "Directory for the fs audio store"},
	FlagTranscriber:   {Name: "transcriber", Shorthand: "t", ViperKey: "transcription.provider", Description: "Transcription provider (none, openai, google)"},
	FlagSyncListen:    {Name: "sync-listen", ViperKey: "sync.listen", Description: "Address the primary accepts its companion on"},
	FlagSyncPeer:      {Name: "peer", Shorthand: "p", ViperKey: "sync.peer", Description: "Sync URL of the primary, for companions"},
	FlagSyncToken:     {Name: "sync-token", ViperKey: "sync.token", Description: "Pairing token shared by both devices"},
	FlagIncludeAudio:  {Name: "include-audio", ViperKey: "sync.include_audio", Description: "Send audio bytes with memo updates"},
	FlagPushWorkers:   {Name: "push-workers", ViperKey: "sync.push_workers", Description: "Number of sync push workers"},
	FlagAPIListen:     {Name: "api-listen", Shorthand: "a", ViperKey: "api.listen", Description: "Address for API server to listen on"},
	FlagEventProvider: {Name: "events-provider", ViperKey: "events.provider", Description: "Memo event sink (none, kafka)"},
}

// ClientFlags are the flags of commands that talk to a running server.
var ClientFlags = FlagSet{
	FlagAPITarget: {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "Voicenotes API server URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaultsViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	return defaultsViper().GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	return defaultsViper().GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	return defaultsViper().GetBool(viperKey)
}
