// Package configcmder provides the config command for managing persistent
// voicenotes configuration stored in the .voicenotes/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/config"
)

const configLongDesc string = `Manage persistent voicenotes configuration.

Configuration is stored as config.toml in the .voicenotes/ directory and
provides default values for command flags. CLI flags and VOICENOTES_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  device.id, device.role,
  storage.sqlite_path, storage.postgres_dsn,
  blob.driver, blob.root, blob.s3_bucket, ...
  audio.sample_rate, audio.channels, audio.bits_per_sample,
  transcription.provider, transcription.model, transcription.api_key, ...
  sync.listen, sync.peer, sync.token, sync.include_audio, ...
  api.listen, client.api_target,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  voicenotes config set <key> <value>    Set a configuration value
  voicenotes config get <key>            Get a configuration value
  voicenotes config list                 List all configuration values

Examples:
  voicenotes config set device.role companion
  voicenotes config set sync.peer ws://phone.local:8082/sync
  voicenotes config get transcription.provider
  voicenotes config list`

const configShortDesc string = "Manage persistent voicenotes configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Printf("\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}

// display masks credentials.
func display(key, value string) string {
	if value == "" || !config.IsSecretKey(key) {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
