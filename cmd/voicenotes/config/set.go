package configcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file stored in
the .voicenotes/ directory. Enumerated keys (device.role, blob.driver,
transcription.provider, events.provider) only accept their listed values.

Credentials (transcription.api_key, sync.token, storage.postgres_dsn) may omit
the value: it is then read from the terminal without echo, or from the first
line of stdin when piped, and stays out of shell history.

Examples:
  voicenotes config set device.role companion
  voicenotes config set transcription.provider openai
  voicenotes config set transcription.api_key
  voicenotes config set sync.include_audio false`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "set <key> [value]",
		Short:             setShortDesc,
		Long:              setLongDesc,
		Args:              cobra.RangeArgs(1, 2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			if len(args) == 2 {
				return runSet(args[0], args[1], configDir)
			}

			if !config.IsSecretKey(args[0]) {
				return fmt.Errorf("missing value for %s", args[0])
			}
			value, err := readSecret(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runSet(args[0], value, configDir)
		},
	}

	return cmd
}

// readSecret prompts on a terminal and otherwise takes the first line of in.
func readSecret(key string, in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Printf("Enter value for %s: ", key)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", key, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}

func runSet(key, value, configDir string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(cfger)

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Printf("  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(display(key, value)),
	)
	return nil
}
