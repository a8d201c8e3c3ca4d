// Package initcmder provides the init command for initializing a local
// .voicenotes directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/config"
)

const dirName = ".voicenotes"

const initLongDesc string = `Initialize a new .voicenotes/ directory in the current working directory.

Creates a local .voicenotes/ directory holding config.toml, the memo database
and recorded audio. It takes precedence over ~/.voicenotes/.

Use --preset to start from a device profile:
  phone    primary device with cloud transcription
  watch    companion device that dials the phone

Examples:
  voicenotes init
  voicenotes init --preset watch --device-id my-watch`

const initShortDesc string = "Initialize a local .voicenotes/ directory"

type initCommander struct {
	preset   string
	deviceID string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Device preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))
	cmd.Flags().StringVar(&cmder.deviceID, "device-id", "", "Device identifier (default: generated)")

	return cmd
}

func (c *initCommander) run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	configPath := filepath.Join(dir, "config.toml")

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg := config.NewDefaultConfig()
	if c.preset != "" {
		cfg, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}
	}

	cfg.Device.ID = c.deviceID
	if cfg.Device.ID == "" {
		cfg.Device.ID = cfg.Device.Role + "-" + uuid.NewString()[:8]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .voicenotes directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Printf("%s Initialized %s as %s (%s)\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(dir),
		cliui.KeyStyle.Render(cfg.Device.ID),
		cfg.Device.Role,
	)
	return nil
}
