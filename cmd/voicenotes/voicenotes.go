// Package voicenotescmder is the root voicenotes command.
package voicenotescmder

import (
	"os"

	"github.com/spf13/cobra"

	versioncmder "github.com/papercomputeco/voicenotes/cmd/version"
	configcmder "github.com/papercomputeco/voicenotes/cmd/voicenotes/config"
	importcmder "github.com/papercomputeco/voicenotes/cmd/voicenotes/import"
	initcmder "github.com/papercomputeco/voicenotes/cmd/voicenotes/init"
	memoscmder "github.com/papercomputeco/voicenotes/cmd/voicenotes/memos"
	recordcmder "github.com/papercomputeco/voicenotes/cmd/voicenotes/record"
	servecmder "github.com/papercomputeco/voicenotes/cmd/voicenotes/serve"
	"github.com/papercomputeco/voicenotes/pkg/cliui"
)

const voicenotesLongDesc string = `Voicenotes records voice memos, transcribes them and keeps a phone and a
watch in sync.

Run a device using:
  voicenotes serve                 Run this device (API + sync)
  voicenotes memos                 List memos on a running device
  voicenotes record note.wav       Upload a recording as a new memo
  voicenotes import ~/Recordings   Import a folder of recordings`

const voicenotesShortDesc string = "Voicenotes - voice memos across two devices"

func NewVoicenotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "voicenotes",
		Short:        voicenotesShortDesc,
		Long:         voicenotesLongDesc,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			noColor, _ := cmd.Flags().GetBool("no-color")
			if noColor || os.Getenv("NO_COLOR") != "" {
				cliui.DisableColor()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .voicenotes/ config directory")
	cmd.PersistentFlags().Bool("no-color", false, "Disable styled terminal output")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(memoscmder.NewMemosCmd())
	cmd.AddCommand(recordcmder.NewRecordCmd())
	cmd.AddCommand(importcmder.NewImportCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
