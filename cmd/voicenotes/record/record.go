// Package recordcmder provides the record command, which feeds a WAV file
// through a running device's recording session.
package recordcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/voicenotes/api/client"
	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/config"
	"github.com/papercomputeco/voicenotes/pkg/memo"
)

type recordCommander struct {
	apiTarget string
	extend    string
}

const recordLongDesc string = `Record a memo from a WAV file on a running voicenotes device.

The file is uploaded through the device's recording session exactly as if it
had been captured live: a fresh memo is created, or with --extend the audio
is appended to an existing memo. Transcription continues on the device after
this command returns.

The file must match the device's audio format (audio.sample_rate,
audio.channels, audio.bits_per_sample).

Examples:
  voicenotes record note.wav
  voicenotes record more.wav --extend 7c9e6679-7425-40de-944b-e07fc1f90ae7`

const recordShortDesc string = "Record a memo from a WAV file"

func NewRecordCmd() *cobra.Command {
	cmder := &recordCommander{}

	cmd := &cobra.Command{
		Use:   "record <file.wav>",
		Short: recordShortDesc,
		Long:  recordLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ClientFlags, []string{config.FlagAPITarget})
			cmder.apiTarget = v.GetString("client.api_target")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), args[0])
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVarP(&cmder.extend, "extend", "e", "", "Append the audio to this memo instead of creating a new one")

	return cmd
}

func (c *recordCommander) run(ctx context.Context, path string) error {
	wav, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	seg, err := audio.DecodeBytes(wav)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cl, err := client.New(c.apiTarget)
	if err != nil {
		return err
	}

	fmt.Println()
	if err := cliui.Step(os.Stdout, c.startMessage(), func() error {
		if c.extend != "" {
			return cl.StartExtend(ctx, c.extend)
		}
		return cl.StartRecording(ctx)
	}); err != nil {
		return err
	}

	err = cliui.Step(os.Stdout, fmt.Sprintf("Uploading %s of audio", cliui.FormatDuration(seg.Duration())), func() error {
		_, err := cl.UploadWAV(ctx, wav)
		return err
	})
	if err != nil {
		// Return the device to idle.
		if m, stopErr := cl.StopRecording(ctx); stopErr == nil {
			fmt.Printf("  %s\n", cliui.DimStyle.Render("capture stopped as memo "+m.ID))
		}
		return err
	}

	var stored *memo.Memo
	if err := cliui.Step(os.Stdout, "Stopping capture", func() error {
		var err error
		stored, err = cl.StopRecording(ctx)
		return err
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s %s  %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(stored.ID),
		cliui.Status(stored.Status),
	)
	return nil
}

func (c *recordCommander) startMessage() string {
	if c.extend != "" {
		return "Extending memo " + c.extend
	}
	return "Starting capture"
}
