// Package memoscmder provides the memos command for browsing the memos of a
// running device.
package memoscmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/voicenotes/api/client"
	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/config"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/utils"
)

const previewLen = 60

type memosCommander struct {
	apiTarget string
	status    string
	sync      bool
}

const memosLongDesc string = `List memos on a running voicenotes device, newest first.

Use --status to show only pending, completed or failed memos. Use --sync to
ask the device to pull its peer's catalog before listing.

Examples:
  voicenotes memos
  voicenotes memos --status failed
  voicenotes memos --sync --api-target http://localhost:8083`

const memosShortDesc string = "List memos"

func NewMemosCmd() *cobra.Command {
	cmder := &memosCommander{}

	cmd := &cobra.Command{
		Use:   "memos",
		Short: memosShortDesc,
		Long:  memosLongDesc,
		Args:  cobra.NoArgs,
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
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVar(&cmder.status, "status", "", "Only show memos with this status (pending, completed, failed)")
	cmd.Flags().BoolVar(&cmder.sync, "sync", false, "Pull the peer's catalog before listing")

	return cmd
}

func (c *memosCommander) run(ctx context.Context) error {
	status := memo.Status(c.status)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", c.status)
	}

	cl, err := client.New(c.apiTarget)
	if err != nil {
		return err
	}

	if c.sync {
		if err := cl.RequestCatalog(ctx); err != nil {
			fmt.Printf("  %s %s\n", cliui.FailMark, cliui.DimStyle.Render(fmt.Sprintf("catalog request failed: %v", err)))
		}
	}

	memos, err := cl.ListMemos(ctx, status)
	if err != nil {
		return err
	}

	if len(memos) == 0 {
		fmt.Println("No memos.")
		return nil
	}

	for _, m := range memos {
		fmt.Println(formatMemo(m))
	}
	return nil
}

func formatMemo(m *memo.Memo) string {
	preview := strings.ReplaceAll(m.Transcript, "\n", " ")
	if preview == "" {
		preview = "(no transcript)"
	}

	return fmt.Sprintf("  %s  %s  %-9s  %s",
		cliui.KeyStyle.Render(m.ID),
		cliui.DimStyle.Render(m.Timestamp.Local().Format("2006-01-02 15:04")),
		cliui.Status(m.Status),
		cliui.ValueStyle.Render(utils.Truncate(preview, previewLen)),
	)
}
