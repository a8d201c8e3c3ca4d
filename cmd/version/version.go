// Package versioncmder provides the version command.
package versioncmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/utils"
)

type versionCommander struct {
	short bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version, commit and build time of this CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print only the version")

	return cmd
}

func (c *versionCommander) run(w io.Writer) error {
	if c.short {
		_, err := fmt.Fprintln(w, utils.Version)
		return err
	}

	for _, row := range [][2]string{
		{"Version", utils.Version},
		{"Sha", utils.Sha},
		{"Built at", utils.Buildtime},
	} {
		if _, err := fmt.Fprintf(w, "%s %s\n", cliui.KeyStyle.Render(row[0]+":"), row[1]); err != nil {
			return err
		}
	}
	return nil
}
