package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/config"
)

const listLongDesc string = `List configuration values grouped by section.

Shows every key with its effective value from the config.toml file stored
in the .voicenotes/ directory. Values that differ from the built-in default
are marked with *. Credentials are masked.

Examples:
  voicenotes config list
  voicenotes config list --changed
  voicenotes config list --section sync`

const listShortDesc string = "List configuration values"

type listCommander struct {
	configDir string
	section   string
	changed   bool
}

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.section, "section", "", "Only list keys of this section (e.g. sync)")
	cmd.Flags().BoolVar(&cmder.changed, "changed", false, "Only list values that differ from the defaults")

	return cmd
}

// entry is one listed key.
type entry struct {
	key     string
	value   string
	changed bool
}

func (c *listCommander) run(w io.Writer) error {
	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(target))
	} else {
		fmt.Fprintf(w, "\n  %s\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	var (
		sections []string
		grouped  = map[string][]entry{}
		width    int
	)
	for _, key := range config.ValidConfigKeys() {
		section, name, _ := strings.Cut(key, ".")
		if c.section != "" && section != c.section {
			continue
		}

		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		def, err := config.DefaultConfigValue(key)
		if err != nil {
			return err
		}
		if c.changed && value == def {
			continue
		}

		if _, ok := grouped[section]; !ok {
			sections = append(sections, section)
		}
		grouped[section] = append(grouped[section], entry{key: name, value: display(key, value), changed: value != def})
		width = max(width, len(name))
	}

	if len(sections) == 0 {
		if c.section != "" && !hasSection(c.section) {
			return fmt.Errorf("unknown config section: %q", c.section)
		}
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("Nothing to show."))
		return nil
	}

	for _, section := range sections {
		fmt.Fprintf(w, "\n  %s\n", cliui.KeyStyle.Render("["+section+"]"))
		for _, e := range grouped[section] {
			mark := " "
			if e.changed {
				mark = "*"
			}

			value := cliui.ValueStyle.Render(e.value)
			if e.value == "" {
				value = cliui.DimStyle.Render("<not set>")
			}
			fmt.Fprintf(w, "  %s %-*s  %s\n", mark, width, e.key, value)
		}
	}
	fmt.Fprintln(w)

	return nil
}

func hasSection(section string) bool {
	for _, key := range config.ValidConfigKeys() {
		if strings.HasPrefix(key, section+".") {
			return true
		}
	}
	return false
}
