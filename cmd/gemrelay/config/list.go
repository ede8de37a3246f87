package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/gemrelay/pkg/cliui"
	"github.com/papercomputeco/gemrelay/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays every configuration key and its effective value from the
config.toml file stored in the .gemrelay/ directory, followed by one
models.<mnemonic> entry per model table mapping.

Examples:
  gemrelay config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd, configDir)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	printTarget(out, cfger)

	keys := config.ListKeys(cfg)

	// Find the longest key name for alignment.
	maxLen := 0
	for _, k := range keys {
		if len(k) > maxLen {
			maxLen = len(k)
		}
	}

	for _, key := range keys {
		value, err := config.ConfigValue(cfg, key)
		if err != nil {
			return err
		}

		value = displayValue(key, value)
		if value == "" {
			cliui.Fprintf(out, "  %-*s = %s\n", maxLen, key, cliui.DimStyle.Render("<not set>"))
		} else {
			cliui.Fprintf(out, "  %-*s = %q\n", maxLen, key, value)
		}
	}

	cliui.Fprintf(out, "\n")
	return nil
}
