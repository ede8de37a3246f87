// Package modelscmder provides the models command, which prints the
// effective model mnemonic table.
package modelscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/gemrelay/pkg/cliui"
	"github.com/papercomputeco/gemrelay/pkg/config"
	"github.com/papercomputeco/gemrelay/pkg/gemini"
)

const modelsLongDesc string = `List the model mnemonics the relay accepts.

Clients select a model by sending a short mnemonic in the "modelType" field.
Unknown or missing mnemonics fall back to the default. The table combines the
built-in mnemonics with any models.<mnemonic> entries in config.toml.

Examples:
  gemrelay models
  gemrelay config set models.think gemini-2.5-pro && gemrelay models`

const modelsShortDesc string = "List model mnemonics"

func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runModels(cmd, configDir)
		},
	}

	return cmd
}

func runModels(cmd *cobra.Command, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	table, err := gemini.NewModelTable(cfg.Models, cfg.Upstream.DefaultModel)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(table.Mnemonics()))
	for _, mnemonic := range table.Mnemonics() {
		_, id := table.Resolve(mnemonic)
		def := ""
		if mnemonic == table.Default() {
			def = cliui.SuccessMark
		}
		rows = append(rows, []string{mnemonic, id, def})
	}

	cliui.Fprintf(cmd.OutOrStdout(), "%s\n", cliui.Table([]string{"MNEMONIC", "MODEL", "DEFAULT"}, rows))
	return nil
}
