// Package configcmder provides the config command for managing persistent
// gemrelay configuration stored in the .gemrelay/ directory.
package configcmder

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/gemrelay/pkg/cliui"
	"github.com/papercomputeco/gemrelay/pkg/config"
	"github.com/papercomputeco/gemrelay/pkg/utils"
)

const configLongDesc string = `Manage persistent gemrelay configuration.

Configuration is stored as config.toml in the .gemrelay/ directory and provides
default values for "gemrelay serve". Flags and environment variables always
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.host, server.port,
  upstream.base_url, upstream.api_key, upstream.default_model,
  log.json, log.pretty, log.file,
  metrics.enabled,
  models.<mnemonic>

Use subcommands to get, set, or list configuration values:
  gemrelay config set <key> <value>    Set a configuration value
  gemrelay config get <key>            Get a configuration value
  gemrelay config list                 List all configuration values

Examples:
  gemrelay config set server.port 8080
  gemrelay config set models.think gemini-2.5-pro
  gemrelay config get upstream.default_model
  gemrelay config list`

const configShortDesc string = "Manage persistent gemrelay configuration"

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

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		cliui.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	cliui.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

// displayValue masks secret values.
func displayValue(key, value string) string {
	if config.IsSecretConfigKey(key) {
		return utils.MaskSecret(value)
	}
	return value
}
