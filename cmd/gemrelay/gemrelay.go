// Package gemrelaycmder
package gemrelaycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/gemrelay/cmd/gemrelay/config"
	modelscmder "github.com/papercomputeco/gemrelay/cmd/gemrelay/models"
	servecmder "github.com/papercomputeco/gemrelay/cmd/gemrelay/serve"
	versioncmder "github.com/papercomputeco/gemrelay/cmd/version"
)

const gemrelayLongDesc string = `gemrelay relays chat generation requests to the Gemini streaming API and
re-emits the response as a normalized server-sent event stream.

Run the relay using:
  gemrelay serve          Run the relay server

Inspect and manage configuration using:
  gemrelay config list    List configuration values
  gemrelay models         Show the model mnemonic table`

const gemrelayShortDesc string = "gemrelay - Gemini SSE relay"

func NewGemrelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gemrelay",
		Short:        gemrelayShortDesc,
		Long:         gemrelayLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .gemrelay/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
