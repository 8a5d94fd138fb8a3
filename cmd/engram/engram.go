// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	addcmder "github.com/engramhq/engram/cmd/engram/add"
	configcmder "github.com/engramhq/engram/cmd/engram/config"
	searchcmder "github.com/engramhq/engram/cmd/engram/search"
	servecmder "github.com/engramhq/engram/cmd/engram/serve"
	statscmder "github.com/engramhq/engram/cmd/engram/stats"
)

const engramLongDesc string = `Engram is a per-user semantic memory index.

Store memories, search them by meaning, and keep searching when the
embedding provider or the ranked backend is down.

Common commands:
  engram serve     Run the REST API and MCP servers
  engram add       Store a memory
  engram search    Search memories by meaning
  engram stats     Summarize stored memories`

const engramShortDesc string = "Engram - Semantic Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(addcmder.NewAddCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())

	return cmd
}
