// Package statscmder provides the stats command for summarizing memories.
package statscmder

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramhq/engram/cmd/engram/bootstrap"
	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/logger"
)

type statsCommander struct {
	owner string

	debug  bool
	viper  *viper.Viper
	logger *zap.Logger
}

const statsLongDesc string = `Summarize an owner's stored memories.

Shows the total count, counts per type and per tag, and how many
memories were added in the last 24 hours.

Examples:
  engram stats --owner alice`

const statsShortDesc string = "Summarize stored memories"

func NewStatsCmd() *cobra.Command {
	cmder := &statsCommander{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "", "Owner id whose memories to summarize (required)")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func (c *statsCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	rt, err := bootstrap.NewRuntime(ctx, c.viper, c.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.Manager.Stats(ctx, c.owner)
	if err != nil {
		return err
	}

	fmt.Printf("Total memories:  %d\n", stats.Total)
	fmt.Printf("Added last 24h:  %d\n", stats.RecentlyAdded)

	printCounts("By type", stats.ByType)
	printCounts("By tag", stats.ByTag)

	return nil
}

func printCounts(header string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("\n%s:\n", header)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}
