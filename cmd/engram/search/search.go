// Package searchcmder provides the search command for querying memories.
package searchcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramhq/engram/cmd/engram/bootstrap"
	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/logger"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/vector"
)

type searchCommander struct {
	owner     string
	limit     int
	threshold float64
	memType   string

	debug  bool
	viper  *viper.Viper
	logger *zap.Logger
}

const searchLongDesc string = `Search an owner's memories by meaning.

Results are ranked by similarity. When the embedding provider is down
the search degrades to substring matching; when the ranked backend is
down it degrades to the local index.

Examples:
  engram search --owner alice "sky color"
  engram search --owner alice --limit 10 --threshold 0.5 "sky color"`

const searchShortDesc string = "Search memories by meaning"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd.Context(), strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "", "Owner id whose memories to search (required)")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 0, "Number of results to return (default 5)")
	cmd.Flags().Float64Var(&cmder.threshold, "threshold", 0, "Minimum similarity in [0, 1] (default 0.7)")
	cmd.Flags().StringVar(&cmder.memType, "type", "", "Restrict results to one memory type")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, query string) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	rt, err := bootstrap.NewRuntime(ctx, c.viper, c.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	results, err := rt.Manager.SearchMemories(ctx, c.owner, query, vector.SearchOptions{
		Limit:     c.limit,
		Threshold: float32(c.threshold),
		Type:      record.Type(c.memType),
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No matching memories.")
		return nil
	}

	for i, res := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, res.Similarity, res.ID)
		if res.Content != "" {
			fmt.Printf("   %s\n", res.Content)
		}
	}

	return nil
}
