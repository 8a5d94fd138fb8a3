// Package addcmder provides the add command for storing a memory.
package addcmder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramhq/engram/cmd/engram/bootstrap"
	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/logger"
	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/vector/hnsw"
)

type addCommander struct {
	owner      string
	title      string
	memContext string
	tags       []string
	memType    string

	debug  bool
	viper  *viper.Viper
	logger *zap.Logger
}

const addLongDesc string = `Store a memory for an owner.

The content is embedded for semantic retrieval. When the embedding
provider is unavailable the memory is stored anyway and stays reachable
through substring search.

Examples:
  engram add --owner alice "The sky is blue"
  engram add --owner alice --type semantic --tags color,sky "The sky is blue"`

const addShortDesc string = "Store a memory"

func NewAddCmd() *cobra.Command {
	cmder := &addCommander{}

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: addShortDesc,
		Long:  addLongDesc,
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

	cmd.Flags().StringVarP(&cmder.owner, "owner", "o", "", "Owner id the memory belongs to (required)")
	cmd.Flags().StringVarP(&cmder.title, "title", "t", "", "Short title for the memory")
	cmd.Flags().StringVar(&cmder.memContext, "context", "", "Surrounding context for the memory")
	cmd.Flags().StringSliceVar(&cmder.tags, "tags", nil, "Comma-separated tags")
	cmd.Flags().StringVar(&cmder.memType, "type", "", "Memory type (defaults to generic)")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func (c *addCommander) run(ctx context.Context, content string) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	rt, err := bootstrap.NewRuntime(ctx, c.viper, c.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	stored, err := rt.Manager.AddMemory(ctx, c.owner, memory.AddInput{
		Title:   c.title,
		Content: content,
		Context: c.memContext,
		Tags:    c.tags,
		Type:    record.Type(c.memType),
	})
	if err != nil && !errors.Is(err, hnsw.ErrCapacityExceeded) {
		return err
	}

	fmt.Printf("Stored memory %s (type %s)\n", stored.ID, stored.Type)
	if stored.Embedding == nil {
		fmt.Println("Note: embedding provider unavailable; stored without embedding.")
	}
	if err != nil {
		fmt.Println("Warning: local index at capacity; offline search will not see this memory.")
	}

	return nil
}
