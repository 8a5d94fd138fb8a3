// Package servecmder provides the serve command for running the engram servers.
package servecmder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramhq/engram/api"
	"github.com/engramhq/engram/api/mcp"
	"github.com/engramhq/engram/cmd/engram/bootstrap"
	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/logger"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 10 * time.Second

type ServeCommander struct {
	apiListen     string
	mcpListen     string
	storageProv   string
	sqlitePath    string
	postgresDSN   string
	embedProv     string
	embedTarget   string
	embedModel    string
	embedDims     uint
	indexCapacity uint
	eventsProv    string
	eventsBrokers string
	eventsTopic   string

	debug  bool
	viper  *viper.Viper
	logger *zap.Logger
}

const serveLongDesc string = `Run the engram servers.

Starts the REST API server and the MCP server together, backed by one
shared memory manager. Configuration follows the usual precedence:
CLI flags, then ENGRAM_* environment variables, then config.toml, then
built-in defaults.`

const serveShortDesc string = "Run the engram servers"

// serveFlags are the registry keys this command binds into viper.
var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagMCPListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagIndexCapacity,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, fs, serveFlags)
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

	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &cmder.apiListen)
	config.AddStringFlag(cmd, fs, config.FlagMCPListen, &cmder.mcpListen)
	config.AddStringFlag(cmd, fs, config.FlagStorageProvider, &cmder.storageProv)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingProv, &cmder.embedProv)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingTgt, &cmder.embedTarget)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, fs, config.FlagEmbeddingDims, &cmder.embedDims)
	config.AddUintFlag(cmd, fs, config.FlagIndexCapacity, &cmder.indexCapacity)
	config.AddStringFlag(cmd, fs, config.FlagEventsProvider, &cmder.eventsProv)
	config.AddStringFlag(cmd, fs, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, fs, config.FlagEventsTopic, &cmder.eventsTopic)

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	rt, err := bootstrap.NewRuntime(ctx, c.viper, c.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	apiListen := c.viper.GetString("api.listen")
	mcpListen := c.viper.GetString("mcp.listen")

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: apiListen,
	}, rt.Manager, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Manager: rt.Manager,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpServer.Handler())
	mcpHTTP := &http.Server{
		Addr:    mcpListen,
		Handler: mux,
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	go func() {
		c.logger.Info("starting MCP server",
			zap.String("listen", mcpListen),
		)
		if err := mcpHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("MCP server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", zap.Error(err))
	}
	if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("MCP server shutdown failed", zap.Error(err))
	}

	return nil
}
