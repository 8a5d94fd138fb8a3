// Package bootstrap wires the engram runtime — storage, embedder, vector
// store, eventstream, and the memory manager — from a resolved viper config.
// Commands share it so flag/env/file precedence builds the same stack
// everywhere.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/config"
	embeddingutils "github.com/engramhq/engram/pkg/embeddings/utils"
	"github.com/engramhq/engram/pkg/eventstream"
	"github.com/engramhq/engram/pkg/eventstream/kafka"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/storage"
	storageutils "github.com/engramhq/engram/pkg/storage/utils"
	"github.com/engramhq/engram/pkg/vector"
)

// defaultSQLiteFile is created under the .engram/ directory when no sqlite
// path is configured.
const defaultSQLiteFile = "engram.db"

// Runtime holds the assembled engram stack.
type Runtime struct {
	Manager *memory.Manager
	Storer  storage.Driver

	logger *zap.Logger
}

// NewRuntime builds the full stack from the given viper config.
func NewRuntime(ctx context.Context, v *viper.Viper, logger *zap.Logger) (*Runtime, error) {
	dims := v.GetUint("embedding.dimensions")

	sqlitePath := v.GetString("storage.sqlite_path")
	if sqlitePath == "" && v.GetString("storage.provider") == "sqlite" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for sqlite path: %w", err)
		}
		dir := filepath.Join(home, config.DotDirName)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		sqlitePath = filepath.Join(dir, defaultSQLiteFile)
	}

	storer, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		ProviderType: v.GetString("storage.provider"),
		SQLitePath:   sqlitePath,
		PostgresDSN:  v.GetString("storage.postgres_dsn"),
		Dimensions:   dims,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage driver: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		APIKey:       os.Getenv("OPENAI_API_KEY"),
	})
	if err != nil {
		storer.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	store, err := vector.NewStore(ctx, vector.Config{
		IndexCapacity: int(v.GetUint("index.capacity")),
		Dimensions:    int(dims),
	}, storer, embedder, logger)
	if err != nil {
		storer.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	events, err := newPublisher(v)
	if err != nil {
		storer.Close()
		return nil, err
	}

	manager, err := memory.NewManager(store, storer, events, logger)
	if err != nil {
		storer.Close()
		return nil, fmt.Errorf("creating memory manager: %w", err)
	}

	return &Runtime{
		Manager: manager,
		Storer:  storer,
		logger:  logger,
	}, nil
}

func newPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	switch provider := v.GetString("events.provider"); provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		brokers := config.EventsConfig{Brokers: v.GetString("events.brokers")}.KafkaBrokers()
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   v.GetString("events.topic"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", provider)
	}
}

// Close releases the runtime's resources.
func (r *Runtime) Close() error {
	if err := r.Manager.Close(); err != nil {
		r.logger.Warn("failed to close event publisher", zap.Error(err))
	}
	return r.Storer.Close()
}
