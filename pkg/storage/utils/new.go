// Package storageutils is the storage utility package
package storageutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/storage"
	"github.com/engramhq/engram/pkg/storage/inmemory"
	"github.com/engramhq/engram/pkg/storage/postgres"
	"github.com/engramhq/engram/pkg/storage/sqlitevec"
)

type NewDriverOpts struct {
	ProviderType string
	SQLitePath   string
	PostgresDSN  string
	Dimensions   uint
	Logger       *zap.Logger
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.SQLitePath,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "postgres":
		return postgres.NewDriver(ctx, postgres.Config{
			ConnStr:    o.PostgresDSN,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", o.ProviderType)
	}
}
