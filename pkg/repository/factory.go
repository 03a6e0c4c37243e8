package repository

import (
	"context"
	"fmt"

	"github.com/umputun/commentscope/pkg/config"
)

// NewQuotaStore opens the quota store selected by cfg.Type
func NewQuotaStore(ctx context.Context, cfg Config) (QuotaStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = "users"
	}
	switch cfg.Type {
	case config.StorageSQLite, "":
		return NewSQLiteStore(ctx, cfg)
	case config.StoragePostgres:
		return NewPostgresStore(ctx, cfg)
	case config.StorageFirestore:
		return NewFirestoreStore(ctx, cfg)
	case config.StorageMongo:
		return NewMongoStore(ctx, cfg)
	case config.StorageDynamo:
		return NewDynamoStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
