package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"turtle-internet/config"
	"turtle-internet/internal/game"
	awsinfra "turtle-internet/internal/infrastructure/aws"
	"turtle-internet/internal/relay"
	"turtle-internet/internal/storage"
)

// Dependencies are the storage backends the server runs on. Resolver and
// Signer are nil when no blob storage is configured.
type Dependencies struct {
	Store    game.Store
	Resolver storage.Resolver
	Signer   relay.Signer
	// Cache is set when signed URLs are cached in process and need sweeping.
	Cache *storage.MemoryCache

	closers []func() error
}

// NewDependencies connects the backends selected by cfg.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	var awsCfg *awsinfra.AWSConfig
	if cfg.StoreDriver == config.StoreDriverDynamoDB || cfg.StorageBucket != "" {
		var err error
		awsCfg, err = awsinfra.NewAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
	}

	switch cfg.StoreDriver {
	case config.StoreDriverDynamoDB:
		deps.Store = game.NewDynamoStore(awsCfg.DynamoDB, cfg.GamesTable, cfg.CategoriesTable)
	case config.StoreDriverMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		deps.Store = game.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.StorageBucket == "" {
		slog.Warn("no storage bucket configured, storage references stay unresolved")
		return deps, nil
	}

	signer := storage.NewS3Store(s3.NewPresignClient(awsCfg.S3), cfg.StorageBucket, cfg.StoragePublicBase, cfg.SignedURLTTL)
	deps.Signer = signer

	if cfg.RedisURL != "" {
		cache, err := storage.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.closers = append(deps.closers, cache.Close)
		deps.Resolver = storage.NewCachedResolver(signer, cache, signer.TTL())
		return deps, nil
	}

	cache := storage.NewMemoryCache()
	deps.Cache = cache
	deps.Resolver = storage.NewCachedResolver(signer, cache, signer.TTL())
	return deps, nil
}

// Close releases connections opened by NewDependencies.
func (d *Dependencies) Close() {
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
}
