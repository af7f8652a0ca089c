package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tokenboard/tokenboard/internal/auth"
	"github.com/tokenboard/tokenboard/internal/cache"
	"github.com/tokenboard/tokenboard/internal/config"
	"github.com/tokenboard/tokenboard/internal/identity"
	"github.com/tokenboard/tokenboard/internal/ingest"
	"github.com/tokenboard/tokenboard/internal/leaderboard"
	"github.com/tokenboard/tokenboard/internal/observability"
	"github.com/tokenboard/tokenboard/internal/store"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	DBPool        *pgxpool.Pool
	Redis         *redis.Client
	Observability *observability.Provider

	Store       *store.Postgres
	Directory   *identity.Postgres
	Leaderboard *leaderboard.Service
	Ingest      *ingest.Service
	Keys        *auth.KeyStore
	Admin       *auth.AdminService
}

// NewContainer wires services onto shared infrastructure. Redis and the
// observability provider are optional; everything else is required.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, obs *observability.Provider) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}

	recordStore := store.NewPostgres(pool)
	directory := identity.NewPostgres(pool)

	var fence *cache.SyncFence
	if redisClient != nil {
		fence = cache.NewSyncFence(redisClient, cfg.Ingest.IdempotencyTTL)
	}

	admin, err := auth.NewAdminService(ctx, cfg.Admin, pool)
	if err != nil {
		return nil, fmt.Errorf("init admin auth: %w", err)
	}

	return &Container{
		Config:        cfg,
		DBPool:        pool,
		Redis:         redisClient,
		Observability: obs,
		Store:         recordStore,
		Directory:     directory,
		Leaderboard:   leaderboard.NewService(recordStore, directory, nil),
		Ingest:        ingest.NewService(recordStore, fence, obs, cfg.Ingest, nil),
		Keys:          auth.NewKeyStore(pool),
		Admin:         admin,
	}, nil
}
