package kvstore

import (
	"context"
	"fmt"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
)

// Handle is an opened store plus the hook that releases its connections.
type Handle struct {
	Store domain.Store
	// Postgres is set when the postgres backend is active so callers can
	// schedule expired-row purges.
	Postgres *Postgres
	Close    func()
}

// Open connects the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Handle, error) {
	switch cfg.StoreBackend {
	case infra.BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("backend", cfg.StoreBackend).Msg("store: connected")
		return &Handle{Store: NewRedis(client), Close: func() { _ = client.Close() }}, nil
	case infra.BackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		pg := NewPostgres(infra.NewSQLRunner(pool, logger))
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Str("backend", cfg.StoreBackend).Msg("store: connected")
		return &Handle{Store: pg, Postgres: pg, Close: pool.Close}, nil
	case infra.BackendMemory:
		logger.Warn().Msg("store: using in-memory backend, state is not shared between processes")
		return &Handle{Store: NewMemory(), Close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
