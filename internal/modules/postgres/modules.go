package postgres

import (
	"agent_trader/internal/modules/config"
	"agent_trader/pkg/db"
	"agent_trader/pkg/logger"
	"context"
	"fmt"

	"go.uber.org/fx"
)

// Module даёт *db.Pool. Без DSN отдаёт nil: Postgres для журнала необязателен.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (*db.Pool, error) {
				if cfg.Postgres.DSN == "" {
					logger.Info("[PG] dsn is empty, postgres mirror disabled")
					return nil, nil
				}

				pool, err := db.Open(ctx, db.PoolConfig{
					DSN:            cfg.Postgres.DSN,
					MaxConns:       cfg.Postgres.MaxConns,
					ConnectTimeout: cfg.Postgres.ConnectTimeout,
				})
				if err != nil {
					return nil, fmt.Errorf("postgres: %w", err)
				}
				logger.Info("[PG] connected, max_conns=%d", cfg.Postgres.MaxConns)

				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						pool.Close()
						return nil
					},
				})
				return pool, nil
			},
		),
	)
}
