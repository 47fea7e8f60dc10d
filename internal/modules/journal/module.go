package journal

import (
	"agent_trader/internal/modules/config"
	"agent_trader/internal/modules/journal/service"
	"agent_trader/pkg/db"
	"agent_trader/pkg/logger"
	"context"

	"go.uber.org/fx"
)

// Module поднимает журнал сделок поверх JSON-файла; при наличии Postgres пишет туда копию.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config, pg *db.Pool) (*service.Journal, error) {
				var mirror service.Mirror
				if pg != nil {
					m := service.NewPgMirror(pg)
					if err := m.Init(ctx); err != nil {
						logger.Warn("[JOURNAL] postgres mirror disabled: %v", err)
					} else {
						mirror = m
					}
				}
				return service.New(service.NewFileStore(cfg.Journal.Path), mirror)
			},
		),
	)
}
