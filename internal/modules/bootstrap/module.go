package bootstrap

import (
	"agent_trader/internal/modules/bootstrap/service"
	"agent_trader/internal/modules/config"
	okx "agent_trader/internal/modules/okx_client/service"
	"agent_trader/pkg/logger"
	"context"

	"go.uber.org/fx"
)

// Module прогревает кеши клиента по списку наблюдения, не задерживая старт.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			func(c *okx.Client) *service.Warmuper { return service.NewWarmuper(c) },
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, cfg *config.Config, wu *service.Warmuper) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						if err := wu.Warmup(ctx, cfg.Runner.WatchSymbols); err != nil {
							logger.Warn("[BOOT] warmup: %v", err)
						}
					}()
					return nil
				},
			})
		}),
	)
}
