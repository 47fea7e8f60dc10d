package okx_client

import (
	"agent_trader/internal/modules/okx_client/service"
	"agent_trader/pkg/logger"
	"context"

	"go.uber.org/fx"
)

// Module поднимает REST-клиент OKX и проверяет подключение на старте.
func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(
			service.NewClient,
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// не блокируем старт приложения ретраями
					go func() {
						if err := c.Connect(context.Background()); err != nil {
							logger.Error("[OKX] %v; continuing in degraded mode", err)
						}
					}()
					return nil
				},
			})
		}),
	)
}
