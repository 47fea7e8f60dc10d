package okx_websocket

import (
	okxclient "agent_trader/internal/modules/okx_client/service"
	"agent_trader/internal/modules/okx_websocket/service"
	"context"

	"go.uber.org/fx"
)

// Module поднимает стрим цен марки OKX и кладёт их в REST-клиент.
func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(
			func(c *okxclient.Client) service.MarkSink { return c },
			service.NewClient,
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Client) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					s.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
