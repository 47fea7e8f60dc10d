package main

import (
	"agent_trader/internal/metrics"
	"agent_trader/internal/modules/bootstrap"
	"agent_trader/internal/modules/config"
	"agent_trader/internal/modules/execution"
	"agent_trader/internal/modules/health"
	"agent_trader/internal/modules/journal"
	"agent_trader/internal/modules/okx_client"
	"agent_trader/internal/modules/okx_websocket"
	"agent_trader/internal/modules/postgres"
	"agent_trader/internal/modules/publisher"
	telegram "agent_trader/internal/modules/telegram_bot"
	"agent_trader/internal/runner"
	"agent_trader/pkg/logger"
	"agent_trader/pkg/tracing"
	"context"

	"go.uber.org/fx"
)

const serviceName = "agent_trader"

func main() {
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			logger.Init(cfg.Logger)
			metrics.Init()

			_, closeTracer, err := tracing.InitTracer(cfg.Tracing)
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					logger.Sync()
					return nil
				},
			})
			return nil
		}),
		postgres.Module(),
		okx_client.Module(),
		okx_websocket.Module(),
		bootstrap.Module(),
		journal.Module(),
		execution.Module(),
		runner.Module(),
		publisher.Module(),
		telegram.Module(),
		health.Module(),
	)
	app.Run()
}
