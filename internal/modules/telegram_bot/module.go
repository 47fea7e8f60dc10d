package telegram

import (
	"agent_trader/internal/modules/config"
	exec "agent_trader/internal/modules/execution/service"
	"agent_trader/internal/modules/telegram_bot/service"
	"agent_trader/internal/runner"
	"agent_trader/pkg/logger"
	"context"

	"go.uber.org/fx"
)

// Module: ручное управление через телеграм. Без токена модуль ничего не поднимает.
func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			func(cfg *config.Config, inbox *runner.Inbox, board *runner.Board, fb *exec.Feedback) (*service.Telegram, error) {
				if cfg.Telegram.Token == "" {
					logger.Info("[TG] token is empty, telegram disabled")
					return nil, nil
				}
				return service.NewTelegram(cfg, inbox, board, fb)
			},
			// Адаптер: *service.Telegram -> runner.Notifier
			func(t *service.Telegram) runner.Notifier {
				if t == nil {
					return nil
				}
				return t
			},
		),
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram, ctx context.Context) {
				if t == nil {
					return
				}
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						t.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
