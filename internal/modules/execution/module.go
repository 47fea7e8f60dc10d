package execution

import (
	"agent_trader/internal/modules/config"
	"agent_trader/internal/modules/execution/service"
	journal "agent_trader/internal/modules/journal/service"
	okx "agent_trader/internal/modules/okx_client/service"

	"go.uber.org/fx"
)

// Module собирает конвейер исполнения: гейт, BE-реестр, кольца обратной связи, исполнитель.
func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			func(cfg *config.Config) *service.Breakeven {
				return service.NewBreakeven(cfg.Execution.BETolerance, cfg.Execution.BEFeeBuffer)
			},
			func(cfg *config.Config) *service.Feedback {
				return service.NewFeedback(cfg.Execution.FeedbackSize)
			},
			func(cfg *config.Config, be *service.Breakeven) *service.Gate {
				e := cfg.Execution
				return service.NewGate(service.GateConfig{
					DedupWindow:        e.DedupWindow,
					OrderDedupWindow:   e.OrderDedupWindow,
					TriggerDedupWindow: e.TriggerDedupWindow,
					MaxOpenOrders:      e.MaxOpenOrders,
					MaxAddsPerHour:     e.MaxAddsPerHour,
					MinHoldTime:        e.MinHoldTime,
					ReentryCooldown:    e.ReentryCooldown,
				}, be)
			},
			func(
				cfg *config.Config,
				client *okx.Client,
				j *journal.Journal,
				gate *service.Gate,
				be *service.Breakeven,
				fb *service.Feedback,
			) *service.Executor {
				return service.NewExecutor(cfg, client, j, gate, be, fb)
			},
		),
	)
}
