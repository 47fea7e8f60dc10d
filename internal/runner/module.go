package runner

import (
	"agent_trader/internal/modules/config"
	exec "agent_trader/internal/modules/execution/service"
	journal "agent_trader/internal/modules/journal/service"
	okx "agent_trader/internal/modules/okx_client/service"
	"context"

	"go.uber.org/fx"
)

// Params: необязательные участники тика приходят из других модулей, если те включены.
type Params struct {
	fx.In

	Cfg       *config.Config
	Client    *okx.Client
	Executor  *exec.Executor
	Journal   *journal.Journal
	Breakeven *exec.Breakeven
	Feedback  *exec.Feedback
	Inbox     *Inbox
	Board     *Board

	Source    DecisionSource `optional:"true"`
	Publisher Publisher      `optional:"true"`
	Notifier  Notifier       `optional:"true"`
	Health    Health         `optional:"true"`
}

func NewFromParams(p Params) *Runner {
	return New(Deps{
		Exchange:   p.Client,
		Executor:   p.Executor,
		Journal:    p.Journal,
		Breakeven:  p.Breakeven,
		Feedback:   p.Feedback,
		Inbox:      p.Inbox,
		Board:      p.Board,
		Reconciler: NewReconciler(p.Journal, p.Client, p.Breakeven),
		Source:     p.Source,
		Publisher:  p.Publisher,
		Notifier:   p.Notifier,
		Health:     p.Health,
	}, p.Cfg.Runner.TickInterval, p.Cfg.Runner.WatchSymbols)
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config) *Inbox { return NewInbox(cfg.Runner.InboxSize) },
			NewBoard,
			NewFromParams,
		),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					r.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					r.Stop()
					return nil
				},
			})
		}),
	)
}
