package health

import (
	"agent_trader/internal/modules/config"
	exec "agent_trader/internal/modules/execution/service"
	"agent_trader/internal/modules/health/service"
	"agent_trader/internal/runner"
	"agent_trader/pkg/logger"
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
)

func NewHandler(cfg *config.Config, state *service.State, board *runner.Board, inbox *runner.Inbox, fb *exec.Feedback) *service.Handler {
	// три пропущенных тика, уже не готовы
	return service.NewHandler(state, board, inbox, fb, 3*cfg.Runner.TickInterval)
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, h *service.Handler) {
	srv := &http.Server{
		Addr:              cfg.Health.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Health.Addr)
			if err != nil {
				return err
			}
			logger.Info("[HTTP] listening on %s", cfg.Health.Addr)
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			func(s *service.State) runner.Health { return s },
			NewHandler,
		),
		fx.Invoke(RunHTTP),
	)
}
