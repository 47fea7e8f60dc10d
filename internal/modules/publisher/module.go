package publisher

import (
	"agent_trader/internal/modules/config"
	"agent_trader/internal/modules/publisher/service"
	"agent_trader/internal/runner"
	"agent_trader/pkg/logger"
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Module публикует снимок ядра в redis. Без redis.addr публикация выключена.
func Module() fx.Option {
	return fx.Module("publisher",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) runner.Publisher {
				rc := cfg.Redis
				if rc.Addr == "" {
					logger.Info("[REDIS] addr is empty, snapshot publishing disabled")
					return nil
				}

				client := redis.NewClient(&redis.Options{
					Addr:     rc.Addr,
					Password: rc.Password,
					DB:       rc.DB,
				})
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
						defer cancel()
						// недоступный redis не мешает торговле, клиент переподключится сам
						if err := client.Ping(pingCtx).Err(); err != nil {
							logger.Warn("[REDIS] ping %s: %v", rc.Addr, err)
						}
						return nil
					},
					OnStop: func(context.Context) error {
						return client.Close()
					},
				})
				return service.NewRedis(client, rc.Key, rc.Channel, rc.TTL)
			},
		),
	)
}
