package service

import (
	"agent_trader/internal/runner"
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis кладёт последний снимок ядра под ключ с TTL и рассылает его в канал
// для дашбордов.
type Redis struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
}

var _ runner.Publisher = (*Redis)(nil)

func NewRedis(client *redis.Client, key, channel string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, channel: channel, ttl: ttl}
}

func (r *Redis) Publish(ctx context.Context, s runner.Snapshot) error {
	raw, err := sonic.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		if r.key != "" {
			p.Set(ctx, r.key, raw, r.ttl)
		}
		if r.channel != "" {
			p.Publish(ctx, r.channel, raw)
		}
		return nil
	})
	return errors.Wrapf(err, "publish snapshot tick=%d", s.Tick)
}

// Latest читает снимок, сохранённый последним Publish.
func (r *Redis) Latest(ctx context.Context) (runner.Snapshot, bool, error) {
	var s runner.Snapshot
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, false, nil
	}
	if err != nil {
		return s, false, errors.Wrap(err, "get snapshot")
	}
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return s, false, errors.Wrap(err, "unmarshal snapshot")
	}
	return s, true, nil
}
