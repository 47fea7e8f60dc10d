package service

import (
	"agent_trader/pkg/logger"
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
)

// Connect проверяет доступ к приватному API с экспоненциальной паузой между попытками.
// Если так и не вышло, клиент остаётся в degraded-режиме, ошибка возвращается один раз.
func (c *Client) Connect(ctx context.Context) error {
	if c.apiKey == "" || c.apiSecret == "" {
		c.setDegraded(true)
		return errors.New("okx credentials are not configured")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	if c.connectBackoff > 0 {
		b.MaxInterval = c.connectBackoff
	}
	attempts := c.connectAttempts
	if attempts == 0 {
		attempts = 1
	}

	acc, err := backoff.Retry(ctx, func() (float64, error) {
		acc, err := c.fetchAccount(ctx)
		if err != nil {
			// неверные ключи повтором не лечатся
			if KindOf(err) == KindRejected {
				return 0, backoff.Permanent(err)
			}
			return 0, err
		}
		return acc.Equity, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("[OKX] connect failed, retry in %s: %v", next.Round(time.Millisecond), err)
		}),
	)
	if err != nil {
		c.setDegraded(true)
		return errors.Wrapf(err, "okx connect after %d attempts", attempts)
	}

	c.setDegraded(false)
	logger.Info("[OKX] connected, equity=%.2f USDT", acc)
	return nil
}
