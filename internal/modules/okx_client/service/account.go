package service

import (
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"net/http"
	"net/url"
)

// Account: сводка по счёту. При ошибке, нулевая сводка.
func (c *Client) Account(ctx context.Context) models.AccountSummary {
	acc, err := c.fetchAccount(ctx)
	if err != nil {
		logger.Error("[OKX] account: %v", err)
		return models.AccountSummary{}
	}
	return acc
}

func (c *Client) fetchAccount(ctx context.Context) (models.AccountSummary, error) {
	data, err := call[wireBalance](ctx, c, request{
		op:      "balance",
		method:  http.MethodGet,
		path:    "/api/v5/account/balance",
		query:   url.Values{"ccy": {"USDT"}},
		private: true,
	})
	if err != nil {
		return models.AccountSummary{}, err
	}
	if len(data) == 0 {
		return models.AccountSummary{}, &CallError{Kind: KindMalformed, Op: "balance", Msg: "empty data"}
	}

	b := data[0]
	acc := models.AccountSummary{
		Equity:       pf(b.TotalEq),
		MarginUsed:   pf(b.Imr),
		UnrealizedPL: pf(b.Upl),
		TS:           c.now(),
	}
	for _, d := range b.Details {
		if d.Ccy != "USDT" {
			continue
		}
		acc.Available = pf(d.AvailEq)
		if acc.Available == 0 {
			acc.Available = pf(d.AvailBal)
		}
		if acc.Equity == 0 {
			acc.Equity = pf(d.Eq)
		}
	}
	return acc, nil
}
