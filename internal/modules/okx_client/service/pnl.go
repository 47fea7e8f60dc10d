package service

import (
	"agent_trader/internal/models"
	"context"
	"net/http"
	"net/url"
	"time"
)

// PnL: реализованный PnL за 24ч/7д/30д по истории позиций (кеш 60s).
func (c *Client) PnL(ctx context.Context) models.PnLWindows {
	w, _ := c.pnl.GetOrFetch("all", func() (models.PnLWindows, error) {
		data, err := call[wirePositionHistory](ctx, c, request{
			op:      "positions_history",
			method:  http.MethodGet,
			path:    "/api/v5/account/positions-history",
			query:   url.Values{"instType": {"SWAP"}, "limit": {"100"}},
			private: true,
		})
		if err != nil {
			return models.PnLWindows{}, err
		}
		return sumWindows(data, c.now()), nil
	})
	return w
}

func sumWindows(rows []wirePositionHistory, now time.Time) models.PnLWindows {
	var w models.PnLWindows
	for _, r := range rows {
		at := pms(r.UTime)
		if at.IsZero() {
			continue
		}
		age := now.Sub(at)
		pnl := pf(r.RealizedPnl)
		if age <= 30*24*time.Hour {
			w.Month += pnl
		}
		if age <= 7*24*time.Hour {
			w.Week += pnl
		}
		if age <= 24*time.Hour {
			w.Day += pnl
		}
	}
	return w
}
