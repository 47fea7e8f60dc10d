package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

// OpenOrders: висящие обычные и условные ордера по всем SWAP. При ошибке части, то, что получили.
func (c *Client) OpenOrders(ctx context.Context) []models.OpenOrder {
	out := make([]models.OpenOrder, 0)

	plain, err := call[wireOrder](ctx, c, request{
		op:      "orders_pending",
		method:  http.MethodGet,
		path:    "/api/v5/trade/orders-pending",
		query:   url.Values{"instType": {"SWAP"}},
		private: true,
	})
	if err != nil {
		logger.Error("[OKX] orders-pending: %v", err)
	}
	for _, o := range plain {
		symbol := helper.SymbolFromInstID(o.InstID)
		out = append(out, models.OpenOrder{
			Symbol:     symbol,
			OrderID:    o.OrdID,
			Side:       o.Side,
			Type:       o.OrdType,
			Size:       toBase(o.Sz, c.Constraints(ctx, symbol)),
			Price:      pf(o.Px),
			ReduceOnly: o.ReduceOnly == "true",
			CreatedAt:  pms(o.CTime),
		})
	}

	algos, err := call[wireAlgoOrder](ctx, c, request{
		op:      "orders_algo_pending",
		method:  http.MethodGet,
		path:    "/api/v5/trade/orders-algo-pending",
		query:   url.Values{"instType": {"SWAP"}, "ordType": {"conditional"}},
		private: true,
	})
	if err != nil {
		logger.Error("[OKX] orders-algo-pending: %v", err)
	}
	for _, a := range algos {
		symbol := helper.SymbolFromInstID(a.InstID)
		size := 0.0
		if a.Sz != "" {
			size = toBase(a.Sz, c.Constraints(ctx, symbol))
		}
		out = append(out, models.OpenOrder{
			Symbol:      symbol,
			OrderID:     a.AlgoID,
			Side:        a.Side,
			Type:        a.OrdType,
			Size:        size,
			Trigger:     true,
			SLTriggerPx: pf(a.SlTriggerPx),
			TPTriggerPx: pf(a.TpTriggerPx),
			ReduceOnly:  a.ReduceOnly == "true",
			CreatedAt:   pms(a.CTime),
		})
	}
	return out
}

// RecentFills: последние исполнения, от новых к старым. limit <= 0, из конфига (50).
func (c *Client) RecentFills(ctx context.Context, limit int) []models.Fill {
	if limit <= 0 || limit > 100 {
		limit = c.fillsLookback
	}
	data, err := call[wireFill](ctx, c, request{
		op:      "fills",
		method:  http.MethodGet,
		path:    "/api/v5/trade/fills",
		query:   url.Values{"instType": {"SWAP"}, "limit": {strconv.Itoa(limit)}},
		private: true,
	})
	if err != nil {
		logger.Error("[OKX] fills: %v", err)
		return nil
	}

	out := make([]models.Fill, 0, len(data))
	for _, f := range data {
		symbol := helper.SymbolFromInstID(f.InstID)
		out = append(out, models.Fill{
			Symbol:  symbol,
			OrderID: f.OrdID,
			Side:    f.Side,
			Price:   pf(f.FillPx),
			Size:    toBase(f.FillSz, c.Constraints(ctx, symbol)),
			Fee:     pf(f.Fee),
			PnL:     pf(f.FillPnl),
			TS:      pms(f.TS),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.After(out[j].TS) })
	return out
}
