package service

import (
	"agent_trader/internal/helper"
	"agent_trader/pkg/logger"
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// PlaceMarket: рыночный ордер. При slippage > 0 уходит IOC-лимиткой с ценой ±slippage от RefPrice,
// при заданной LimitPrice IOC-лимиткой по ней.
func (c *Client) PlaceMarket(ctx context.Context, o MarketOrder) WriteResult {
	if c.Degraded() {
		return c.degradedResult()
	}

	sc := c.Constraints(ctx, o.Symbol)
	sz, err := toContracts(o.Size, sc)
	if err != nil {
		return WriteResult{OK: false, Kind: KindMalformed, Detail: "PlaceMarket: " + err.Error()}
	}

	side := "sell"
	if o.IsBuy() {
		side = "buy"
	}

	body := map[string]any{
		"instId":  helper.InstID(o.Symbol),
		"tdMode":  tdMode(o.MarginMode),
		"side":    side,
		"ordType": "market",
		"sz":      sz,
	}
	if o.ReduceOnly {
		body["reduceOnly"] = true
	}
	if o.ClientID != "" {
		body["clOrdId"] = o.ClientID
	}
	switch {
	case o.LimitPrice > 0:
		body["ordType"] = "ioc"
		body["px"] = helper.FormatDec(decimal.NewFromFloat(o.LimitPrice), sc.PriceDecimals())
	case c.slippage > 0 && o.RefPrice > 0 && sc.TickSize.IsPositive():
		ref := decimal.NewFromFloat(o.RefPrice)
		slip := decimal.NewFromFloat(c.slippage)
		var px decimal.Decimal
		if o.IsBuy() {
			px = helper.QuantizeDec(ref.Mul(decimal.NewFromInt(1).Add(slip)), sc.TickSize, helper.RoundCeil)
		} else {
			px = helper.QuantizeDec(ref.Mul(decimal.NewFromInt(1).Sub(slip)), sc.TickSize, helper.RoundFloor)
		}
		body["ordType"] = "ioc"
		body["px"] = helper.FormatDec(px, sc.PriceDecimals())
	}

	data, err := call[wireAck](ctx, c, request{
		op:      "order",
		method:  http.MethodPost,
		path:    "/api/v5/trade/order",
		body:    body,
		private: true,
	})
	res := ackResult("PlaceMarket", data, err)
	if res.OK {
		logger.Info("[OKX] market %s %s sz=%s reduceOnly=%v ordId=%s", side, o.Symbol, sz, o.ReduceOnly, res.OrderID)
		if o.ReduceOnly {
			// реализованный pnl поменялся
			c.pnl.Invalidate("all")
		}
	} else {
		logger.Error("[OKX] market %s %s sz=%s failed: %s", side, o.Symbol, sz, res.Detail)
	}
	return res
}
