package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// PlaceTrigger: условный SL/TP-ордер (ordType=conditional). Цена уже квантована вызывающим.
func (c *Client) PlaceTrigger(ctx context.Context, o TriggerOrder) WriteResult {
	if c.Degraded() {
		return c.degradedResult()
	}
	if o.TriggerPrice <= 0 {
		return WriteResult{OK: false, Kind: KindMalformed, Detail: "PlaceTrigger: triggerPx <= 0"}
	}

	// закрывающая сторона
	var side string
	switch o.Side {
	case models.SideLong:
		side = "sell"
	case models.SideShort:
		side = "buy"
	default:
		return WriteResult{OK: false, Kind: KindMalformed, Detail: fmt.Sprintf("PlaceTrigger: unsupported side=%q", o.Side)}
	}

	sc := c.Constraints(ctx, o.Symbol)
	tick := decimal.NewFromFloat(c.TriggerTick(o.Symbol, sc))
	pxDecimals := models.StepDecimals(tick)
	trigger := helper.FormatDec(decimal.NewFromFloat(o.TriggerPrice), pxDecimals)

	ordPx := "-1"
	if !o.IsMarket && o.LimitPrice > 0 {
		ordPx = helper.FormatDec(decimal.NewFromFloat(o.LimitPrice), sc.PriceDecimals())
	}

	body := map[string]any{
		"instId":  helper.InstID(o.Symbol),
		"tdMode":  tdMode(o.MarginMode),
		"side":    side,
		"ordType": "conditional",
	}
	if o.Size > 0 {
		sz, err := toContracts(o.Size, sc)
		if err != nil {
			return WriteResult{OK: false, Kind: KindMalformed, Detail: "PlaceTrigger: " + err.Error()}
		}
		body["sz"] = sz
	} else {
		body["closeFraction"] = "1"
	}
	if o.ReduceOnly || o.Size == 0 {
		body["reduceOnly"] = true
	}

	switch o.Kind {
	case TriggerTP:
		body["tpTriggerPx"] = trigger
		body["tpOrdPx"] = ordPx
		body["tpTriggerPxType"] = "last"
	default:
		body["slTriggerPx"] = trigger
		body["slOrdPx"] = ordPx
		body["slTriggerPxType"] = "last"
	}

	data, err := call[wireAck](ctx, c, request{
		op:      "order_algo",
		method:  http.MethodPost,
		path:    "/api/v5/trade/order-algo",
		body:    body,
		private: true,
	})
	res := ackResult("PlaceTrigger", data, err)
	if res.OK {
		logger.Info("[OKX] trigger %s %s %s px=%s algoId=%s", o.Kind, side, o.Symbol, trigger, res.OrderID)
	} else {
		logger.Error("[OKX] trigger %s %s px=%s failed: %s", o.Kind, o.Symbol, trigger, res.Detail)
	}
	return res
}
