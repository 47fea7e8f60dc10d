package service

import (
	"agent_trader/internal/helper"
	"agent_trader/pkg/logger"
	"context"
	"net/http"
)

// CancelOrder отменяет обычный (trigger=false) или условный ордер по id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string, trigger bool) WriteResult {
	if c.Degraded() {
		return c.degradedResult()
	}
	if orderID == "" {
		return WriteResult{OK: false, Kind: KindMalformed, Detail: "CancelOrder: empty order id"}
	}

	instID := helper.InstID(symbol)
	var (
		data []wireAck
		err  error
	)
	if trigger {
		data, err = call[wireAck](ctx, c, request{
			op:      "cancel_algos",
			method:  http.MethodPost,
			path:    "/api/v5/trade/cancel-algos",
			body:    []map[string]string{{"instId": instID, "algoId": orderID}},
			private: true,
		})
	} else {
		data, err = call[wireAck](ctx, c, request{
			op:      "cancel_order",
			method:  http.MethodPost,
			path:    "/api/v5/trade/cancel-order",
			body:    map[string]string{"instId": instID, "ordId": orderID},
			private: true,
		})
	}

	res := ackResult("CancelOrder", data, err)
	if res.OK {
		if res.OrderID == "" {
			res.OrderID = orderID
		}
		logger.Info("[OKX] cancel %s %s trigger=%v", symbol, orderID, trigger)
	} else {
		logger.Error("[OKX] cancel %s %s failed: %s", symbol, orderID, res.Detail)
	}
	return res
}
