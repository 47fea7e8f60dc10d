package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// SetLeverage выставляет плечо и режим маржи по инструменту.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage float64, mode models.MarginMode) WriteResult {
	if c.Degraded() {
		return c.degradedResult()
	}
	if leverage < 1 {
		return WriteResult{OK: false, Kind: KindMalformed, Detail: fmt.Sprintf("SetLeverage: leverage %v < 1", leverage)}
	}

	lever := strconv.FormatFloat(leverage, 'f', -1, 64)
	data, err := call[wireLeverage](ctx, c, request{
		op:     "set_leverage",
		method: http.MethodPost,
		path:   "/api/v5/account/set-leverage",
		body: map[string]string{
			"instId":  helper.InstID(symbol),
			"lever":   lever,
			"mgnMode": tdMode(mode),
		},
		private: true,
	})
	if err != nil {
		logger.Error("[OKX] set leverage %s x%s %s: %v", symbol, lever, tdMode(mode), err)
		return writeFailed(err)
	}
	if len(data) == 0 {
		return WriteResult{OK: false, Kind: KindMalformed, Detail: "SetLeverage: empty data"}
	}
	logger.Info("[OKX] leverage %s x%s %s", symbol, data[0].Lever, data[0].MgnMode)
	return WriteResult{OK: true, Detail: fmt.Sprintf("leverage x%s %s", data[0].Lever, data[0].MgnMode)}
}
