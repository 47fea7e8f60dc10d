package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Positions: открытые позиции. ok=false значит «не знаем», а не «позиций нет»:
// сверка по такому ответу не запускается.
func (c *Client) Positions(ctx context.Context) ([]models.Position, bool) {
	data, err := call[wirePosition](ctx, c, request{
		op:      "positions",
		method:  http.MethodGet,
		path:    "/api/v5/account/positions",
		query:   url.Values{"instType": {"SWAP"}},
		private: true,
	})
	if err != nil {
		logger.Error("[OKX] positions: %v", err)
		return nil, false
	}

	out := make([]models.Position, 0, len(data))
	for _, p := range data {
		pos, ok := c.parsePosition(ctx, p)
		if !ok {
			continue
		}
		out = append(out, pos)
	}
	return out, true
}

func (c *Client) parsePosition(ctx context.Context, p wirePosition) (models.Position, bool) {
	contracts := pf(p.Pos)
	if contracts == 0 || !strings.HasSuffix(p.InstID, "-USDT-SWAP") {
		return models.Position{}, false
	}

	side := models.SideLong
	switch strings.ToLower(p.PosSide) {
	case "short":
		side = models.SideShort
	case "long":
		side = models.SideLong
	default: // net: знак pos
		if contracts < 0 {
			side = models.SideShort
		}
	}

	symbol := helper.SymbolFromInstID(p.InstID)
	sc := c.Constraints(ctx, symbol)

	return models.Position{
		Symbol:        symbol,
		InstID:        p.InstID,
		Side:          side,
		Size:          toBase(p.Pos, sc),
		EntryPrice:    pf(p.AvgPx),
		MarkPrice:     pf(p.MarkPx),
		Leverage:      pf(p.Lever),
		MarginMode:    p.MgnMode,
		UnrealizedPnl: pf(p.Upl),
		OpenedAt:      pms(p.CTime),
	}, true
}
