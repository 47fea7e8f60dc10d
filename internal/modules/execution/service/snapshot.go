package service

import (
	"agent_trader/internal/models"
	"context"
)

const (
	snapshotInterval = "1h"
	snapshotCandles  = 50
	rsiPeriod        = 14
	volumePeriod     = 20
)

// MarketReader: чтения, из которых собирается снимок рынка для журнала.
type MarketReader interface {
	MarkPrice(ctx context.Context, symbol string) float64
	Candles(ctx context.Context, symbol, interval string, limit int) []models.Candle
	Funding(ctx context.Context, symbol string) models.Funding
}

// MarketSnapshot собирает контекст на момент входа/выхода. Чтения идут через кеш клиента,
// поэтому повторные вызовы в пределах TTL биржу не нагружают.
func MarketSnapshot(ctx context.Context, r MarketReader, symbol, structure string) *models.MarketSnapshot {
	candles := r.Candles(ctx, symbol, snapshotInterval, snapshotCandles)
	closes := make([]float64, 0, len(candles))
	volumes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
		volumes = append(volumes, c.Volume)
	}

	price := r.MarkPrice(ctx, symbol)
	if price <= 0 && len(closes) > 0 {
		price = closes[len(closes)-1]
	}

	return &models.MarketSnapshot{
		Price:       price,
		FundingRate: r.Funding(ctx, symbol).Rate,
		RelVolume:   RelVolume(volumes, volumePeriod),
		RSI:         RSI(closes, rsiPeriod),
		Structure:   structure,
	}
}

// RSI по Уайлдеру. 0 если данных меньше period+1.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RelVolume: объём последнего бара к среднему за period предыдущих.
func RelVolume(volumes []float64, period int) float64 {
	if period <= 0 || len(volumes) < period+1 {
		return 0
	}
	last := volumes[len(volumes)-1]
	var sum float64
	for _, v := range volumes[len(volumes)-1-period : len(volumes)-1] {
		sum += v
	}
	if sum <= 0 {
		return 0
	}
	return last / (sum / float64(period))
}
