package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/models"
	"math"

	"github.com/shopspring/decimal"
)

// Причины отказа нормализатора.
const (
	ReasonInvalidSize      = "missing_or_invalid_size"
	ReasonInvalidPrice     = "invalid_price"
	ReasonSizeTooSmall     = "size_too_small_after_rounding"
	ReasonLeverageAboveMax = "leverage_above_max"
	ReasonInvalidOrderType = "invalid_order_type"
)

// NormalizeConfig: часть настроек исполнения, нужная нормализатору.
type NormalizeConfig struct {
	MinNotionalUSD  float64
	AutoCapLeverage bool
	DefaultLeverage float64
	MarginMode      models.MarginMode
	ForceIsolated   bool // символ в списке isolated_only из конфига
}

// Normalize превращает намерение в ордер, допустимый по ограничениям инструмента.
// Размер округляется только вниз; вверх он поднимается лишь до минимального нотионала.
// Для reduce-only ордеров минимальный нотионал не навязывается, остаётся только minSz.
// Тип ордера и лимитная цена переносятся как есть: квантует лимитную цену вызывающий.
// Функция чистая: никакого I/O.
func Normalize(in models.OrderIntent, price float64, sc models.SymbolConstraints, cfg NormalizeConfig) models.NormalizedOrder {
	out := models.NormalizedOrder{
		Symbol:     in.Symbol,
		Side:       in.Side,
		OrderType:  in.OrderType,
		Price:      price,
		LimitPrice: in.LimitPrice,
		ReduceOnly: in.ReduceOnly,
	}
	if out.OrderType == "" {
		out.OrderType = models.OrderMarket
	}

	switch out.OrderType {
	case models.OrderMarket:
	case models.OrderLimit:
		if invalidNum(in.LimitPrice) || in.LimitPrice <= 0 {
			return reject(out, ReasonInvalidPrice)
		}
	default:
		return reject(out, ReasonInvalidOrderType)
	}

	if invalidNum(in.Size) || invalidNum(in.SizeUSD) || in.Size < 0 || in.SizeUSD < 0 {
		return reject(out, ReasonInvalidSize)
	}
	if in.Size == 0 && in.SizeUSD == 0 {
		return reject(out, ReasonInvalidSize)
	}
	if invalidNum(price) || price <= 0 {
		return reject(out, ReasonInvalidPrice)
	}

	px := decimal.NewFromFloat(price)
	size := decimal.NewFromFloat(in.Size)
	if in.Size == 0 {
		size = decimal.NewFromFloat(in.SizeUSD).Div(px)
	}

	floor := sc.MinSize.Mul(px)
	if !in.ReduceOnly {
		floor = decimal.Max(floor, decimal.NewFromFloat(cfg.MinNotionalUSD))
	}
	if size.Mul(px).LessThan(floor) {
		size = floor.Div(px)
		out.Adjusted = append(out.Adjusted, "upgraded_to_min_notional")
	}

	rounded := helper.RoundDownToStep(size, sc.Step())
	if !rounded.Equal(size) {
		out.Adjusted = append(out.Adjusted, "rounded_to_lot_step")
	}
	notional := rounded.Mul(px)
	if !rounded.IsPositive() || notional.LessThan(floor) {
		out.Size, _ = rounded.Float64()
		return reject(out, ReasonSizeTooSmall)
	}
	out.Size, _ = rounded.Float64()
	out.Notional, _ = notional.Float64()

	lev := in.Leverage
	if lev <= 0 {
		lev = cfg.DefaultLeverage
	}
	if sc.MaxLeverage > 0 && lev > sc.MaxLeverage {
		if !cfg.AutoCapLeverage {
			out.Leverage = lev
			return reject(out, ReasonLeverageAboveMax)
		}
		lev = sc.MaxLeverage
		out.Adjusted = append(out.Adjusted, "leverage_capped")
	}
	out.Leverage = lev

	mode := in.MarginMode
	if mode == "" {
		mode = cfg.MarginMode
	}
	if mode == "" {
		mode = models.MarginCross
	}
	if (sc.IsolatedOnly || cfg.ForceIsolated) && mode != models.MarginIsolated {
		mode = models.MarginIsolated
		out.Adjusted = append(out.Adjusted, "forced_isolated")
	}
	out.MarginMode = mode

	return out
}

func reject(o models.NormalizedOrder, reason string) models.NormalizedOrder {
	o.Rejected = true
	o.Reason = reason
	return o
}

func invalidNum(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
