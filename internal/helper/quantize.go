package helper

import (
	"github.com/shopspring/decimal"
)

// Rounding: направление квантования цены.
type Rounding int

const (
	RoundNearest Rounding = iota
	RoundFloor
	RoundCeil
)

// QuantizeDec: round(p/t)*t в десятичной арифметике. При t <= 0 возвращает p.
func QuantizeDec(p, tick decimal.Decimal, mode Rounding) decimal.Decimal {
	if !tick.IsPositive() {
		return p
	}
	steps := p.Div(tick)
	switch mode {
	case RoundFloor:
		steps = steps.Floor()
	case RoundCeil:
		steps = steps.Ceil()
	default:
		steps = steps.Round(0)
	}
	return steps.Mul(tick)
}

// QuantizePrice: QuantizeDec для float64 на входе и выходе.
func QuantizePrice(p, tick float64, mode Rounding) float64 {
	if tick <= 0 {
		return p
	}
	return QuantizeDec(decimal.NewFromFloat(p), decimal.NewFromFloat(tick), mode).InexactFloat64()
}

// RoundDownToStep: размер вниз к шагу лота. Вверх не округляем никогда.
func RoundDownToStep(size, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return size
	}
	return size.Div(step).Floor().Mul(step)
}

// RoundDownToTick: цена вниз к тику.
func RoundDownToTick(px, tick float64) float64 { return QuantizePrice(px, tick, RoundFloor) }

// RoundUpToTick: цена вверх к тику.
func RoundUpToTick(px, tick float64) float64 { return QuantizePrice(px, tick, RoundCeil) }

// FormatDec печатает число ровно с decimals знаками, как ждёт биржа.
func FormatDec(v decimal.Decimal, decimals int32) string {
	if decimals < 0 {
		decimals = 0
	}
	return v.StringFixed(decimals)
}
