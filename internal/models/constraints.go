package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SymbolConstraints: биржевые ограничения инструмента, кешируются с TTL.
type SymbolConstraints struct {
	Symbol        string          `json:"symbol"`
	InstID        string          `json:"inst_id"`
	SizeDecimals  int32           `json:"size_decimals"`
	LotStep       decimal.Decimal `json:"lot_step"` // шаг размера в базовой монете
	MinSize       decimal.Decimal `json:"min_size"` // в базовой монете
	TickSize      decimal.Decimal `json:"tick_size"`
	ContractValue decimal.Decimal `json:"contract_value"` // базовой монеты в одном контракте
	MaxLeverage   float64         `json:"max_leverage"`
	IsolatedOnly  bool            `json:"isolated_only"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// Valid: есть хотя бы тик и шаг размера.
func (c SymbolConstraints) Valid() bool {
	return c.TickSize.IsPositive() && c.Step().IsPositive()
}

// Step: шаг размера; без явного LotStep берём 10^-SizeDecimals.
func (c SymbolConstraints) Step() decimal.Decimal {
	if c.LotStep.IsPositive() {
		return c.LotStep
	}
	return decimal.New(1, -c.SizeDecimals)
}

// PriceDecimals выводится из тика: 0.1 -> 1, 0.0005 -> 4, 5 -> 0.
func (c SymbolConstraints) PriceDecimals() int32 {
	return StepDecimals(c.TickSize)
}

// StepDecimals: число знаков после запятой у шага (String() уже без хвостовых нулей).
func StepDecimals(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 0
	}
	s := step.String()
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	return int32(len(s) - idx - 1)
}
