package models

import "strings"

// IntentType: вид торгового намерения.
type IntentType string

const (
	IntentPlaceOrder      IntentType = "PLACE_ORDER"
	IntentClosePosition   IntentType = "CLOSE_POSITION"
	IntentClosePartial    IntentType = "CLOSE_PARTIAL"
	IntentSetStopLoss     IntentType = "SET_STOP_LOSS"
	IntentSetTakeProfit   IntentType = "SET_TAKE_PROFIT"
	IntentMoveToBreakeven IntentType = "MOVE_TO_BREAKEVEN"
	IntentCancelOrder     IntentType = "CANCEL_ORDER"
	IntentSetLeverage     IntentType = "SET_LEVERAGE"
)

// Known: тип из поддерживаемого набора.
func (t IntentType) Known() bool {
	switch t {
	case IntentPlaceOrder, IntentClosePosition, IntentClosePartial, IntentSetStopLoss,
		IntentSetTakeProfit, IntentMoveToBreakeven, IntentCancelOrder, IntentSetLeverage:
		return true
	}
	return false
}

// OrderPlacing: намерения, которые выставляют обычный ордер.
func (t IntentType) OrderPlacing() bool {
	switch t {
	case IntentPlaceOrder, IntentClosePosition, IntentClosePartial:
		return true
	}
	return false
}

// TriggerSetting: намерения, которые ставят триггер.
func (t IntentType) TriggerSetting() bool {
	switch t {
	case IntentSetStopLoss, IntentSetTakeProfit, IntentMoveToBreakeven:
		return true
	}
	return false
}

// MarginMode: cross/isolated.
type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

// OrderType: рыночный или лимитный вход.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderIntent: то, что хочет сделать решающий источник. Цены и размеры сырые.
type OrderIntent struct {
	Type       IntentType `json:"type"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side,omitempty"`
	Size       float64    `json:"size,omitempty"`       // в базовой монете
	SizeUSD    float64    `json:"size_usd,omitempty"`   // альтернатива Size
	OrderType  OrderType  `json:"order_type,omitempty"` // пусто, MARKET
	LimitPrice float64    `json:"limit_price,omitempty"`
	Price      float64    `json:"price,omitempty"` // триггер для SL/TP
	StopLoss   float64    `json:"stop_loss,omitempty"`
	TakeProfit float64    `json:"take_profit,omitempty"`
	Leverage   float64    `json:"leverage,omitempty"`
	MarginMode MarginMode `json:"margin_mode,omitempty"`
	Fraction   float64    `json:"fraction,omitempty"` // доля для CLOSE_PARTIAL, 0..1
	ReduceOnly bool       `json:"reduce_only,omitempty"`
	OrderID    string     `json:"order_id,omitempty"`
	Trigger    bool       `json:"trigger,omitempty"` // CANCEL_ORDER по триггеру
	Confidence float64    `json:"confidence,omitempty"`
	Signal     string     `json:"signal,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// Normalize приводит символ к верхнему регистру без пробелов.
func (i OrderIntent) Normalize() OrderIntent {
	i.Symbol = strings.ToUpper(strings.TrimSpace(i.Symbol))
	i.Side = Side(strings.ToUpper(strings.TrimSpace(string(i.Side))))
	i.OrderType = OrderType(strings.ToUpper(strings.TrimSpace(string(i.OrderType))))
	return i
}

// NormalizedOrder: результат нормализации; либо Rejected, либо готов к отправке.
type NormalizedOrder struct {
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	OrderType  OrderType  `json:"order_type"`
	Size       float64    `json:"size"`
	Price      float64    `json:"price"`
	LimitPrice float64    `json:"limit_price,omitempty"`
	Leverage   float64    `json:"leverage"`
	MarginMode MarginMode `json:"margin_mode"`
	Notional   float64    `json:"notional"`
	ReduceOnly bool       `json:"reduce_only"`
	Adjusted   []string   `json:"adjusted,omitempty"`
	Rejected   bool       `json:"rejected"`
	Reason     string     `json:"reason,omitempty"`
}

// ExecutionResult: итог прохода одного намерения.
type ExecutionResult struct {
	Intent   OrderIntent `json:"intent"`
	Executed bool        `json:"executed"`
	Reason   string      `json:"reason,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	OrderID  string      `json:"order_id,omitempty"`
}
