package models

import "time"

// Candle: OHLCV одного бара.
type Candle struct {
	Start  time.Time `json:"start"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type OrderBook struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
	TS     time.Time   `json:"ts"`
}

// Mid: середина спреда; 0 если стакан пуст.
func (b OrderBook) Mid() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

type Ticker struct {
	Symbol string    `json:"symbol"`
	Last   float64   `json:"last"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Mark   float64   `json:"mark"`
	TS     time.Time `json:"ts"`
}

type Funding struct {
	Symbol       string    `json:"symbol"`
	Rate         float64   `json:"rate"`
	NextRate     float64   `json:"next_rate"`
	OpenInterest float64   `json:"open_interest"`
	NextFunding  time.Time `json:"next_funding"`
}

// Fill: исполнение по ордеру.
type Fill struct {
	Symbol  string    `json:"symbol"`
	OrderID string    `json:"order_id"`
	Side    string    `json:"side"` // buy/sell
	Price   float64   `json:"price"`
	Size    float64   `json:"size"`
	Fee     float64   `json:"fee"`
	PnL     float64   `json:"pnl"`
	TS      time.Time `json:"ts"`
}

// OpenOrder: висящий ордер; Trigger=true для условных (SL/TP).
type OpenOrder struct {
	Symbol      string    `json:"symbol"`
	OrderID     string    `json:"order_id"`
	Side        string    `json:"side"`
	Type        string    `json:"type"`
	Size        float64   `json:"size"`
	Price       float64   `json:"price"`
	Trigger     bool      `json:"trigger"`
	SLTriggerPx float64   `json:"sl_trigger_px,omitempty"`
	TPTriggerPx float64   `json:"tp_trigger_px,omitempty"`
	ReduceOnly  bool      `json:"reduce_only"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsStopLoss: условный ордер со стоп-триггером.
func (o OpenOrder) IsStopLoss() bool { return o.Trigger && o.SLTriggerPx > 0 }

// IsTakeProfit: условный ордер с тейк-триггером.
func (o OpenOrder) IsTakeProfit() bool { return o.Trigger && o.TPTriggerPx > 0 }

type AccountSummary struct {
	Equity       float64   `json:"equity"`
	Available    float64   `json:"available"`
	MarginUsed   float64   `json:"margin_used"`
	UnrealizedPL float64   `json:"unrealized_pl"`
	TS           time.Time `json:"ts"`
}

// PnLWindows: реализованный PnL за окна.
type PnLWindows struct {
	Day   float64 `json:"pnl_24h"`
	Week  float64 `json:"pnl_7d"`
	Month float64 `json:"pnl_30d"`
}

// MarketSnapshot: контекст рынка на момент входа/выхода.
type MarketSnapshot struct {
	Price       float64 `json:"price"`
	FundingRate float64 `json:"funding_rate"`
	RelVolume   float64 `json:"rel_volume"`
	RSI         float64 `json:"rsi"`
	Structure   string  `json:"structure,omitempty"`
}
