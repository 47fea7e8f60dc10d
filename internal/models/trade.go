package models

import "time"

// TradeStatus: состояние сделки в журнале. OPEN -> терминальные.
type TradeStatus string

const (
	TradeOpen     TradeStatus = "OPEN"
	TradeClosed   TradeStatus = "CLOSED"
	TradeTP       TradeStatus = "TP"
	TradeSL       TradeStatus = "SL"
	TradeReplaced TradeStatus = "REPLACED"
)

// ExitType: как закрыта сделка.
type ExitType string

const (
	ExitClose    ExitType = "CLOSE"
	ExitTP       ExitType = "TP"
	ExitSL       ExitType = "SL"
	ExitReplaced ExitType = "REPLACED"
	ExitManual   ExitType = "MANUAL"
)

// Status: в какой статус переводит сделку данный тип выхода.
func (e ExitType) Status() TradeStatus {
	switch e {
	case ExitTP:
		return TradeTP
	case ExitSL:
		return TradeSL
	case ExitReplaced:
		return TradeReplaced
	}
	return TradeClosed
}

type TradeEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Leverage   float64   `json:"leverage"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	OrderID    string    `json:"order_id,omitempty"`
}

type TradeExit struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
	Type      ExitType  `json:"type"`
}

type TradeResult struct {
	PnLUSD          float64 `json:"pnl_usd"`
	PnLPct          float64 `json:"pnl_pct"`
	DurationMinutes float64 `json:"duration_minutes"`
	Win             bool    `json:"win"`
}

// Trade: запись журнала. Закрытые сделки не удаляются.
type Trade struct {
	ID            string          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Status        TradeStatus     `json:"status"`
	Entry         TradeEntry      `json:"entry"`
	Exit          *TradeExit      `json:"exit"`
	Result        *TradeResult    `json:"result"`
	MarketAtEntry *MarketSnapshot `json:"market_at_entry,omitempty"`
	MarketAtExit  *MarketSnapshot `json:"market_at_exit,omitempty"`
	Tags          []string        `json:"tags"`
}

// IsOpen: сделка ещё не закрыта.
func (t *Trade) IsOpen() bool { return t != nil && t.Status == TradeOpen }

// Clone: глубокая копия, чтобы наружу не утекали указатели журнала.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	c := *t
	if t.Exit != nil {
		e := *t.Exit
		c.Exit = &e
	}
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	if t.MarketAtEntry != nil {
		m := *t.MarketAtEntry
		c.MarketAtEntry = &m
	}
	if t.MarketAtExit != nil {
		m := *t.MarketAtExit
		c.MarketAtExit = &m
	}
	c.Tags = append([]string(nil), t.Tags...)
	return &c
}

// BEProtection: зафиксированный безубыток по открытой позиции.
type BEProtection struct {
	Symbol string    `json:"symbol"`
	Target float64   `json:"be_target"`
	Side   Side      `json:"side"`
	SetAt  time.Time `json:"set_at"`
}
