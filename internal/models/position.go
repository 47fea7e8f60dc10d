package models

import "time"

// Side позиции/намерения. LONG/SHORT как у решающего источника.
type Side string

const (
	SideNone  Side = ""
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite возвращает противоположную сторону.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	}
	return SideNone
}

// Sign: +1 для LONG, -1 для SHORT.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Position: зеркало позиции на бирже, локально не мутируется.
type Position struct {
	Symbol        string    `json:"symbol"`
	InstID        string    `json:"inst_id"`
	Side          Side      `json:"side"`
	Size          float64   `json:"size"` // в базовой монете
	EntryPrice    float64   `json:"entry_price"`
	MarkPrice     float64   `json:"mark_price"`
	Leverage      float64   `json:"leverage"`
	MarginMode    string    `json:"margin_mode"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

// IsOpen: ненулевая позиция.
func (p Position) IsOpen() bool { return p.Size > 0 }

// Notional: размер позиции в USD по марке (или по входу, если марки нет).
func (p Position) Notional() float64 {
	px := p.MarkPrice
	if px <= 0 {
		px = p.EntryPrice
	}
	return p.Size * px
}
