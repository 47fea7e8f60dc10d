package service

import (
	"agent_trader/internal/models"
	"fmt"
)

// MarketOrder: рыночный ордер. Side, сторона позиции, которую открываем или сокращаем.
type MarketOrder struct {
	Symbol     string
	Side       models.Side
	Size       float64 // база, уже нормализована
	ReduceOnly bool
	MarginMode models.MarginMode
	RefPrice   float64 // для ограничения проскальзывания
	LimitPrice float64 // > 0: IOC-лимитка ровно по этой цене
	ClientID   string
}

// IsBuy: направление ордера на бирже.
func (o MarketOrder) IsBuy() bool { return (o.Side == models.SideLong) != o.ReduceOnly }

// TriggerKind: sl или tp.
type TriggerKind string

const (
	TriggerSL TriggerKind = "sl"
	TriggerTP TriggerKind = "tp"
)

// TriggerOrder: условный ордер на закрытие позиции стороны Side.
// Size == 0, закрыть всю позицию.
type TriggerOrder struct {
	Symbol       string
	Side         models.Side
	Size         float64
	TriggerPrice float64 // уже квантована по тику триггеров
	Kind         TriggerKind
	IsMarket     bool
	LimitPrice   float64
	ReduceOnly   bool
	MarginMode   models.MarginMode
}

func (c *Client) degradedResult() WriteResult {
	return WriteResult{OK: false, Kind: KindDegraded, Detail: "exchange client degraded: writes disabled"}
}

func tdMode(m models.MarginMode) string {
	if m == models.MarginIsolated {
		return string(models.MarginIsolated)
	}
	return string(models.MarginCross)
}

// ackResult разбирает ответ записи: сначала sCode элемента, потом общая ошибка.
func ackResult(op string, data []wireAck, err error) WriteResult {
	if len(data) > 0 && data[0].SCode != "" && data[0].SCode != "0" {
		kind := KindRejected
		if rateLimitCodes[data[0].SCode] {
			kind = KindRateLimited
		}
		return WriteResult{
			OK:     false,
			Kind:   kind,
			Detail: fmt.Sprintf("%s rejected: sCode=%s sMsg=%s", op, data[0].SCode, data[0].SMsg),
		}
	}
	if err != nil {
		return writeFailed(err)
	}
	if len(data) == 0 {
		return WriteResult{OK: false, Kind: KindMalformed, Detail: op + ": empty ack"}
	}
	id := data[0].OrdID
	if id == "" {
		id = data[0].AlgoID
	}
	return WriteResult{OK: true, Detail: op + " accepted", OrderID: id}
}
