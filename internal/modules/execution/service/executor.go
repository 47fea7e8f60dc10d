package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/metrics"
	"agent_trader/internal/models"
	"agent_trader/internal/modules/config"
	journal "agent_trader/internal/modules/journal/service"
	okx "agent_trader/internal/modules/okx_client/service"
	"agent_trader/pkg/logger"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const ReasonConstraintsUnavailable = "constraints_unavailable"

// Exchange: то, что исполнителю нужно от биржевого клиента.
type Exchange interface {
	MarketReader
	Constraints(ctx context.Context, symbol string) models.SymbolConstraints
	TriggerTick(symbol string, sc models.SymbolConstraints) float64
	Degraded() bool
	PlaceMarket(ctx context.Context, o okx.MarketOrder) okx.WriteResult
	PlaceTrigger(ctx context.Context, o okx.TriggerOrder) okx.WriteResult
	CancelOrder(ctx context.Context, symbol, orderID string, trigger bool) okx.WriteResult
	SetLeverage(ctx context.Context, symbol string, leverage float64, mode models.MarginMode) okx.WriteResult
}

// Journal: записи входов и выходов.
type Journal interface {
	RecordEntry(ctx context.Context, in journal.EntryInput) (*models.Trade, error)
	RecordExit(ctx context.Context, symbol string, in journal.ExitInput) (*models.Trade, error)
	OpenTrade(symbol string) *models.Trade
	LastClosed(symbol string) *models.Trade
}

// View: состояние биржи, снятое в начале тика.
type View struct {
	Positions   []models.Position
	OpenOrders  []models.OpenOrder
	PositionsOK bool
}

// Executor проводит намерение через gate -> normalizer -> client -> journal.
// Вызывается только из цикла тиков, намерения идут строго по очереди.
type Executor struct {
	mu      sync.Mutex
	cfg     config.ExecutionConfig
	isoOnly func(symbol string) bool

	ex      Exchange
	journal Journal
	gate    *Gate
	be      *Breakeven
	fb      *Feedback

	positions   map[string]models.Position
	orders      []models.OpenOrder
	positionsOK bool

	now func() time.Time
}

func NewExecutor(cfg *config.Config, ex Exchange, j Journal, gate *Gate, be *Breakeven, fb *Feedback) *Executor {
	return &Executor{
		cfg:       cfg.Execution,
		isoOnly:   cfg.IsIsolatedOnly,
		ex:        ex,
		journal:   j,
		gate:      gate,
		be:        be,
		fb:        fb,
		positions: make(map[string]models.Position),
		now:       time.Now,
	}
}

// SetView обновляет картину позиций и ордеров. Если позиции прочитать не удалось,
// остаётся последняя известная картина.
func (e *Executor) SetView(v View) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v.PositionsOK {
		e.positions = make(map[string]models.Position, len(v.Positions))
		for _, p := range v.Positions {
			if p.IsOpen() {
				e.positions[p.Symbol] = p
			}
		}
		e.positionsOK = true
	}
	e.orders = append(e.orders[:0], v.OpenOrders...)
}

// Execute исполняет одно намерение. Ошибки не выходят наружу: итог всегда в ExecutionResult
// и в одном из колец Feedback.
func (e *Executor) Execute(ctx context.Context, raw models.OrderIntent) models.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(ctx, raw.Normalize())
}

func (e *Executor) execute(ctx context.Context, in models.OrderIntent) models.ExecutionResult {
	st := e.stateFor(ctx, in)
	if reason := e.gate.Check(in, st); reason != "" {
		return e.rejected(in, reason, "")
	}

	switch in.Type {
	case models.IntentPlaceOrder:
		return e.placeOrder(ctx, in, st)
	case models.IntentClosePosition:
		return e.closePosition(ctx, in, st)
	case models.IntentClosePartial:
		return e.closePartial(ctx, in, st)
	case models.IntentSetStopLoss, models.IntentSetTakeProfit:
		return e.setTrigger(ctx, in, st)
	case models.IntentMoveToBreakeven:
		return e.moveToBreakeven(ctx, in, st)
	case models.IntentCancelOrder:
		return e.cancelOrder(ctx, in)
	case models.IntentSetLeverage:
		return e.setLeverage(ctx, in)
	}
	return e.rejected(in, ReasonUnknownType, "")
}

func (e *Executor) stateFor(ctx context.Context, in models.OrderIntent) State {
	st := State{Degraded: e.ex.Degraded()}
	if in.Symbol == "" {
		return st
	}

	trade := e.journal.OpenTrade(in.Symbol)
	if p, ok := e.positions[in.Symbol]; ok && p.IsOpen() {
		st.Position = &p
	} else if !e.positionsOK && trade != nil {
		// позиции ещё не читались: опираемся на журнал
		st.Position = &models.Position{
			Symbol:     in.Symbol,
			Side:       trade.Side,
			Size:       trade.Entry.Size,
			EntryPrice: trade.Entry.Price,
			OpenedAt:   trade.Entry.Timestamp,
		}
	}

	if pos := st.Position; pos != nil {
		st.OpenedAt = pos.OpenedAt
		if trade != nil && trade.Side == pos.Side {
			if st.OpenedAt.IsZero() {
				st.OpenedAt = trade.Entry.Timestamp
			}
			if pos.EntryPrice <= 0 {
				pos.EntryPrice = trade.Entry.Price
			}
		}
	}

	for _, o := range e.orders {
		if o.Symbol == in.Symbol {
			st.OpenOrders++
		}
	}
	if last := e.journal.LastClosed(in.Symbol); last != nil && last.Exit != nil {
		st.LastClosedAt = last.Exit.Timestamp
	}
	if in.Type.TriggerSetting() {
		st.Mark = e.ex.MarkPrice(ctx, in.Symbol)
	}
	return st
}

func (e *Executor) normalizeConfig(symbol string) NormalizeConfig {
	return NormalizeConfig{
		MinNotionalUSD:  e.cfg.MinNotionalUSD,
		AutoCapLeverage: e.cfg.AutoCapLeverage,
		DefaultLeverage: e.cfg.DefaultLeverage,
		MarginMode:      models.MarginMode(e.cfg.MarginMode),
		ForceIsolated:   e.isoOnly != nil && e.isoOnly(symbol),
	}
}

func (e *Executor) placeOrder(ctx context.Context, in models.OrderIntent, st State) models.ExecutionResult {
	sc := e.ex.Constraints(ctx, in.Symbol)
	if !sc.Valid() {
		return e.rejected(in, ReasonConstraintsUnavailable, "")
	}
	price := e.ex.MarkPrice(ctx, in.Symbol)
	quoted := in
	if in.OrderType == models.OrderLimit && in.LimitPrice > 0 {
		// лимитку считаем и журналируем по её цене, уже на сетке тика
		quoted.LimitPrice = helper.QuantizePrice(in.LimitPrice, sc.TickSize.InexactFloat64(), helper.RoundNearest)
		price = quoted.LimitPrice
	}
	norm := Normalize(quoted, price, sc, e.normalizeConfig(in.Symbol))
	if norm.Rejected {
		return e.rejected(in, norm.Reason, fmt.Sprintf("price=%v size=%v", price, norm.Size))
	}

	if !norm.ReduceOnly {
		if res := e.ex.SetLeverage(ctx, in.Symbol, norm.Leverage, norm.MarginMode); !res.OK {
			return e.failed(in, res)
		}
	}

	res := e.ex.PlaceMarket(ctx, okx.MarketOrder{
		Symbol:     in.Symbol,
		Side:       norm.Side,
		Size:       norm.Size,
		ReduceOnly: norm.ReduceOnly,
		MarginMode: norm.MarginMode,
		RefPrice:   price,
		LimitPrice: norm.LimitPrice,
		ClientID:   clientID(),
	})
	if !res.OK {
		return e.failed(in, res)
	}

	pos := st.Position
	increasing := !norm.ReduceOnly && (pos == nil || pos.Side == norm.Side)
	e.gate.Record(in, increasing)

	if !norm.ReduceOnly {
		e.recordEntry(ctx, in, norm, pos, res.OrderID)
	} else if pos != nil {
		e.shrink(in.Symbol, norm.Size)
	}

	detail := fmt.Sprintf("%s %s size=%v notional=%.2f lev=%v", in.Symbol, norm.Side, norm.Size, norm.Notional, norm.Leverage)
	if len(norm.Adjusted) > 0 {
		detail += " adjusted=" + strings.Join(norm.Adjusted, ",")
	}
	result := e.succeeded(in, res.OrderID, detail)

	// приложенные SL/TP ставим только после успешного входа
	if !norm.ReduceOnly && in.StopLoss > 0 {
		sub := e.execute(ctx, attached(in, models.IntentSetStopLoss, in.StopLoss))
		result.Detail += "; sl: " + outcome(sub)
	}
	if !norm.ReduceOnly && in.TakeProfit > 0 {
		sub := e.execute(ctx, attached(in, models.IntentSetTakeProfit, in.TakeProfit))
		result.Detail += "; tp: " + outcome(sub)
	}
	return result
}

// recordEntry пишет вход в журнал и обновляет локальную картину позиции.
// Добивка в ту же сторону усредняет вход.
func (e *Executor) recordEntry(ctx context.Context, in models.OrderIntent, norm models.NormalizedOrder, prev *models.Position, orderID string) {
	entry, size, opened := norm.Price, norm.Size, e.now()
	if prev != nil && prev.Side == norm.Side && prev.Size > 0 {
		size = prev.Size + norm.Size
		entry = (prev.EntryPrice*prev.Size + norm.Price*norm.Size) / size
		if !prev.OpenedAt.IsZero() {
			opened = prev.OpenedAt
		}
	}
	if prev != nil && prev.Side != norm.Side {
		e.be.Clear(in.Symbol)
	}

	_, err := e.journal.RecordEntry(ctx, journal.EntryInput{
		Symbol:     in.Symbol,
		Side:       norm.Side,
		Price:      entry,
		Size:       size,
		Leverage:   norm.Leverage,
		Reason:     in.Reasoning,
		Confidence: in.Confidence,
		OrderID:    orderID,
		Market:     MarketSnapshot(ctx, e.ex, in.Symbol, in.Signal),
	})
	if err != nil {
		logger.Error("[EXEC] %s journal entry: %v", in.Symbol, err)
		e.fb.Error(in, "journal_write_failed", err.Error())
	}

	e.positions[in.Symbol] = models.Position{
		Symbol:     in.Symbol,
		InstID:     helper.InstID(in.Symbol),
		Side:       norm.Side,
		Size:       size,
		EntryPrice: entry,
		MarkPrice:  norm.Price,
		Leverage:   norm.Leverage,
		MarginMode: string(norm.MarginMode),
		OpenedAt:   opened,
	}
}

func (e *Executor) closePosition(ctx context.Context, in models.OrderIntent, st State) models.ExecutionResult {
	pos := st.Position
	mark := e.markOr(ctx, pos)

	res := e.ex.PlaceMarket(ctx, okx.MarketOrder{
		Symbol:     in.Symbol,
		Side:       pos.Side,
		Size:       pos.Size,
		ReduceOnly: true,
		MarginMode: positionMode(pos, e.cfg.MarginMode),
		RefPrice:   mark,
		ClientID:   clientID(),
	})
	if !res.OK {
		return e.failed(in, res)
	}
	e.gate.Record(in, false)

	e.cancelTriggers(ctx, in.Symbol, "")
	e.be.Clear(in.Symbol)
	delete(e.positions, in.Symbol)

	reason := in.Reasoning
	if reason == "" {
		reason = "close_position"
	}
	_, err := e.journal.RecordExit(ctx, in.Symbol, journal.ExitInput{
		Price:  mark,
		Reason: reason,
		Type:   models.ExitClose,
		Market: MarketSnapshot(ctx, e.ex, in.Symbol, in.Signal),
	})
	switch {
	case errors.Is(err, journal.ErrNoOpenTrade):
		logger.Info("[EXEC] %s closed without journal trade", in.Symbol)
	case err != nil:
		logger.Error("[EXEC] %s journal exit: %v", in.Symbol, err)
		e.fb.Error(in, "journal_write_failed", err.Error())
	}

	return e.succeeded(in, res.OrderID, fmt.Sprintf("%s %s closed size=%v px=%v", in.Symbol, pos.Side, pos.Size, mark))
}

func (e *Executor) closePartial(ctx context.Context, in models.OrderIntent, st State) models.ExecutionResult {
	pos := st.Position

	size := in.Size
	if size <= 0 && in.Fraction > 0 {
		size = pos.Size * min(in.Fraction, 1)
	}
	if size <= 0 || invalidNum(size) {
		return e.rejected(in, ReasonInvalidSize, "")
	}
	if size >= pos.Size {
		return e.closePosition(ctx, in, st)
	}

	sc := e.ex.Constraints(ctx, in.Symbol)
	if !sc.Valid() {
		return e.rejected(in, ReasonConstraintsUnavailable, "")
	}
	mark := e.markOr(ctx, pos)
	norm := Normalize(models.OrderIntent{
		Type:       in.Type,
		Symbol:     in.Symbol,
		Side:       pos.Side,
		Size:       size,
		ReduceOnly: true,
	}, mark, sc, e.normalizeConfig(in.Symbol))
	if norm.Rejected {
		return e.rejected(in, norm.Reason, fmt.Sprintf("size=%v", size))
	}
	if norm.Size >= pos.Size {
		return e.closePosition(ctx, in, st)
	}

	res := e.ex.PlaceMarket(ctx, okx.MarketOrder{
		Symbol:     in.Symbol,
		Side:       pos.Side,
		Size:       norm.Size,
		ReduceOnly: true,
		MarginMode: positionMode(pos, e.cfg.MarginMode),
		RefPrice:   mark,
		ClientID:   clientID(),
	})
	if !res.OK {
		return e.failed(in, res)
	}
	e.gate.Record(in, false)
	e.shrink(in.Symbol, norm.Size)

	return e.succeeded(in, res.OrderID, fmt.Sprintf("%s %s reduced by %v of %v", in.Symbol, pos.Side, norm.Size, pos.Size))
}

func (e *Executor) setTrigger(ctx context.Context, in models.OrderIntent, st State) models.ExecutionResult {
	pos := st.Position
	sc := e.ex.Constraints(ctx, in.Symbol)
	if !sc.Valid() {
		return e.rejected(in, ReasonConstraintsUnavailable, "")
	}
	tick := e.ex.TriggerTick(in.Symbol, sc)

	kind, mode := okx.TriggerTP, helper.RoundNearest
	if in.Type == models.IntentSetStopLoss {
		// стоп округляем от позиции
		kind, mode = okx.TriggerSL, helper.RoundFloor
		if pos.Side == models.SideShort {
			mode = helper.RoundCeil
		}
	}
	px := helper.QuantizePrice(in.Price, tick, mode)
	if px <= 0 {
		return e.rejected(in, ReasonInvalidTrigger, fmt.Sprintf("quantized=%v", px))
	}
	if kind == okx.TriggerSL && !e.be.Allows(in.Symbol, pos.Side, px) {
		return e.rejected(in, ReasonBreakevenViolation, fmt.Sprintf("quantized=%v", px))
	}

	result := e.placeTrigger(ctx, in, pos, kind, px)
	if result.Executed && kind == okx.TriggerSL && e.be.AtOrBeyond(pos.Side, pos.EntryPrice, px) {
		e.be.Promote(in.Symbol, pos.Side, px)
	}
	return result
}

func (e *Executor) moveToBreakeven(ctx context.Context, in models.OrderIntent, st State) models.ExecutionResult {
	pos := st.Position
	if pos.EntryPrice <= 0 {
		return e.rejected(in, ReasonInvalidTrigger, "unknown entry price")
	}
	target := e.be.Target(pos.Side, pos.EntryPrice)
	if st.Mark > 0 && ((pos.Side == models.SideLong && st.Mark <= target) || (pos.Side == models.SideShort && st.Mark >= target)) {
		return e.rejected(in, ReasonInvalidTrigger, fmt.Sprintf("mark=%v has not cleared breakeven=%v", st.Mark, target))
	}

	sc := e.ex.Constraints(ctx, in.Symbol)
	if !sc.Valid() {
		return e.rejected(in, ReasonConstraintsUnavailable, "")
	}
	// стоп на безубытке не должен оказаться хуже цели
	mode := helper.RoundCeil
	if pos.Side == models.SideShort {
		mode = helper.RoundFloor
	}
	px := helper.QuantizePrice(target, e.ex.TriggerTick(in.Symbol, sc), mode)
	if !e.be.Allows(in.Symbol, pos.Side, px) {
		return e.rejected(in, ReasonBreakevenViolation, fmt.Sprintf("existing protection is tighter than %v", px))
	}

	result := e.placeTrigger(ctx, in, pos, okx.TriggerSL, px)
	if result.Executed {
		e.be.Promote(in.Symbol, pos.Side, px)
	}
	return result
}

// placeTrigger снимает прежний триггер того же вида и ставит новый на всю позицию.
func (e *Executor) placeTrigger(ctx context.Context, in models.OrderIntent, pos *models.Position, kind okx.TriggerKind, px float64) models.ExecutionResult {
	e.cancelTriggers(ctx, in.Symbol, kind)

	res := e.ex.PlaceTrigger(ctx, okx.TriggerOrder{
		Symbol:       in.Symbol,
		Side:         pos.Side,
		TriggerPrice: px,
		Kind:         kind,
		IsMarket:     true,
		ReduceOnly:   true,
		MarginMode:   positionMode(pos, e.cfg.MarginMode),
	})
	if !res.OK {
		return e.failed(in, res)
	}
	e.gate.Record(in, false)

	o := models.OpenOrder{Symbol: in.Symbol, OrderID: res.OrderID, Type: "conditional", Trigger: true, ReduceOnly: true, CreatedAt: e.now()}
	if kind == okx.TriggerSL {
		o.SLTriggerPx = px
	} else {
		o.TPTriggerPx = px
	}
	e.orders = append(e.orders, o)

	return e.succeeded(in, res.OrderID, fmt.Sprintf("%s %s trigger @ %v (raw %v)", in.Symbol, kind, px, in.Price))
}

func (e *Executor) cancelOrder(ctx context.Context, in models.OrderIntent) models.ExecutionResult {
	targets := make([]models.OpenOrder, 0)
	if in.OrderID != "" {
		o := models.OpenOrder{Symbol: in.Symbol, OrderID: in.OrderID, Trigger: in.Trigger}
		for _, known := range e.orders {
			if known.OrderID == in.OrderID {
				o.Trigger = known.Trigger
			}
		}
		targets = append(targets, o)
	} else {
		for _, o := range e.orders {
			if o.Symbol == in.Symbol {
				targets = append(targets, o)
			}
		}
	}
	if len(targets) == 0 {
		return e.rejected(in, ReasonNoOpenOrders, "")
	}

	cancelled := make([]string, 0, len(targets))
	for _, o := range targets {
		res := e.ex.CancelOrder(ctx, in.Symbol, o.OrderID, o.Trigger)
		if !res.OK {
			return e.failed(in, res)
		}
		e.dropOrder(o.OrderID)
		cancelled = append(cancelled, o.OrderID)
	}
	e.gate.Record(in, false)
	return e.succeeded(in, strings.Join(cancelled, ","), fmt.Sprintf("%s cancelled %d order(s)", in.Symbol, len(cancelled)))
}

func (e *Executor) setLeverage(ctx context.Context, in models.OrderIntent) models.ExecutionResult {
	sc := e.ex.Constraints(ctx, in.Symbol)
	lev := in.Leverage
	if sc.MaxLeverage > 0 && lev > sc.MaxLeverage {
		if !e.cfg.AutoCapLeverage {
			return e.rejected(in, ReasonLeverageAboveMax, fmt.Sprintf("max=%v", sc.MaxLeverage))
		}
		lev = sc.MaxLeverage
	}
	mode := in.MarginMode
	if mode == "" {
		mode = models.MarginMode(e.cfg.MarginMode)
	}
	if sc.IsolatedOnly || (e.isoOnly != nil && e.isoOnly(in.Symbol)) {
		mode = models.MarginIsolated
	}

	res := e.ex.SetLeverage(ctx, in.Symbol, lev, mode)
	if !res.OK {
		return e.failed(in, res)
	}
	e.gate.Record(in, false)
	return e.succeeded(in, "", fmt.Sprintf("%s leverage=%v %s", in.Symbol, lev, mode))
}

// cancelTriggers снимает условные ордера символа; kind "", все.
func (e *Executor) cancelTriggers(ctx context.Context, symbol string, kind okx.TriggerKind) {
	for _, o := range append([]models.OpenOrder(nil), e.orders...) {
		if o.Symbol != symbol || !o.Trigger {
			continue
		}
		if kind == okx.TriggerSL && !o.IsStopLoss() || kind == okx.TriggerTP && !o.IsTakeProfit() {
			continue
		}
		if res := e.ex.CancelOrder(ctx, symbol, o.OrderID, true); !res.OK {
			logger.Warn("[EXEC] %s cancel trigger %s: %s", symbol, o.OrderID, res.Detail)
			continue
		}
		e.dropOrder(o.OrderID)
	}
}

func (e *Executor) dropOrder(id string) {
	kept := e.orders[:0]
	for _, o := range e.orders {
		if o.OrderID != id {
			kept = append(kept, o)
		}
	}
	e.orders = kept
}

func (e *Executor) shrink(symbol string, by float64) {
	p, ok := e.positions[symbol]
	if !ok {
		return
	}
	p.Size -= by
	if p.Size <= 0 {
		delete(e.positions, symbol)
		return
	}
	e.positions[symbol] = p
}

func (e *Executor) markOr(ctx context.Context, pos *models.Position) float64 {
	if px := e.ex.MarkPrice(ctx, pos.Symbol); px > 0 {
		return px
	}
	if pos.MarkPrice > 0 {
		return pos.MarkPrice
	}
	return pos.EntryPrice
}

func (e *Executor) rejected(in models.OrderIntent, reason, detail string) models.ExecutionResult {
	logger.Warn("[EXEC] %s %s rejected: %s %s", in.Type, in.Symbol, reason, detail)
	e.fb.Reject(in, reason, detail)
	metrics.IncIntent(string(in.Type), "rejected")
	metrics.IncReject(reason)
	return models.ExecutionResult{Intent: in, Reason: reason, Detail: detail}
}

func (e *Executor) failed(in models.OrderIntent, res okx.WriteResult) models.ExecutionResult {
	reason := string(res.Kind)
	if reason == "" {
		reason = "exchange_error"
	}
	logger.Error("[EXEC] %s %s failed: %s %s", in.Type, in.Symbol, reason, res.Detail)
	e.fb.Error(in, reason, res.Detail)
	metrics.IncIntent(string(in.Type), "error")
	return models.ExecutionResult{Intent: in, Reason: reason, Detail: res.Detail}
}

func (e *Executor) succeeded(in models.OrderIntent, orderID, detail string) models.ExecutionResult {
	logger.Info("[EXEC] %s %s ok: %s", in.Type, in.Symbol, detail)
	e.fb.Success(in, orderID, detail)
	metrics.IncIntent(string(in.Type), "executed")
	return models.ExecutionResult{Intent: in, Executed: true, Detail: detail, OrderID: orderID}
}

func attached(parent models.OrderIntent, t models.IntentType, price float64) models.OrderIntent {
	return models.OrderIntent{
		Type:       t,
		Symbol:     parent.Symbol,
		Side:       parent.Side,
		Price:      price,
		Confidence: parent.Confidence,
		Reasoning:  "attached to entry",
		Source:     parent.Source,
	}
}

func outcome(r models.ExecutionResult) string {
	if r.Executed {
		return "ok"
	}
	return r.Reason
}

func positionMode(pos *models.Position, fallback string) models.MarginMode {
	if pos != nil && pos.MarginMode != "" {
		return models.MarginMode(pos.MarginMode)
	}
	if fallback != "" {
		return models.MarginMode(fallback)
	}
	return models.MarginCross
}

// clientID: clOrdId для OKX: до 32 буквенно-цифровых символов.
func clientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
