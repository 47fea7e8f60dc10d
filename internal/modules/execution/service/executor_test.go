package service

import (
	"agent_trader/internal/models"
	"agent_trader/internal/modules/config"
	journal "agent_trader/internal/modules/journal/service"
	okx "agent_trader/internal/modules/okx_client/service"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeExchange struct {
	marks        map[string]float64
	constraints  map[string]models.SymbolConstraints
	triggerTicks map[string]float64
	degraded     bool
	failWrites   bool

	markets   []okx.MarketOrder
	triggers  []okx.TriggerOrder
	cancels   []string
	leverages []float64
	seq       int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		marks: map[string]float64{"BTC": 50000, "ETH": 3100},
		constraints: map[string]models.SymbolConstraints{
			"BTC": {Symbol: "BTC", SizeDecimals: 3, TickSize: decimal.RequireFromString("0.1"), MaxLeverage: 100},
			"ETH": {Symbol: "ETH", SizeDecimals: 2, TickSize: decimal.RequireFromString("0.01"), MaxLeverage: 50},
		},
		triggerTicks: map[string]float64{"BTC": 1},
	}
}

func (f *fakeExchange) id() string {
	f.seq++
	return strconv.Itoa(f.seq)
}

func (f *fakeExchange) write() okx.WriteResult {
	if f.failWrites {
		return okx.WriteResult{OK: false, Kind: okx.KindTransient, Detail: "timeout"}
	}
	return okx.WriteResult{OK: true, OrderID: f.id()}
}

func (f *fakeExchange) MarkPrice(_ context.Context, symbol string) float64 { return f.marks[symbol] }

func (f *fakeExchange) Candles(context.Context, string, string, int) []models.Candle { return nil }

func (f *fakeExchange) Funding(_ context.Context, symbol string) models.Funding {
	return models.Funding{Symbol: symbol}
}

func (f *fakeExchange) Constraints(_ context.Context, symbol string) models.SymbolConstraints {
	return f.constraints[symbol]
}

func (f *fakeExchange) TriggerTick(symbol string, sc models.SymbolConstraints) float64 {
	if t, ok := f.triggerTicks[symbol]; ok {
		return t
	}
	return sc.TickSize.InexactFloat64()
}

func (f *fakeExchange) Degraded() bool { return f.degraded }

func (f *fakeExchange) PlaceMarket(_ context.Context, o okx.MarketOrder) okx.WriteResult {
	f.markets = append(f.markets, o)
	return f.write()
}

func (f *fakeExchange) PlaceTrigger(_ context.Context, o okx.TriggerOrder) okx.WriteResult {
	f.triggers = append(f.triggers, o)
	return f.write()
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ string, orderID string, _ bool) okx.WriteResult {
	f.cancels = append(f.cancels, orderID)
	return f.write()
}

func (f *fakeExchange) SetLeverage(_ context.Context, _ string, leverage float64, _ models.MarginMode) okx.WriteResult {
	f.leverages = append(f.leverages, leverage)
	return f.write()
}

type harness struct {
	ex  *fakeExchange
	j   *journal.Journal
	be  *Breakeven
	fb  *Feedback
	exe *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Execution.MinHoldTime = 0
	cfg.Execution.ReentryCooldown = 0

	j, err := journal.New(nil, nil)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	ex := newFakeExchange()
	be := NewBreakeven(cfg.Execution.BETolerance, cfg.Execution.BEFeeBuffer)
	fb := NewFeedback(cfg.Execution.FeedbackSize)
	gate := NewGate(GateConfig{
		DedupWindow:        cfg.Execution.DedupWindow,
		OrderDedupWindow:   cfg.Execution.OrderDedupWindow,
		TriggerDedupWindow: cfg.Execution.TriggerDedupWindow,
		MaxOpenOrders:      cfg.Execution.MaxOpenOrders,
		MaxAddsPerHour:     cfg.Execution.MaxAddsPerHour,
	}, be)

	exe := NewExecutor(&cfg, ex, j, gate, be, fb)
	exe.SetView(View{PositionsOK: true})
	return &harness{ex: ex, j: j, be: be, fb: fb, exe: exe}
}

func (h *harness) withPosition(p models.Position, orders ...models.OpenOrder) {
	h.exe.SetView(View{Positions: []models.Position{p}, OpenOrders: orders, PositionsOK: true})
}

func TestExecuteLimitOrderQuantizesPrice(t *testing.T) {
	h := newHarness(t)

	res := h.exe.Execute(context.Background(), models.OrderIntent{
		Type:       models.IntentPlaceOrder,
		Symbol:     "BTC",
		Side:       models.SideLong,
		SizeUSD:    1000,
		OrderType:  "limit",
		LimitPrice: 49876.54,
	})
	if !res.Executed {
		t.Fatalf("not executed: %+v", res)
	}
	if len(h.ex.markets) != 1 {
		t.Fatalf("market orders = %+v", h.ex.markets)
	}
	o := h.ex.markets[0]
	if o.LimitPrice != 49876.5 || o.Size != 0.02 {
		t.Fatalf("limit=%v size=%v", o.LimitPrice, o.Size)
	}
	if trade := h.j.OpenTrade("BTC"); trade == nil || trade.Entry.Price != 49876.5 {
		t.Fatalf("journal trade = %+v", trade)
	}
}

func TestExecutePlaceOrderWithAttachedTriggers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.exe.Execute(ctx, models.OrderIntent{
		Type:       models.IntentPlaceOrder,
		Symbol:     "btc",
		Side:       models.SideLong,
		SizeUSD:    1000,
		Leverage:   10,
		StopLoss:   48999.7,
		TakeProfit: 55000.4,
		Confidence: 0.8,
		Reasoning:  "breakout",
	})
	if !res.Executed {
		t.Fatalf("not executed: %+v", res)
	}

	if len(h.ex.markets) != 1 || h.ex.markets[0].Size != 0.02 || h.ex.markets[0].ReduceOnly {
		t.Fatalf("market orders = %+v", h.ex.markets)
	}
	if len(h.ex.leverages) != 1 || h.ex.leverages[0] != 10 {
		t.Fatalf("leverage calls = %v", h.ex.leverages)
	}

	trade := h.j.OpenTrade("BTC")
	if trade == nil || trade.Entry.Price != 50000 || trade.Entry.Size != 0.02 || trade.Entry.Reason != "breakout" {
		t.Fatalf("journal trade = %+v", trade)
	}

	if len(h.ex.triggers) != 2 {
		t.Fatalf("triggers = %+v", h.ex.triggers)
	}
	sl, tp := h.ex.triggers[0], h.ex.triggers[1]
	// стоп LONG округляется вниз по тику триггеров (1.0), тейк к ближайшему
	if sl.Kind != okx.TriggerSL || sl.TriggerPrice != 48999 || !sl.ReduceOnly {
		t.Fatalf("sl = %+v", sl)
	}
	if tp.Kind != okx.TriggerTP || tp.TriggerPrice != 55000 {
		t.Fatalf("tp = %+v", tp)
	}
	if got := len(h.fb.RecentSuccesses()); got != 3 {
		t.Fatalf("successes = %d", got)
	}
}

func TestExecuteRejectsTooSmallOrder(t *testing.T) {
	h := newHarness(t)

	res := h.exe.Execute(context.Background(), models.OrderIntent{
		Type: models.IntentPlaceOrder, Symbol: "BTC", Side: models.SideLong, SizeUSD: 5,
	})
	if res.Executed || res.Reason != ReasonSizeTooSmall {
		t.Fatalf("result = %+v", res)
	}
	if len(h.ex.markets) != 0 {
		t.Fatal("rejected order reached the exchange")
	}
	if rj := h.fb.RecentRejects(); len(rj) != 1 || rj[0].Reason != ReasonSizeTooSmall {
		t.Fatalf("rejects = %+v", rj)
	}
}

func TestExecuteDuplicatePlaceOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := models.OrderIntent{Type: models.IntentPlaceOrder, Symbol: "BTC", Side: models.SideLong, Size: 0.01}

	if res := h.exe.Execute(ctx, in); !res.Executed {
		t.Fatalf("first: %+v", res)
	}
	res := h.exe.Execute(ctx, in)
	if res.Executed || res.Reason != ReasonDuplicate {
		t.Fatalf("second: %+v", res)
	}
	if len(h.ex.markets) != 1 {
		t.Fatalf("market orders = %d", len(h.ex.markets))
	}
	if rj := h.fb.RecentRejects(); len(rj) != 1 || rj[0].Reason != ReasonDuplicate {
		t.Fatalf("rejects = %+v", rj)
	}
}

func TestExecuteStopLossBreakevenGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.withPosition(models.Position{Symbol: "ETH", Side: models.SideLong, Size: 1, EntryPrice: 2900})
	h.be.Promote("ETH", models.SideLong, 3000)

	res := h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentSetStopLoss, Symbol: "ETH", Price: 2990})
	if res.Executed || res.Reason != ReasonBreakevenViolation {
		t.Fatalf("SL 2990: %+v", res)
	}

	res = h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentSetStopLoss, Symbol: "ETH", Price: 3020})
	if !res.Executed {
		t.Fatalf("SL 3020: %+v", res)
	}
	// принятый стоп выше безубытка подтягивает защиту
	if p, _ := h.be.Get("ETH"); p.Target != 3020 {
		t.Fatalf("protection = %+v", p)
	}
}

func TestExecuteStopLossRecheckedAfterQuantization(t *testing.T) {
	h := newHarness(t)
	h.ex.triggerTicks["ETH"] = 5
	h.withPosition(models.Position{Symbol: "ETH", Side: models.SideLong, Size: 1, EntryPrice: 2900})
	h.be.Promote("ETH", models.SideLong, 3000)

	// 2999.5 проходит по сырой цене, но после округления вниз до 2995 нарушает защиту
	res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentSetStopLoss, Symbol: "ETH", Price: 2999.5})
	if res.Executed || res.Reason != ReasonBreakevenViolation {
		t.Fatalf("result = %+v", res)
	}
	if len(h.ex.triggers) != 0 {
		t.Fatal("trigger placed despite violation")
	}
}

func TestExecuteStopLossReplacesPrevious(t *testing.T) {
	h := newHarness(t)
	h.withPosition(
		models.Position{Symbol: "ETH", Side: models.SideLong, Size: 1, EntryPrice: 3000},
		models.OpenOrder{Symbol: "ETH", OrderID: "old-sl", Trigger: true, SLTriggerPx: 2800},
		models.OpenOrder{Symbol: "ETH", OrderID: "old-tp", Trigger: true, TPTriggerPx: 3500},
	)

	res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentSetStopLoss, Symbol: "ETH", Price: 2850})
	if !res.Executed {
		t.Fatalf("result = %+v", res)
	}
	if len(h.ex.cancels) != 1 || h.ex.cancels[0] != "old-sl" {
		t.Fatalf("cancels = %v", h.ex.cancels)
	}
}

func TestExecuteMoveToBreakeven(t *testing.T) {
	h := newHarness(t)
	h.ex.marks["ETH"] = 3200
	h.withPosition(models.Position{Symbol: "ETH", Side: models.SideLong, Size: 1, EntryPrice: 3000})

	res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentMoveToBreakeven, Symbol: "ETH"})
	if !res.Executed {
		t.Fatalf("result = %+v", res)
	}
	if len(h.ex.triggers) != 1 || h.ex.triggers[0].TriggerPrice != 3003 || h.ex.triggers[0].Kind != okx.TriggerSL {
		t.Fatalf("triggers = %+v", h.ex.triggers)
	}
	p, ok := h.be.Get("ETH")
	if !ok || p.Target != 3003 {
		t.Fatalf("protection = %+v", p)
	}
}

func TestExecuteMoveToBreakevenBeforePriceClears(t *testing.T) {
	h := newHarness(t)
	h.ex.marks["ETH"] = 3001
	h.withPosition(models.Position{Symbol: "ETH", Side: models.SideLong, Size: 1, EntryPrice: 3000})

	res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentMoveToBreakeven, Symbol: "ETH"})
	if res.Executed || res.Reason != ReasonInvalidTrigger {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteClosePosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if res := h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentPlaceOrder, Symbol: "ETH", Side: models.SideLong, Size: 1, StopLoss: 3000}); !res.Executed {
		t.Fatalf("entry: %+v", res)
	}
	h.be.Promote("ETH", models.SideLong, 3050)
	h.ex.marks["ETH"] = 3300

	res := h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentClosePosition, Symbol: "ETH", Reasoning: "target reached"})
	if !res.Executed {
		t.Fatalf("close: %+v", res)
	}

	last := h.ex.markets[len(h.ex.markets)-1]
	if !last.ReduceOnly || last.Size != 1 || last.Side != models.SideLong {
		t.Fatalf("close order = %+v", last)
	}
	if len(h.ex.cancels) != 1 {
		t.Fatalf("stop-loss not cancelled: %v", h.ex.cancels)
	}
	if _, ok := h.be.Get("ETH"); ok {
		t.Fatal("breakeven protection not cleared")
	}
	closed := h.j.LastClosed("ETH")
	if closed == nil || closed.Status != models.TradeClosed || closed.Exit.Price != 3300 || closed.Result.PnLUSD != 200 {
		t.Fatalf("journal = %+v", closed)
	}

	// позиции больше нет
	res = h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentSetTakeProfit, Symbol: "ETH", Price: 3500})
	if res.Reason != ReasonNoPosition {
		t.Fatalf("after close: %+v", res)
	}
}

func TestExecuteClosePartial(t *testing.T) {
	h := newHarness(t)
	h.withPosition(models.Position{Symbol: "ETH", Side: models.SideShort, Size: 1, EntryPrice: 3000})

	res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentClosePartial, Symbol: "ETH", Fraction: 0.333})
	if !res.Executed {
		t.Fatalf("result = %+v", res)
	}
	o := h.ex.markets[0]
	if !o.ReduceOnly || o.Size != 0.33 || o.Side != models.SideShort {
		t.Fatalf("order = %+v", o)
	}
}

func TestExecuteWriteFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.ex.failWrites = true

	res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentPlaceOrder, Symbol: "BTC", Side: models.SideShort, Size: 0.01})
	if res.Executed || res.Reason != string(okx.KindTransient) {
		t.Fatalf("result = %+v", res)
	}
	if h.j.OpenTrade("BTC") != nil {
		t.Fatal("failed order journaled")
	}
	if errs := h.fb.RecentErrors(); len(errs) != 1 || errs[0].Detail != "timeout" {
		t.Fatalf("errors = %+v", errs)
	}

	// неуспех не записан как исполненный: повтор не считается дублем
	h.ex.failWrites = false
	if res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentPlaceOrder, Symbol: "BTC", Side: models.SideShort, Size: 0.01}); !res.Executed {
		t.Fatalf("retry: %+v", res)
	}
}

func TestExecuteDegraded(t *testing.T) {
	h := newHarness(t)
	h.ex.degraded = true

	res := h.exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentPlaceOrder, Symbol: "BTC", Side: models.SideLong, Size: 0.01})
	if res.Reason != ReasonDegraded {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteCancelAndLeverage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentCancelOrder, Symbol: "ETH"})
	if res.Reason != ReasonNoOpenOrders {
		t.Fatalf("cancel without orders: %+v", res)
	}

	h.withPosition(
		models.Position{Symbol: "ETH", Side: models.SideLong, Size: 1, EntryPrice: 3000},
		models.OpenOrder{Symbol: "ETH", OrderID: "a1", Trigger: true, SLTriggerPx: 2800},
	)
	res = h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentCancelOrder, Symbol: "ETH", OrderID: "a1"})
	if !res.Executed || len(h.ex.cancels) != 1 {
		t.Fatalf("cancel: %+v cancels=%v", res, h.ex.cancels)
	}

	res = h.exe.Execute(ctx, models.OrderIntent{Type: models.IntentSetLeverage, Symbol: "ETH", Leverage: 75})
	if !res.Executed || h.ex.leverages[len(h.ex.leverages)-1] != 50 {
		t.Fatalf("leverage: %+v calls=%v", res, h.ex.leverages)
	}
}

func TestExecuteFallsBackToJournalBeforeFirstView(t *testing.T) {
	cfg := config.Default()
	j, _ := journal.New(nil, nil)
	_, _ = j.RecordEntry(context.Background(), journal.EntryInput{
		Symbol: "ETH", Side: models.SideLong, Price: 3000, Size: 1, At: time.Now().Add(-time.Hour),
	})
	ex := newFakeExchange()
	be := NewBreakeven(1, 0.001)
	exe := NewExecutor(&cfg, ex, j, NewGate(GateConfig{}, be), be, NewFeedback(10))

	res := exe.Execute(context.Background(), models.OrderIntent{Type: models.IntentSetStopLoss, Symbol: "ETH", Price: 2900})
	if !res.Executed {
		t.Fatalf("result = %+v", res)
	}
}
