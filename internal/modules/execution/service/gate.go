package service

import (
	"agent_trader/internal/models"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Причины отказа гейта.
const (
	ReasonMissingSymbol      = "missing_symbol"
	ReasonUnknownType        = "unknown_intent_type"
	ReasonInvalidSide        = "invalid_side"
	ReasonDuplicate          = "duplicate_action"
	ReasonDegraded           = "degraded_mode"
	ReasonMaxOpenOrders      = "max_open_orders"
	ReasonMaxAdds            = "max_position_adds"
	ReasonMinHold            = "min_hold_time"
	ReasonReentryCooldown    = "reentry_cooldown"
	ReasonNoPosition         = "no_position"
	ReasonBreakevenViolation = "breakeven_violation"
	ReasonInvalidTrigger     = "invalid_trigger_price"
	ReasonInvalidLeverage    = "invalid_leverage"
	ReasonNoOpenOrders       = "no_open_orders"
)

const addsWindow = time.Hour

type GateConfig struct {
	DedupWindow        time.Duration // закрытия, отмены, плечо
	OrderDedupWindow   time.Duration // PLACE_ORDER, CLOSE_PARTIAL
	TriggerDedupWindow time.Duration // SL, TP, BE
	MaxOpenOrders      int
	MaxAddsPerHour     int
	MinHoldTime        time.Duration
	ReentryCooldown    time.Duration
}

// State: то, что известно о символе на момент проверки.
type State struct {
	Position     *models.Position // nil если позиции нет
	OpenOrders   int
	OpenedAt     time.Time
	LastClosedAt time.Time
	Mark         float64
	Degraded     bool
}

// Gate: риск-политика перед нормализацией: дедуп, лимиты, удержание, повторный вход, BE.
type Gate struct {
	mu       sync.Mutex
	cfg      GateConfig
	be       *Breakeven
	executed map[string]time.Time
	adds     map[string][]time.Time
	now      func() time.Time
}

func NewGate(cfg GateConfig, be *Breakeven) *Gate {
	return &Gate{
		cfg:      cfg,
		be:       be,
		executed: make(map[string]time.Time),
		adds:     make(map[string][]time.Time),
		now:      time.Now,
	}
}

// DedupKey собирает все поля, от которых зависит запрос на биржу.
// Текстовые поля (reasoning, signal, source) и confidence в ключ не входят.
func DedupKey(in models.OrderIntent) string {
	return strings.Join([]string{
		string(in.Type),
		in.Symbol,
		string(in.Side),
		fmtNum(in.Size),
		fmtNum(in.SizeUSD),
		string(in.OrderType),
		fmtNum(in.LimitPrice),
		fmtNum(in.Price),
		fmtNum(in.StopLoss),
		fmtNum(in.TakeProfit),
		fmtNum(in.Leverage),
		string(in.MarginMode),
		fmtNum(in.Fraction),
		strconv.FormatBool(in.ReduceOnly),
		in.OrderID,
		strconv.FormatBool(in.Trigger),
	}, "|")
}

func fmtNum(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func (g *Gate) window(t models.IntentType) time.Duration {
	switch t {
	case models.IntentPlaceOrder, models.IntentClosePartial:
		return g.cfg.OrderDedupWindow
	case models.IntentSetStopLoss, models.IntentSetTakeProfit, models.IntentMoveToBreakeven:
		return g.cfg.TriggerDedupWindow
	default:
		return g.cfg.DedupWindow
	}
}

// Check возвращает причину отказа или "" если намерение можно исполнять.
func (g *Gate) Check(in models.OrderIntent, st State) string {
	if in.Symbol == "" {
		return ReasonMissingSymbol
	}
	if !in.Type.Known() {
		return ReasonUnknownType
	}
	if g.isDuplicate(in) {
		return ReasonDuplicate
	}
	if st.Degraded {
		return ReasonDegraded
	}

	now := g.now()
	pos := st.Position

	switch in.Type {
	case models.IntentPlaceOrder:
		if in.Side != models.SideLong && in.Side != models.SideShort {
			return ReasonInvalidSide
		}
		if g.cfg.MaxOpenOrders > 0 && st.OpenOrders >= g.cfg.MaxOpenOrders {
			return ReasonMaxOpenOrders
		}
		increasing := pos == nil || pos.Side == in.Side
		if increasing && g.cfg.MaxAddsPerHour > 0 && g.addsSince(in.Symbol, now.Add(-addsWindow)) >= g.cfg.MaxAddsPerHour {
			return ReasonMaxAdds
		}
		if pos == nil && g.cfg.ReentryCooldown > 0 && !st.LastClosedAt.IsZero() &&
			now.Sub(st.LastClosedAt) < g.cfg.ReentryCooldown {
			return ReasonReentryCooldown
		}

	case models.IntentClosePosition, models.IntentClosePartial:
		if pos == nil {
			return ReasonNoPosition
		}
		if g.cfg.MinHoldTime > 0 && !st.OpenedAt.IsZero() && now.Sub(st.OpenedAt) < g.cfg.MinHoldTime {
			return ReasonMinHold
		}

	case models.IntentSetStopLoss, models.IntentSetTakeProfit:
		if pos == nil {
			return ReasonNoPosition
		}
		if reason := checkTriggerSide(in.Type, pos.Side, in.Price, st.Mark); reason != "" {
			return reason
		}
		if in.Type == models.IntentSetStopLoss && g.be != nil && !g.be.Allows(in.Symbol, pos.Side, in.Price) {
			return ReasonBreakevenViolation
		}

	case models.IntentMoveToBreakeven:
		if pos == nil {
			return ReasonNoPosition
		}

	case models.IntentSetLeverage:
		if in.Leverage <= 0 || invalidNum(in.Leverage) {
			return ReasonInvalidLeverage
		}
	}
	return ""
}

// checkTriggerSide: стоп должен быть по ту сторону марки, где он сработает на убыток,
// тейк, на прибыль. Без марки проверяем только знак цены.
func checkTriggerSide(t models.IntentType, side models.Side, price, mark float64) string {
	if price <= 0 || invalidNum(price) {
		return ReasonInvalidTrigger
	}
	if mark <= 0 {
		return ""
	}
	below := price < mark
	stop := t == models.IntentSetStopLoss
	long := side == models.SideLong
	// LONG: SL ниже, TP выше; SHORT наоборот
	if stop == long && !below {
		return ReasonInvalidTrigger
	}
	if stop != long && below {
		return ReasonInvalidTrigger
	}
	return ""
}

func (g *Gate) isDuplicate(in models.OrderIntent) bool {
	w := g.window(in.Type)
	if w <= 0 {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.executed[DedupKey(in)]
	return ok && g.now().Sub(at) < w
}

func (g *Gate) addsSince(symbol string, since time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.adds[symbol][:0]
	for _, at := range g.adds[symbol] {
		if at.After(since) {
			kept = append(kept, at)
		}
	}
	g.adds[symbol] = kept
	return len(kept)
}

// Record отмечает успешно исполненное намерение. increasing, позиция выросла.
func (g *Gate) Record(in models.OrderIntent, increasing bool) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.executed[DedupKey(in)] = now
	if increasing {
		g.adds[in.Symbol] = append(g.adds[in.Symbol], now)
	}

	// протухшие ключи
	longest := max(g.cfg.DedupWindow, g.cfg.OrderDedupWindow, g.cfg.TriggerDedupWindow)
	for k, at := range g.executed {
		if now.Sub(at) >= longest {
			delete(g.executed, k)
		}
	}
}
