package service

import (
	"agent_trader/internal/metrics"
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNoOpenTrade: по символу нет открытой сделки.
var ErrNoOpenTrade = errors.New("no open trade")

// Store: постоянное хранилище всей карты сделок. Save пишет всё целиком.
type Store interface {
	Load() (map[string]*models.Trade, error)
	Save(trades map[string]*models.Trade, at time.Time) error
}

// Mirror: дополнительная копия для отчётов (Postgres). Ошибки не фатальны.
type Mirror interface {
	Upsert(ctx context.Context, t *models.Trade) error
}

// EntryInput: данные входа.
type EntryInput struct {
	Symbol     string
	Side       models.Side
	Price      float64
	Size       float64
	Leverage   float64
	Reason     string
	Confidence float64
	OrderID    string
	Market     *models.MarketSnapshot
	At         time.Time
}

// ExitInput: данные выхода.
type ExitInput struct {
	Price  float64
	Reason string
	Type   models.ExitType
	Market *models.MarketSnapshot
	At     time.Time
}

// Journal: журнал сделок: не больше одной OPEN на символ, закрытые не удаляются.
type Journal struct {
	mu     sync.Mutex
	trades map[string]*models.Trade
	store  Store
	mirror Mirror

	now   func() time.Time
	newID func() string
}

func New(store Store, mirror Mirror) (*Journal, error) {
	j := &Journal{
		trades: make(map[string]*models.Trade),
		store:  store,
		mirror: mirror,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	if store != nil {
		loaded, err := store.Load()
		if err != nil {
			return nil, errors.Wrap(err, "load journal")
		}
		for id, t := range loaded {
			if t == nil {
				continue
			}
			if t.ID == "" {
				t.ID = id
			}
			j.trades[t.ID] = t
		}
	}
	j.repairOpenInvariant()
	metrics.SetOpenTrades(j.countOpen())
	logger.Info("[JOURNAL] loaded %d trades, %d open", len(j.trades), j.countOpen())
	return j, nil
}

// repairOpenInvariant: если файл пришёл с двумя OPEN по символу, старшие закрываем как REPLACED.
func (j *Journal) repairOpenInvariant() {
	bySymbol := map[string][]*models.Trade{}
	for _, t := range j.trades {
		if t.IsOpen() {
			bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
		}
	}
	for sym, open := range bySymbol {
		if len(open) < 2 {
			continue
		}
		sort.Slice(open, func(a, b int) bool { return open[a].Entry.Timestamp.Before(open[b].Entry.Timestamp) })
		newest := open[len(open)-1]
		for _, t := range open[:len(open)-1] {
			logger.Warn("[JOURNAL] %s: duplicate OPEN trade %s replaced on load", sym, t.ID)
			j.close(t, ExitInput{
				Price:  newest.Entry.Price,
				Reason: "duplicate open trade on load",
				Type:   models.ExitReplaced,
				At:     newest.Entry.Timestamp,
			})
		}
	}
}

// RecordEntry открывает сделку. Открытая по тому же символу сперва закрывается как REPLACED
// по цене нового входа.
func (j *Journal) RecordEntry(ctx context.Context, in EntryInput) (*models.Trade, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return nil, errors.New("record entry: empty symbol")
	}
	if in.Price <= 0 || in.Size <= 0 {
		return nil, errors.Errorf("record entry %s: price=%v size=%v", symbol, in.Price, in.Size)
	}
	at := in.At
	if at.IsZero() {
		at = j.now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	touched := make([]*models.Trade, 0, 2)
	if prev := j.openLocked(symbol); prev != nil {
		logger.Info("[JOURNAL] %s: replacing open trade %s", symbol, prev.ID)
		j.close(prev, ExitInput{
			Price:  in.Price,
			Reason: "replaced by new entry",
			Type:   models.ExitReplaced,
			Market: in.Market,
			At:     at,
		})
		touched = append(touched, prev)
	}

	t := &models.Trade{
		ID:     j.newID(),
		Symbol: symbol,
		Side:   in.Side,
		Status: models.TradeOpen,
		Entry: models.TradeEntry{
			Timestamp:  at,
			Price:      in.Price,
			Size:       in.Size,
			Leverage:   in.Leverage,
			Reason:     in.Reason,
			Confidence: in.Confidence,
			OrderID:    in.OrderID,
		},
		MarketAtEntry: in.Market,
		Tags:          DeriveTags(in.Confidence, in.Market),
	}
	j.trades[t.ID] = t
	touched = append(touched, t)

	err := j.persistLocked(ctx, touched...)
	logger.Info("[JOURNAL] entry %s %s %s px=%v size=%v", t.ID, symbol, t.Side, in.Price, in.Size)
	return t.Clone(), err
}

// RecordExit закрывает открытую сделку по символу.
func (j *Journal) RecordExit(ctx context.Context, symbol string, in ExitInput) (*models.Trade, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if in.Price <= 0 {
		return nil, errors.Errorf("record exit %s: price=%v", symbol, in.Price)
	}
	if in.At.IsZero() {
		in.At = j.now()
	}
	if in.Type == "" {
		in.Type = models.ExitClose
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	t := j.openLocked(symbol)
	if t == nil {
		return nil, errors.Wrap(ErrNoOpenTrade, symbol)
	}
	j.close(t, in)

	err := j.persistLocked(ctx, t)
	logger.Info("[JOURNAL] exit %s %s %s px=%v pnl=%.2f (%.2f%%)",
		t.ID, symbol, t.Status, in.Price, t.Result.PnLUSD, t.Result.PnLPct)
	return t.Clone(), err
}

// close переводит сделку OPEN -> терминальный статус и считает результат.
func (j *Journal) close(t *models.Trade, in ExitInput) {
	t.Exit = &models.TradeExit{
		Timestamp: in.At,
		Price:     in.Price,
		Reason:    in.Reason,
		Type:      in.Type,
	}
	t.Status = in.Type.Status()
	t.MarketAtExit = in.Market
	t.Result = computeResult(t.Side, t.Entry, in.Price, in.At)
	if in.Type == models.ExitManual && !hasTag(t.Tags, TagApproxExit) {
		t.Tags = append(t.Tags, TagApproxExit)
	}
}

// computeResult: pnl_pct = ±(exit-entry)/entry*100, pnl_usd = pnl_pct/100*size*entry.
func computeResult(side models.Side, e models.TradeEntry, exitPx float64, at time.Time) *models.TradeResult {
	var pct float64
	if e.Price > 0 {
		pct = side.Sign() * (exitPx - e.Price) / e.Price * 100
	}
	usd := pct / 100 * e.Size * e.Price
	dur := at.Sub(e.Timestamp).Minutes()
	if dur < 0 {
		dur = 0
	}
	return &models.TradeResult{
		PnLUSD:          round(usd, 6),
		PnLPct:          round(pct, 6),
		DurationMinutes: round(dur, 2),
		Win:             usd > 0,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (j *Journal) openLocked(symbol string) *models.Trade {
	for _, t := range j.trades {
		if t.Symbol == symbol && t.IsOpen() {
			return t
		}
	}
	return nil
}

func (j *Journal) countOpen() int {
	n := 0
	for _, t := range j.trades {
		if t.IsOpen() {
			n++
		}
	}
	return n
}

// persistLocked переписывает весь журнал; зеркало обновляется только по изменённым сделкам.
func (j *Journal) persistLocked(ctx context.Context, touched ...*models.Trade) error {
	metrics.SetOpenTrades(j.countOpen())

	if j.mirror != nil {
		for _, t := range touched {
			if err := j.mirror.Upsert(ctx, t); err != nil {
				logger.Warn("[JOURNAL] mirror upsert %s: %v", t.ID, err)
			}
		}
	}

	if j.store == nil {
		return nil
	}
	if err := j.store.Save(j.trades, j.now()); err != nil {
		logger.Error("[JOURNAL] save failed: %v", err)
		return errors.Wrap(err, "save journal")
	}
	return nil
}

// OpenTrade: открытая сделка по символу или nil.
func (j *Journal) OpenTrade(symbol string) *models.Trade {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.openLocked(strings.ToUpper(symbol)).Clone()
}

// LastClosed: последняя закрытая сделка по символу (по времени выхода) или nil.
func (j *Journal) LastClosed(symbol string) *models.Trade {
	symbol = strings.ToUpper(symbol)

	j.mu.Lock()
	defer j.mu.Unlock()

	var last *models.Trade
	for _, t := range j.trades {
		if t.Symbol != symbol || t.IsOpen() || t.Exit == nil {
			continue
		}
		if last == nil || t.Exit.Timestamp.After(last.Exit.Timestamp) {
			last = t
		}
	}
	return last.Clone()
}

// OpenTrades: все открытые сделки, по времени входа.
func (j *Journal) OpenTrades() []*models.Trade {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*models.Trade, 0)
	for _, t := range j.trades {
		if t.IsOpen() {
			out = append(out, t.Clone())
		}
	}
	sortByEntry(out)
	return out
}

// Trades: все сделки, по времени входа.
func (j *Journal) Trades() []*models.Trade {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*models.Trade, 0, len(j.trades))
	for _, t := range j.trades {
		out = append(out, t.Clone())
	}
	sortByEntry(out)
	return out
}

func sortByEntry(ts []*models.Trade) {
	sort.SliceStable(ts, func(a, b int) bool {
		if ts[a].Entry.Timestamp.Equal(ts[b].Entry.Timestamp) {
			return ts[a].ID < ts[b].ID
		}
		return ts[a].Entry.Timestamp.Before(ts[b].Entry.Timestamp)
	})
}
