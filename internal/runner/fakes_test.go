package runner

import (
	"agent_trader/internal/models"
	exec "agent_trader/internal/modules/execution/service"
	journal "agent_trader/internal/modules/journal/service"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeExchange struct {
	mu sync.Mutex

	positions     []models.Position
	positionsOK   bool
	positionReads int
	orders        []models.OpenOrder
	fills         []models.Fill
	marks         map[string]float64
	degraded      bool
	constraintsOf []string
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		positionsOK: true,
		marks:       map[string]float64{},
	}
}

func (f *fakeExchange) MarkPrice(_ context.Context, symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[symbol]
}

func (f *fakeExchange) Positions(context.Context) ([]models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionReads++
	return append([]models.Position(nil), f.positions...), f.positionsOK
}

func (f *fakeExchange) OpenOrders(context.Context) []models.OpenOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OpenOrder(nil), f.orders...)
}

func (f *fakeExchange) RecentFills(context.Context, int) []models.Fill {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Fill(nil), f.fills...)
}

func (f *fakeExchange) Account(context.Context) models.AccountSummary {
	return models.AccountSummary{Equity: 1000, Available: 900}
}

func (f *fakeExchange) PnL(context.Context) models.PnLWindows {
	return models.PnLWindows{Day: 12.5}
}

func (f *fakeExchange) Constraints(_ context.Context, symbol string) models.SymbolConstraints {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constraintsOf = append(f.constraintsOf, symbol)
	return models.SymbolConstraints{
		Symbol:       symbol,
		SizeDecimals: 3,
		TickSize:     decimal.RequireFromString("0.1"),
	}
}

func (f *fakeExchange) Degraded() bool { return f.degraded }

// fakeExecutor исполняет всё, кроме символа PANIC.
type fakeExecutor struct {
	mu    sync.Mutex
	seen  []models.OrderIntent
	views []exec.View
	ok    bool
}

func (f *fakeExecutor) SetView(v exec.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, v)
}

func (f *fakeExecutor) Execute(_ context.Context, in models.OrderIntent) models.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.Symbol == "PANIC" {
		panic("boom")
	}
	f.seen = append(f.seen, in)
	return models.ExecutionResult{Intent: in, Executed: f.ok}
}

type recordingNotifier struct {
	results    []models.ExecutionResult
	reconciled []*models.Trade
}

func (n *recordingNotifier) NotifyTick(_ context.Context, results []models.ExecutionResult, reconciled []*models.Trade) {
	n.results = append(n.results, results...)
	n.reconciled = append(n.reconciled, reconciled...)
}

type recordingPublisher struct {
	mu    sync.Mutex
	ticks []uint64
}

func (p *recordingPublisher) Publish(_ context.Context, s Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, s.Tick)
	return nil
}

type healthRecorder struct {
	mu    sync.Mutex
	ready bool
	last  time.Time
}

func (h *healthRecorder) TouchTick(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = t
}

func (h *healthRecorder) SetReady(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = v
}

func (h *healthRecorder) state() (bool, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready, h.last
}

type source struct {
	intents []models.OrderIntent
}

func (s *source) NextIntents(context.Context, Snapshot) []models.OrderIntent {
	out := s.intents
	s.intents = nil
	return out
}

func newJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.New(nil, nil)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	return j
}

func openTrade(t *testing.T, j *journal.Journal, symbol string, side models.Side, price, size float64, at time.Time) {
	t.Helper()
	_, err := j.RecordEntry(context.Background(), journal.EntryInput{
		Symbol: symbol,
		Side:   side,
		Price:  price,
		Size:   size,
		At:     at,
	})
	if err != nil {
		t.Fatalf("record entry: %v", err)
	}
}
