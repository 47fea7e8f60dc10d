package runner

import (
	"agent_trader/internal/metrics"
	"agent_trader/internal/models"
	exec "agent_trader/internal/modules/execution/service"
	journal "agent_trader/internal/modules/journal/service"
	"agent_trader/pkg/logger"
	"agent_trader/pkg/tracing"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Exchange: чтения, которые нужны тику.
type Exchange interface {
	MarkReader
	Positions(ctx context.Context) ([]models.Position, bool)
	OpenOrders(ctx context.Context) []models.OpenOrder
	RecentFills(ctx context.Context, limit int) []models.Fill
	Account(ctx context.Context) models.AccountSummary
	PnL(ctx context.Context) models.PnLWindows
	Constraints(ctx context.Context, symbol string) models.SymbolConstraints
	Degraded() bool
}

type Executor interface {
	SetView(v exec.View)
	Execute(ctx context.Context, in models.OrderIntent) models.ExecutionResult
}

type Journal interface {
	ReconcileJournal
	Stats() journal.Stats
}

type Protection interface {
	ProtectionClearer
	All() []models.BEProtection
}

type FeedbackSink interface {
	Snapshot() models.FeedbackSnapshot
	Error(in models.OrderIntent, reason, detail string)
}

// DecisionSource: внешний решающий источник, опрашивается раз в тик.
type DecisionSource interface {
	NextIntents(ctx context.Context, last Snapshot) []models.OrderIntent
}

// Publisher отдаёт снимок наружу (redis и т.п.). Ошибка только логируется.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
}

// Notifier получает итоги тика, в которых что-то произошло.
type Notifier interface {
	NotifyTick(ctx context.Context, results []models.ExecutionResult, reconciled []*models.Trade)
}

type Health interface {
	TouchTick(t time.Time)
	SetReady(v bool)
}

// Deps: всё, из чего собирается Runner. Source, Publisher, Notifier и Health могут быть nil.
type Deps struct {
	Exchange   Exchange
	Executor   Executor
	Journal    Journal
	Breakeven  Protection
	Feedback   FeedbackSink
	Inbox      *Inbox
	Board      *Board
	Reconciler *Reconciler
	Source     DecisionSource
	Publisher  Publisher
	Notifier   Notifier
	Health     Health
}

// Runner: единственный цикл ядра: чтение состояния, намерения по порядку, сверка, публикация.
// Тики не пересекаются.
type Runner struct {
	Deps

	interval time.Duration
	watch    []string

	tickMu sync.Mutex
	seq    uint64
	last   Snapshot

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

func New(d Deps, interval time.Duration, watch []string) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if d.Inbox == nil {
		d.Inbox = NewInbox(0)
	}
	if d.Board == nil {
		d.Board = NewBoard()
	}
	if d.Reconciler == nil {
		d.Reconciler = NewReconciler(d.Journal, d.Exchange, d.Breakeven)
	}
	w := make([]string, 0, len(watch))
	for _, s := range watch {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			w = append(w, s)
		}
	}
	return &Runner{
		Deps:     d,
		interval: interval,
		watch:    w,
		now:      time.Now,
	}
}

// Start запускает цикл: первый тик сразу, дальше по таймеру.
func (r *Runner) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.Tick(ctx)
		if r.Health != nil {
			r.Health.SetReady(true)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Tick(ctx)
			}
		}
	}()
	logger.Info("[RUNNER] started, interval=%s watch=%v", r.interval, r.watch)
}

// Stop останавливает цикл и ждёт текущий тик.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	if r.Health != nil {
		r.Health.SetReady(false)
	}
	logger.Info("[RUNNER] stopped")
}

// Tick: один проход. Паника внутри не выходит наружу: фиксируется в снимке и в Feedback.
func (r *Runner) Tick(ctx context.Context) Snapshot {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	start := r.now()
	r.seq++

	span, ctx := tracing.StartSpan(ctx, "runner.tick")
	snap, err := r.tick(ctx)
	tracing.Finish(span, err)

	if err != nil {
		logger.Error("[RUNNER] tick %d: %v", r.seq, err)
		r.Feedback.Error(models.OrderIntent{}, "tick_failed", err.Error())
		snap.LastError = err.Error()
		snap.Feedback = r.Feedback.Snapshot()
	}

	snap.At = start
	snap.Tick = r.seq
	snap.TickTook = r.now().Sub(start)
	r.last = snap

	r.Board.Publish(snap)
	if r.Publisher != nil {
		if perr := r.Publisher.Publish(ctx, snap); perr != nil {
			logger.Warn("[RUNNER] publish snapshot: %v", perr)
		}
	}
	if r.Notifier != nil && (len(snap.Results) > 0 || len(snap.Reconciled) > 0) {
		r.Notifier.NotifyTick(ctx, snap.Results, snap.Reconciled)
	}
	if r.Health != nil {
		r.Health.TouchTick(start)
	}
	metrics.ObserveTick(snap.TickTook)
	metrics.SetDegraded(snap.Degraded)
	metrics.SetOpenTrades(len(snap.OpenTrades))
	return snap
}

func (r *Runner) tick(ctx context.Context) (snap Snapshot, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tick panic: %v", p)
		}
	}()

	snap.Degraded = r.Exchange.Degraded()

	readAt := r.now()
	positions, ok := r.Exchange.Positions(ctx)
	orders := r.Exchange.OpenOrders(ctx)
	r.Executor.SetView(exec.View{Positions: positions, OpenOrders: orders, PositionsOK: ok})

	intents := r.Inbox.Drain()
	if r.Source != nil {
		intents = append(intents, r.Source.NextIntents(ctx, r.last)...)
	}

	results := make([]models.ExecutionResult, 0, len(intents))
	executed := false
	for _, in := range intents {
		res := r.Executor.Execute(ctx, in)
		results = append(results, res)
		executed = executed || res.Executed
	}
	snap.Results = results

	// после записей позиции на бирже уже другие
	if executed {
		readAt = r.now()
		positions, ok = r.Exchange.Positions(ctx)
		orders = r.Exchange.OpenOrders(ctx)
		r.Executor.SetView(exec.View{Positions: positions, OpenOrders: orders, PositionsOK: ok})
	}
	snap.PositionsOK = ok
	snap.Positions = positions
	snap.OpenOrders = orders

	snap.Fills = r.Exchange.RecentFills(ctx, 0)
	snap.Reconciled = r.Reconciler.Run(ctx, positions, ok, snap.Fills, readAt)

	snap.Account = r.Exchange.Account(ctx)
	snap.PnL = r.Exchange.PnL(ctx)
	snap.OpenTrades = r.Journal.OpenTrades()
	snap.Constraints = r.constraints(ctx, positions, snap.OpenTrades)
	snap.Stats = r.Journal.Stats()
	snap.Breakeven = r.Breakeven.All()
	snap.Feedback = r.Feedback.Snapshot()
	return snap, nil
}

// constraints: по списку наблюдения, открытым позициям и открытым сделкам.
func (r *Runner) constraints(ctx context.Context, positions []models.Position, trades []*models.Trade) map[string]models.SymbolConstraints {
	set := make(map[string]struct{}, len(r.watch)+len(positions))
	for _, s := range r.watch {
		set[s] = struct{}{}
	}
	for _, p := range positions {
		if p.IsOpen() {
			set[strings.ToUpper(p.Symbol)] = struct{}{}
		}
	}
	for _, t := range trades {
		set[t.Symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(set))
	for s := range set {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make(map[string]models.SymbolConstraints, len(symbols))
	for _, s := range symbols {
		if sc := r.Exchange.Constraints(ctx, s); sc.Valid() {
			out[s] = sc
		}
	}
	return out
}

// Submit: вход для внешних каналов.
func (r *Runner) Submit(intents ...models.OrderIntent) (int, error) {
	return r.Inbox.Submit(intents...)
}
