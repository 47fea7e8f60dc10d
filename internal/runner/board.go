package runner

import (
	"agent_trader/internal/models"
	journal "agent_trader/internal/modules/journal/service"
	"sync"
	"time"
)

// Snapshot: состояние ядра, публикуемое раз в тик для внешних читателей.
type Snapshot struct {
	At          time.Time                           `json:"at"`
	Tick        uint64                              `json:"tick"`
	Degraded    bool                                `json:"degraded"`
	PositionsOK bool                                `json:"positions_ok"`
	Account     models.AccountSummary               `json:"account"`
	PnL         models.PnLWindows                   `json:"pnl"`
	Positions   []models.Position                   `json:"positions"`
	OpenOrders  []models.OpenOrder                  `json:"open_orders"`
	Fills       []models.Fill                       `json:"recent_fills"`
	Constraints map[string]models.SymbolConstraints `json:"constraints"`
	OpenTrades  []*models.Trade                     `json:"open_trades"`
	Stats       journal.Stats                       `json:"journal_stats"`
	Breakeven   []models.BEProtection               `json:"breakeven"`
	Feedback    models.FeedbackSnapshot             `json:"feedback"`
	Results     []models.ExecutionResult            `json:"last_results"`
	Reconciled  []*models.Trade                     `json:"reconciled"`
	LastError   string                              `json:"last_error,omitempty"`
	TickTook    time.Duration                       `json:"tick_took"`
}

// Board хранит последний снимок. Одна грубая блокировка на чтение и публикацию.
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Publish(s Snapshot) {
	b.mu.Lock()
	b.snap = s
	b.set = true
	b.mu.Unlock()
}

// Snapshot: последний опубликованный снимок; false до первого тика.
// Срезы внутри снимка после публикации не меняются, поэтому отдаются как есть.
func (b *Board) Snapshot() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap, b.set
}

// Fresh: последний тик был не раньше maxAge назад.
func (b *Board) Fresh(now time.Time, maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.set && now.Sub(b.snap.At) <= maxAge
}
