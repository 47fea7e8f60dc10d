package service

import (
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"sort"
	"strings"
	"sync"
	"time"
)

// Breakeven: реестр BE-защиты по символам. Цель только подтягивается, ослабить её нельзя;
// снимается при закрытии позиции.
type Breakeven struct {
	mu        sync.Mutex
	tolerance float64
	feeBuffer float64
	items     map[string]models.BEProtection
	now       func() time.Time
}

func NewBreakeven(tolerance, feeBuffer float64) *Breakeven {
	return &Breakeven{
		tolerance: tolerance,
		feeBuffer: feeBuffer,
		items:     make(map[string]models.BEProtection),
		now:       time.Now,
	}
}

func (b *Breakeven) Tolerance() float64 { return b.tolerance }

// Target: уровень безубытка с запасом на комиссии: entry*(1±buffer).
func (b *Breakeven) Target(side models.Side, entry float64) float64 {
	return entry * (1 + side.Sign()*b.feeBuffer)
}

// AtOrBeyond: стоп не хуже безубытка для позиции с таким входом.
func (b *Breakeven) AtOrBeyond(side models.Side, entry, stop float64) bool {
	if entry <= 0 || stop <= 0 {
		return false
	}
	target := b.Target(side, entry)
	if side == models.SideShort {
		return stop <= target
	}
	return stop >= target
}

// Promote ставит или подтягивает защиту. Более слабая цель игнорируется.
func (b *Breakeven) Promote(symbol string, side models.Side, target float64) bool {
	symbol = strings.ToUpper(symbol)
	if target <= 0 || (side != models.SideLong && side != models.SideShort) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.items[symbol]
	if ok && cur.Side == side {
		if side == models.SideLong && target <= cur.Target {
			return false
		}
		if side == models.SideShort && target >= cur.Target {
			return false
		}
	}
	b.items[symbol] = models.BEProtection{
		Symbol: symbol,
		Target: target,
		Side:   side,
		SetAt:  b.now(),
	}
	logger.Info("[BE] %s %s protected at %.8f", symbol, side, target)
	return true
}

// Allows: можно ли принять стоп с учётом защиты. Защита другой стороны считается устаревшей.
func (b *Breakeven) Allows(symbol string, side models.Side, stop float64) bool {
	p, ok := b.Get(symbol)
	if !ok || p.Side != side {
		return true
	}
	if side == models.SideShort {
		return stop <= p.Target+b.tolerance
	}
	return stop >= p.Target-b.tolerance
}

func (b *Breakeven) Get(symbol string) (models.BEProtection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.items[strings.ToUpper(symbol)]
	return p, ok
}

func (b *Breakeven) Clear(symbol string) {
	symbol = strings.ToUpper(symbol)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[symbol]; ok {
		delete(b.items, symbol)
		logger.Info("[BE] %s protection cleared", symbol)
	}
}

// All: активные защиты, по символу.
func (b *Breakeven) All() []models.BEProtection {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.BEProtection, 0, len(b.items))
	for _, p := range b.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
