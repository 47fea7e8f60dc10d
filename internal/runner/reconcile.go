package runner

import (
	"agent_trader/internal/metrics"
	"agent_trader/internal/models"
	journal "agent_trader/internal/modules/journal/service"
	"agent_trader/pkg/logger"
	"context"
	"strings"
	"time"
)

const fallbackReason = "reconcile_fallback: no closing fill found"

// ReconcileJournal: часть журнала, нужная сверке.
type ReconcileJournal interface {
	OpenTrades() []*models.Trade
	RecordExit(ctx context.Context, symbol string, in journal.ExitInput) (*models.Trade, error)
}

type MarkReader interface {
	MarkPrice(ctx context.Context, symbol string) float64
}

type ProtectionClearer interface {
	Clear(symbol string)
}

// Reconciler закрывает в журнале сделки, позиции которых исчезли с биржи
// (сработал SL/TP на бирже, ручное закрытие, ликвидация).
type Reconciler struct {
	j     ReconcileJournal
	marks MarkReader
	be    ProtectionClearer
}

func NewReconciler(j ReconcileJournal, marks MarkReader, be ProtectionClearer) *Reconciler {
	return &Reconciler{j: j, marks: marks, be: be}
}

// Run: один проход сверки. positionsOK=false означает, что позиции прочитать не удалось:
// в этом случае ничего не закрываем. Сделки, открытые после readAt, не трогаем: позиции
// читались до их входа.
func (r *Reconciler) Run(ctx context.Context, positions []models.Position, positionsOK bool, fills []models.Fill, readAt time.Time) []*models.Trade {
	if !positionsOK {
		logger.Warn("[RECONCILE] positions unavailable, skipping")
		return nil
	}

	live := make(map[string]bool, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			live[strings.ToUpper(p.Symbol)] = true
		}
	}

	closed := make([]*models.Trade, 0)
	for _, t := range r.j.OpenTrades() {
		if live[t.Symbol] {
			continue
		}
		if !readAt.IsZero() && t.Entry.Timestamp.After(readAt) {
			continue
		}

		in := r.exitFor(ctx, t, fills)
		out, err := r.j.RecordExit(ctx, t.Symbol, in)
		if out == nil {
			logger.Error("[RECONCILE] %s: record exit: %v", t.Symbol, err)
			continue
		}
		if err != nil {
			// в памяти закрыта, файл не записан; повторим запись при следующей мутации
			logger.Error("[RECONCILE] %s: persist exit: %v", t.Symbol, err)
		}
		if r.be != nil {
			r.be.Clear(t.Symbol)
		}
		metrics.IncReconciled(string(in.Type))
		logger.Info("[RECONCILE] %s %s closed as %s @ %v (%s)", t.Symbol, t.Side, out.Status, in.Price, in.Reason)
		closed = append(closed, out)
	}
	return closed
}

// exitFor ищет закрывающее исполнение; без него закрывает по марке с пометкой MANUAL.
func (r *Reconciler) exitFor(ctx context.Context, t *models.Trade, fills []models.Fill) journal.ExitInput {
	if f, ok := closingFill(t, fills); ok {
		typ := models.ExitSL
		if t.Side.Sign()*(f.Price-t.Entry.Price) > 0 {
			typ = models.ExitTP
		}
		at := f.TS
		if at.IsZero() || at.Before(t.Entry.Timestamp) {
			at = time.Time{}
		}
		return journal.ExitInput{
			Price:  f.Price,
			Reason: "reconcile: closing fill " + f.OrderID,
			Type:   typ,
			At:     at,
		}
	}

	px := 0.0
	if r.marks != nil {
		px = r.marks.MarkPrice(ctx, t.Symbol)
	}
	if px <= 0 {
		px = t.Entry.Price
	}
	return journal.ExitInput{
		Price:  px,
		Reason: fallbackReason,
		Type:   models.ExitManual,
	}
}

// closingFill: самое свежее исполнение по символу. Сначала ищем закрывающую сторону
// после входа, затем любое после входа, затем любое вообще.
func closingFill(t *models.Trade, fills []models.Fill) (models.Fill, bool) {
	closeSide := "sell"
	if t.Side == models.SideShort {
		closeSide = "buy"
	}

	tiers := []func(models.Fill) bool{
		func(f models.Fill) bool { return !f.TS.Before(t.Entry.Timestamp) && strings.EqualFold(f.Side, closeSide) },
		func(f models.Fill) bool { return !f.TS.Before(t.Entry.Timestamp) },
		func(models.Fill) bool { return true },
	}
	for _, match := range tiers {
		var (
			best  models.Fill
			found bool
		)
		for _, f := range fills {
			if !strings.EqualFold(f.Symbol, t.Symbol) || f.Price <= 0 || !match(f) {
				continue
			}
			if !found || f.TS.After(best.TS) {
				best, found = f, true
			}
		}
		if found {
			return best, true
		}
	}
	return models.Fill{}, false
}
