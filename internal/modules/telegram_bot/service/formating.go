package service

import (
	"agent_trader/internal/models"
	journal "agent_trader/internal/modules/journal/service"
	"agent_trader/internal/runner"
	"fmt"
	"sort"
	"strings"
)

func describeIntent(in models.OrderIntent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", in.Type, in.Symbol)
	if in.Side != models.SideNone {
		fmt.Fprintf(&b, " %s", in.Side)
	}
	switch {
	case in.SizeUSD > 0:
		fmt.Fprintf(&b, " $%s", f2(in.SizeUSD))
	case in.Size > 0:
		fmt.Fprintf(&b, " size=%v", in.Size)
	case in.Fraction > 0:
		fmt.Fprintf(&b, " %s%%", f2(in.Fraction*100))
	}
	if in.Price > 0 {
		fmt.Fprintf(&b, " @ %v", in.Price)
	}
	if in.Leverage > 0 {
		fmt.Fprintf(&b, " %vx", in.Leverage)
	}
	if in.OrderID != "" {
		fmt.Fprintf(&b, " #%s", in.OrderID)
	}
	return b.String()
}

func formatResult(r models.ExecutionResult) string {
	if r.Executed {
		s := "✅ " + describeIntent(r.Intent)
		if r.OrderID != "" {
			s += " (ord " + r.OrderID + ")"
		}
		return s
	}
	s := "⚠️ " + describeIntent(r.Intent) + ": " + r.Reason
	if r.Detail != "" {
		s += " (" + r.Detail + ")"
	}
	return s
}

func formatReconciled(t *models.Trade) string {
	if t == nil || t.Exit == nil || t.Result == nil {
		return ""
	}
	return fmt.Sprintf("🔁 %s %s закрыта вне журнала: %s @ %v, pnl=%s$ (%s%%)",
		t.Symbol, t.Side, t.Status, t.Exit.Price, f2(t.Result.PnLUSD), f2(t.Result.PnLPct))
}

func formatPositions(s runner.Snapshot) string {
	open := make([]models.Position, 0, len(s.Positions))
	for _, p := range s.Positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		if !s.PositionsOK {
			return "❗️ Позиции не прочитаны на последнем тике"
		}
		return "📭 Открытых позиций нет"
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Symbol < open[j].Symbol })

	be := make(map[string]models.BEProtection, len(s.Breakeven))
	for _, p := range s.Breakeven {
		be[p.Symbol] = p
	}

	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, p := range open {
		fmt.Fprintf(&b, "- %s [%s] size=%v @ %v mark=%v lev=%vx upl=%s$",
			p.Symbol, p.Side, p.Size, p.EntryPrice, p.MarkPrice, p.Leverage, f2(p.UnrealizedPnl))
		if prot, ok := be[p.Symbol]; ok {
			fmt.Fprintf(&b, " BE=%v", prot.Target)
		}
		b.WriteString("\n")
	}
	if !s.PositionsOK {
		b.WriteString("(данные с прошлого тика)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStats(st journal.Stats) string {
	if st.Total == 0 {
		return "📒 Журнал пуст"
	}
	return fmt.Sprintf(
		"📒 Журнал\n\n"+
			"Сделок: %d (открыто %d, закрыто %d)\n"+
			"Побед/поражений: %d/%d, win rate %s%%\n"+
			"PnL: %s$ всего, %s$ в среднем (%s%%)\n"+
			"Средняя длительность: %s мин\n"+
			"Приближённых выходов: %d",
		st.Total, st.Open, st.Closed,
		st.Wins, st.Losses, f2(st.WinRate),
		f2(st.TotalPnLUSD), f2(st.AvgPnLUSD), f2(st.AvgPnLPct),
		f2(st.AvgDurationMin),
		st.Approximated,
	)
}

func formatFeedback(title string, entries []models.FeedbackEntry) string {
	if len(entries) == 0 {
		return title + ": пусто"
	}
	var b strings.Builder
	b.WriteString(title + ":\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s %s %s %s: %s", e.At.Format("15:04:05"), e.Type, e.Symbol, e.Side, e.Reason)
		if e.Detail != "" {
			fmt.Fprintf(&b, " (%s)", e.Detail)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
