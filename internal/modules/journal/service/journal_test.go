package service

import (
	"agent_trader/internal/models"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type memStore struct {
	saved map[string]*models.Trade
	saves int
	fail  bool
}

func (m *memStore) Load() (map[string]*models.Trade, error) { return map[string]*models.Trade{}, nil }

func (m *memStore) Save(trades map[string]*models.Trade, _ time.Time) error {
	if m.fail {
		return errors.New("disk full")
	}
	m.saves++
	m.saved = make(map[string]*models.Trade, len(trades))
	for id, t := range trades {
		m.saved[id] = t.Clone()
	}
	return nil
}

type recordingMirror struct{ ids []string }

func (r *recordingMirror) Upsert(_ context.Context, t *models.Trade) error {
	r.ids = append(r.ids, t.ID)
	return nil
}

func newTestJournal(t *testing.T, store Store) *Journal {
	t.Helper()
	j, err := New(store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seq := 0
	j.newID = func() string {
		seq++
		return fmt.Sprintf("t%d", seq)
	}
	return j
}

func countOpen(trades []*models.Trade, symbol string) int {
	n := 0
	for _, t := range trades {
		if t.Symbol == symbol && t.IsOpen() {
			n++
		}
	}
	return n
}

func TestRecordExitComputesResult(t *testing.T) {
	j := newTestJournal(t, &memStore{})
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	_, err := j.RecordEntry(ctx, EntryInput{Symbol: "BTC", Side: models.SideLong, Price: 60000, Size: 0.1, At: start})
	if err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	tr, err := j.RecordExit(ctx, "BTC", ExitInput{Price: 65000, Type: models.ExitTP, At: start.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("RecordExit: %v", err)
	}

	if tr.Status != models.TradeTP {
		t.Fatalf("status = %s", tr.Status)
	}
	if tr.Result.PnLUSD != 500 {
		t.Fatalf("pnl_usd = %v", tr.Result.PnLUSD)
	}
	if math.Abs(tr.Result.PnLPct-8.333333) > 1e-6 {
		t.Fatalf("pnl_pct = %v", tr.Result.PnLPct)
	}
	if tr.Result.DurationMinutes != 90 || !tr.Result.Win {
		t.Fatalf("unexpected result %+v", tr.Result)
	}
}

func TestShortPnLSign(t *testing.T) {
	j := newTestJournal(t, nil)
	ctx := context.Background()

	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "ETH", Side: models.SideShort, Price: 3000, Size: 2})
	tr, err := j.RecordExit(ctx, "ETH", ExitInput{Price: 3150, Type: models.ExitSL})
	if err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	if tr.Result.PnLPct != -5 || tr.Result.PnLUSD != -300 || tr.Result.Win {
		t.Fatalf("unexpected short result %+v", tr.Result)
	}
	if tr.Status != models.TradeSL {
		t.Fatalf("status = %s", tr.Status)
	}
}

func TestReentryReplacesOpenTrade(t *testing.T) {
	j := newTestJournal(t, &memStore{})
	ctx := context.Background()

	first, _ := j.RecordEntry(ctx, EntryInput{Symbol: "SOL", Side: models.SideLong, Price: 100, Size: 1})
	second, _ := j.RecordEntry(ctx, EntryInput{Symbol: "SOL", Side: models.SideLong, Price: 110, Size: 1})

	trades := j.Trades()
	if countOpen(trades, "SOL") != 1 {
		t.Fatalf("expected exactly one OPEN trade, got %d", countOpen(trades, "SOL"))
	}
	for _, tr := range trades {
		if tr.ID == first.ID {
			if tr.Status != models.TradeReplaced || tr.Exit.Price != 110 {
				t.Fatalf("first trade not replaced at new entry price: %+v", tr)
			}
		}
	}
	if open := j.OpenTrade("sol"); open == nil || open.ID != second.ID {
		t.Fatalf("OpenTrade = %+v", open)
	}
}

func TestOneOpenPerSymbolUnderSequences(t *testing.T) {
	j := newTestJournal(t, nil)
	ctx := context.Background()
	ops := []struct {
		entry  bool
		symbol string
	}{
		{true, "BTC"}, {true, "BTC"}, {false, "BTC"}, {false, "BTC"}, {true, "ETH"},
		{true, "BTC"}, {true, "ETH"}, {false, "ETH"}, {true, "BTC"}, {true, "BTC"},
	}
	for i, op := range ops {
		if op.entry {
			_, _ = j.RecordEntry(ctx, EntryInput{Symbol: op.symbol, Side: models.SideLong, Price: float64(100 + i), Size: 1})
		} else {
			_, _ = j.RecordExit(ctx, op.symbol, ExitInput{Price: float64(100 + i)})
		}
		all := j.Trades()
		for _, sym := range []string{"BTC", "ETH"} {
			if n := countOpen(all, sym); n > 1 {
				t.Fatalf("step %d: %d OPEN trades for %s", i, n, sym)
			}
		}
	}
}

func TestRecordExitWithoutOpenTrade(t *testing.T) {
	j := newTestJournal(t, nil)
	_, err := j.RecordExit(context.Background(), "DOGE", ExitInput{Price: 1})
	if !errors.Is(err, ErrNoOpenTrade) {
		t.Fatalf("expected ErrNoOpenTrade, got %v", err)
	}
}

func TestManualExitIsTaggedApproximate(t *testing.T) {
	j := newTestJournal(t, nil)
	ctx := context.Background()
	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "BTC", Side: models.SideLong, Price: 100, Size: 1})

	tr, _ := j.RecordExit(ctx, "BTC", ExitInput{Price: 90, Type: models.ExitManual, Reason: "reconcile_fallback"})
	if tr.Status != models.TradeClosed || !hasTag(tr.Tags, TagApproxExit) {
		t.Fatalf("manual exit: status=%s tags=%v", tr.Status, tr.Tags)
	}
	if j.Stats().Approximated != 1 {
		t.Fatalf("approximated exits not counted")
	}
}

func TestWriteThroughAndMirror(t *testing.T) {
	store := &memStore{}
	mirror := &recordingMirror{}
	j, err := New(store, mirror)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "BTC", Side: models.SideLong, Price: 100, Size: 1})
	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "BTC", Side: models.SideLong, Price: 101, Size: 1})

	if store.saves != 2 || len(store.saved) != 2 {
		t.Fatalf("saves=%d saved=%d", store.saves, len(store.saved))
	}
	// второй вход трогает и заменённую сделку, и новую
	if len(mirror.ids) != 3 {
		t.Fatalf("mirror upserts = %v", mirror.ids)
	}
}

func TestSaveFailureIsReported(t *testing.T) {
	j := newTestJournal(t, &memStore{fail: true})
	_, err := j.RecordEntry(context.Background(), EntryInput{Symbol: "BTC", Side: models.SideLong, Price: 100, Size: 1})
	if err == nil {
		t.Fatal("save failure must be returned")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "trades.json")
	j := newTestJournal(t, NewFileStore(path))
	ctx := context.Background()

	_, _ = j.RecordEntry(ctx, EntryInput{
		Symbol: "BTC", Side: models.SideLong, Price: 60000, Size: 0.1, Confidence: 0.8,
		Market: &models.MarketSnapshot{Price: 60000, FundingRate: 0.001, RSI: 75},
	})
	_, _ = j.RecordExit(ctx, "BTC", ExitInput{Price: 61000, Type: models.ExitClose})
	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "ETH", Side: models.SideShort, Price: 3000, Size: 1})

	reloaded, err := New(NewFileStore(path), nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := len(reloaded.Trades()); got != 2 {
		t.Fatalf("reloaded %d trades", got)
	}
	if open := reloaded.OpenTrade("ETH"); open == nil || open.Side != models.SideShort {
		t.Fatalf("open ETH trade lost: %+v", open)
	}
	closed := reloaded.LastClosed("BTC")
	if closed == nil || closed.Result == nil || closed.Result.PnLUSD != 100 {
		t.Fatalf("closed BTC trade lost: %+v", closed)
	}
	if !hasTag(closed.Tags, "funding_extreme_long") || !hasTag(closed.Tags, "rsi_overbought") {
		t.Fatalf("tags lost: %v", closed.Tags)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestLoadRepairsDuplicateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.json")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := map[string]*models.Trade{
		"a": {ID: "a", Symbol: "BTC", Side: models.SideLong, Status: models.TradeOpen, Entry: models.TradeEntry{Timestamp: t0, Price: 100, Size: 1}},
		"b": {ID: "b", Symbol: "BTC", Side: models.SideLong, Status: models.TradeOpen, Entry: models.TradeEntry{Timestamp: t0.Add(time.Hour), Price: 105, Size: 1}},
	}
	if err := NewFileStore(path).Save(trades, t0); err != nil {
		t.Fatalf("Save: %v", err)
	}

	j, err := New(NewFileStore(path), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if countOpen(j.Trades(), "BTC") != 1 || j.OpenTrade("BTC").ID != "b" {
		t.Fatalf("duplicate OPEN not repaired")
	}
}

func TestComputeStats(t *testing.T) {
	j := newTestJournal(t, nil)
	ctx := context.Background()

	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "BTC", Side: models.SideLong, Price: 100, Size: 1, Confidence: 0.9})
	_, _ = j.RecordExit(ctx, "BTC", ExitInput{Price: 110, Type: models.ExitTP})
	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "ETH", Side: models.SideLong, Price: 100, Size: 1, Confidence: 0.2})
	_, _ = j.RecordExit(ctx, "ETH", ExitInput{Price: 95, Type: models.ExitSL})
	_, _ = j.RecordEntry(ctx, EntryInput{Symbol: "SOL", Side: models.SideLong, Price: 10, Size: 1})

	s := j.Stats()
	if s.Total != 3 || s.Open != 1 || s.Closed != 2 || s.Wins != 1 || s.Losses != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.WinRate != 50 || s.TotalPnLUSD != 5 {
		t.Fatalf("win rate %v total pnl %v", s.WinRate, s.TotalPnLUSD)
	}
	if s.ByTag["conf_high"].PnLUSD != 10 || s.ByTag["conf_low"].PnLUSD != -5 {
		t.Fatalf("per-tag pnl %+v", s.ByTag)
	}
	if s.ByStatus[models.TradeTP] != 1 || s.ByStatus[models.TradeSL] != 1 {
		t.Fatalf("by status %+v", s.ByStatus)
	}
}
