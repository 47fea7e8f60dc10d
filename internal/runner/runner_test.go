package runner

import (
	"agent_trader/internal/models"
	exec "agent_trader/internal/modules/execution/service"
	journal "agent_trader/internal/modules/journal/service"
	"context"
	"strings"
	"testing"
	"time"
)

type harness struct {
	r   *Runner
	ex  *fakeExchange
	ee  *fakeExecutor
	j   *journal.Journal
	fb  *exec.Feedback
	pub *recordingPublisher
	n   *recordingNotifier
	h   *healthRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ex:  newFakeExchange(),
		ee:  &fakeExecutor{ok: true},
		j:   newJournal(t),
		fb:  exec.NewFeedback(10),
		pub: &recordingPublisher{},
		n:   &recordingNotifier{},
		h:   &healthRecorder{},
	}
	h.r = New(Deps{
		Exchange:  h.ex,
		Executor:  h.ee,
		Journal:   h.j,
		Breakeven: exec.NewBreakeven(1, 0.001),
		Feedback:  h.fb,
		Publisher: h.pub,
		Notifier:  h.n,
		Health:    h.h,
	}, time.Second, []string{" btc "})
	return h
}

func intent(typ models.IntentType, symbol string) models.OrderIntent {
	return models.OrderIntent{Type: typ, Symbol: symbol}
}

func TestTickExecutesInArrivalOrder(t *testing.T) {
	h := newHarness(t)
	src := &source{intents: []models.OrderIntent{intent(models.IntentSetLeverage, "SOL")}}
	h.r.Source = src

	if _, err := h.r.Submit(
		intent(models.IntentPlaceOrder, "BTC"),
		intent(models.IntentSetStopLoss, "BTC"),
		intent(models.IntentClosePosition, "ETH"),
	); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := h.r.Tick(context.Background())

	want := []string{"PLACE_ORDER/BTC", "SET_STOP_LOSS/BTC", "CLOSE_POSITION/ETH", "SET_LEVERAGE/SOL"}
	if len(h.ee.seen) != len(want) {
		t.Fatalf("executed %d intents, want %d", len(h.ee.seen), len(want))
	}
	for i, in := range h.ee.seen {
		if got := string(in.Type) + "/" + in.Symbol; got != want[i] {
			t.Fatalf("intent %d = %s, want %s", i, got, want[i])
		}
	}
	if len(snap.Results) != len(want) {
		t.Fatalf("results = %d", len(snap.Results))
	}
	if h.r.Inbox.Len() != 0 {
		t.Fatal("inbox not drained")
	}
	if len(h.n.results) != len(want) {
		t.Fatalf("notifier got %d results", len(h.n.results))
	}
}

func TestTickRereadsPositionsAfterWrites(t *testing.T) {
	tests := []struct {
		name      string
		executed  bool
		wantReads int
	}{
		{name: "executed", executed: true, wantReads: 2},
		{name: "rejected only", executed: false, wantReads: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ee.ok = tt.executed
			_, _ = h.r.Submit(intent(models.IntentPlaceOrder, "BTC"))

			h.r.Tick(context.Background())

			if h.ex.positionReads != tt.wantReads {
				t.Fatalf("position reads = %d, want %d", h.ex.positionReads, tt.wantReads)
			}
			if len(h.ee.views) != tt.wantReads {
				t.Fatalf("views = %d, want %d", len(h.ee.views), tt.wantReads)
			}
		})
	}
}

func TestTickReconcilesAndPublishes(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	openTrade(t, h.j, "BTC", models.SideLong, 60000, 0.1, now.Add(-time.Hour))
	h.ex.fills = []models.Fill{{Symbol: "BTC", Side: "sell", Price: 65000, TS: now.Add(-time.Minute)}}

	snap := h.r.Tick(context.Background())

	if len(snap.Reconciled) != 1 || snap.Reconciled[0].Status != models.TradeTP {
		t.Fatalf("reconciled = %+v, want one TP", snap.Reconciled)
	}
	if len(snap.OpenTrades) != 0 {
		t.Fatalf("open trades = %d", len(snap.OpenTrades))
	}
	if snap.Stats.Closed != 1 {
		t.Fatalf("stats closed = %d", snap.Stats.Closed)
	}
	if !snap.PositionsOK || snap.Account.Equity != 1000 || snap.PnL.Day != 12.5 {
		t.Fatalf("snapshot state = %+v", snap)
	}

	got, ok := h.r.Board.Snapshot()
	if !ok || got.Tick != 1 {
		t.Fatalf("board = %+v, %v", got.Tick, ok)
	}
	if len(h.pub.ticks) != 1 || h.pub.ticks[0] != 1 {
		t.Fatalf("published = %v", h.pub.ticks)
	}
	if len(h.n.reconciled) != 1 {
		t.Fatalf("notifier reconciled = %d", len(h.n.reconciled))
	}
	if _, last := h.h.state(); last.IsZero() {
		t.Fatal("health tick not touched")
	}
}

func TestTickConstraintsCoverWatchAndPositions(t *testing.T) {
	h := newHarness(t)
	h.ex.positions = []models.Position{{Symbol: "ETH", Side: models.SideLong, Size: 1}}
	openTrade(t, h.j, "ETH", models.SideLong, 3000, 1, time.Now().Add(-time.Hour))

	snap := h.r.Tick(context.Background())

	for _, s := range []string{"BTC", "ETH"} {
		if _, ok := snap.Constraints[s]; !ok {
			t.Fatalf("constraints missing %s: %v", s, h.ex.constraintsOf)
		}
	}
	if len(snap.Constraints) != 2 {
		t.Fatalf("constraints = %d, want 2", len(snap.Constraints))
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	_, _ = h.r.Submit(intent(models.IntentPlaceOrder, "PANIC"))

	snap := h.r.Tick(context.Background())

	if !strings.Contains(snap.LastError, "tick panic") {
		t.Fatalf("last error = %q", snap.LastError)
	}
	errs := h.fb.RecentErrors()
	if len(errs) != 1 || errs[0].Reason != "tick_failed" {
		t.Fatalf("feedback errors = %+v", errs)
	}
	if len(snap.Feedback.Errors) != 1 {
		t.Fatal("snapshot feedback does not carry the error")
	}

	// следующий тик работает как обычно
	_, _ = h.r.Submit(intent(models.IntentPlaceOrder, "BTC"))
	snap = h.r.Tick(context.Background())
	if snap.LastError != "" || snap.Tick != 2 || len(snap.Results) != 1 {
		t.Fatalf("second tick = %+v", snap)
	}
}

func TestTickPositionsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.ex.positionsOK = false
	openTrade(t, h.j, "BTC", models.SideLong, 60000, 0.1, time.Now().Add(-time.Hour))

	snap := h.r.Tick(context.Background())

	if snap.PositionsOK {
		t.Fatal("positions reported ok")
	}
	if len(snap.Reconciled) != 0 || len(snap.OpenTrades) != 1 {
		t.Fatal("trade closed while positions were unknown")
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	h.r.interval = 5 * time.Millisecond

	h.r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if snap, ok := h.r.Board.Snapshot(); ok && snap.Tick >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("runner did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	if ready, _ := h.h.state(); !ready {
		t.Fatal("not ready after first tick")
	}

	h.r.Stop()
	if ready, _ := h.h.state(); ready {
		t.Fatal("still ready after stop")
	}
}
