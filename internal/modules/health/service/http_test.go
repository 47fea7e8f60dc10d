package service

import (
	"agent_trader/internal/models"
	"agent_trader/internal/runner"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

type staticFeedback struct {
	snap models.FeedbackSnapshot
}

func (s staticFeedback) Snapshot() models.FeedbackSnapshot { return s.snap }

func newTestServer(t *testing.T, inboxSize int) (*httptest.Server, *State, *runner.Board, *runner.Inbox) {
	t.Helper()
	state := NewState()
	board := runner.NewBoard()
	inbox := runner.NewInbox(inboxSize)
	fb := staticFeedback{snap: models.FeedbackSnapshot{
		Rejects: []models.FeedbackEntry{{Kind: models.FeedbackReject, Symbol: "BTC", Reason: "duplicate_action"}},
	}}

	srv := httptest.NewServer(NewHandler(state, board, inbox, fb, time.Minute).Routes())
	t.Cleanup(srv.Close)
	return srv, state, board, inbox
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = sonic.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestProbes(t *testing.T) {
	srv, state, board, _ := newTestServer(t, 4)

	if code, _ := get(t, srv.URL+"/livez"); code != http.StatusOK {
		t.Fatalf("livez = %d", code)
	}
	if code, _ := get(t, srv.URL+"/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start = %d", code)
	}

	state.SetReady(true)
	if code, _ := get(t, srv.URL+"/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without a tick = %d", code)
	}

	board.Publish(runner.Snapshot{At: time.Now(), Tick: 1})
	if code, body := get(t, srv.URL+"/readyz"); code != http.StatusOK || body != "ready" {
		t.Fatalf("readyz = %d %q", code, body)
	}

	board.Publish(runner.Snapshot{At: time.Now().Add(-time.Hour), Tick: 2})
	if code, _ := get(t, srv.URL+"/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with stale tick = %d", code)
	}
}

func TestSnapshotAndFeedback(t *testing.T) {
	srv, _, board, _ := newTestServer(t, 4)

	if code, _ := get(t, srv.URL+"/snapshot"); code != http.StatusServiceUnavailable {
		t.Fatalf("snapshot before first tick = %d", code)
	}

	board.Publish(runner.Snapshot{At: time.Now(), Tick: 5, PositionsOK: true})
	code, body := get(t, srv.URL+"/snapshot")
	if code != http.StatusOK {
		t.Fatalf("snapshot = %d", code)
	}
	var snap runner.Snapshot
	if err := sonic.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Tick != 5 || !snap.PositionsOK {
		t.Fatalf("snapshot = %+v", snap)
	}

	code, body = get(t, srv.URL+"/feedback")
	if code != http.StatusOK || !strings.Contains(body, `"recent_rejects"`) || !strings.Contains(body, "duplicate_action") {
		t.Fatalf("feedback = %d %s", code, body)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	srv, _, board, _ := newTestServer(t, 4)
	board.Publish(runner.Snapshot{At: time.Now(), Tick: 3, Degraded: true})

	code, body := get(t, srv.URL+"/healthz")
	if code != http.StatusOK || !strings.Contains(body, `"degraded":true`) || !strings.Contains(body, `"tick":3`) {
		t.Fatalf("healthz = %d %s", code, body)
	}

	if code, _ := get(t, srv.URL+"/metrics"); code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}
}

func TestPostIntents(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		accepted float64
		queued   int
	}{
		{
			name:     "single",
			body:     `{"type":"PLACE_ORDER","symbol":"BTC","side":"LONG","size_usd":100}`,
			wantCode: http.StatusAccepted,
			accepted: 1,
			queued:   1,
		},
		{
			name:     "batch",
			body:     `[{"type":"SET_STOP_LOSS","symbol":"ETH","price":2990},{"type":"CLOSE_POSITION","symbol":"SOL"}]`,
			wantCode: http.StatusAccepted,
			accepted: 2,
			queued:   2,
		},
		{
			name:     "overflow",
			body:     `[{"type":"CLOSE_POSITION","symbol":"A"},{"type":"CLOSE_POSITION","symbol":"B"},{"type":"CLOSE_POSITION","symbol":"C"}]`,
			wantCode: http.StatusTooManyRequests,
			accepted: 2,
			queued:   2,
		},
		{name: "bad json", body: `{"type":`, wantCode: http.StatusBadRequest},
		{name: "empty", body: "  ", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _, inbox := newTestServer(t, 2)

			code, resp := post(t, srv.URL+"/intents", tt.body)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%v)", code, tt.wantCode, resp)
			}
			if tt.wantCode == http.StatusBadRequest {
				if inbox.Len() != 0 {
					t.Fatal("bad request queued intents")
				}
				return
			}
			if resp["accepted"] != tt.accepted {
				t.Fatalf("accepted = %v, want %v", resp["accepted"], tt.accepted)
			}
			if inbox.Len() != tt.queued {
				t.Fatalf("queued = %d, want %d", inbox.Len(), tt.queued)
			}
		})
	}
}

func TestPostIntentsKeepsOrder(t *testing.T) {
	srv, _, _, inbox := newTestServer(t, 8)

	code, _ := post(t, srv.URL+"/intents", `[{"type":"PLACE_ORDER","symbol":"BTC"},{"type":"SET_TAKE_PROFIT","symbol":"BTC","price":70000}]`)
	if code != http.StatusAccepted {
		t.Fatalf("code = %d", code)
	}
	got := inbox.Drain()
	if len(got) != 2 || got[0].Type != models.IntentPlaceOrder || got[1].Price != 70000 {
		t.Fatalf("drained = %+v", got)
	}
}
