package service

import (
	"agent_trader/internal/metrics"
	"agent_trader/internal/models"
	"agent_trader/internal/runner"
	"agent_trader/pkg/logger"
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

const maxIntentBody = 1 << 20

type FeedbackReader interface {
	Snapshot() models.FeedbackSnapshot
}

// Handler: HTTP-поверхность ядра: пробы, метрики, снимок, обратная связь и приём намерений.
type Handler struct {
	state    *State
	board    *runner.Board
	inbox    *runner.Inbox
	feedback FeedbackReader
	maxAge   time.Duration

	now func() time.Time
}

// NewHandler: maxAge, насколько старым может быть последний тик, чтобы процесс считался готовым.
func NewHandler(state *State, board *runner.Board, inbox *runner.Inbox, fb FeedbackReader, maxAge time.Duration) *Handler {
	return &Handler{
		state:    state,
		board:    board,
		inbox:    inbox,
		feedback: fb,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", h.livez)
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /snapshot", h.snapshot)
	mux.HandleFunc("GET /feedback", h.feedbackz)
	mux.HandleFunc("POST /intents", h.intents)
	return mux
}

func (h *Handler) livez(w http.ResponseWriter, _ *http.Request) {
	// liveness: процесс жив
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ready() bool {
	return h.state.Ready() && h.board.Fresh(h.now(), h.maxAge)
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.board.Snapshot()
	resp := map[string]any{
		"ready":        h.ready(),
		"uptime_sec":   int64(h.state.Uptime().Seconds()),
		"last_tick":    h.state.LastTick().Unix(),
		"tick":         snap.Tick,
		"degraded":     ok && snap.Degraded,
		"positions_ok": ok && snap.PositionsOK,
		"inbox":        h.inbox.Len(),
		"last_error":   snap.LastError,
	}
	if h.state.LastTick().IsZero() {
		resp["last_tick"] = 0
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.board.Snapshot()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) feedbackz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.feedback.Snapshot())
}

// intents принимает одно намерение или массив. Исполнение, на ближайшем тике.
func (h *Handler) intents(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIntentBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var batch []models.OrderIntent
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	case trimmed[0] == '[':
		err = sonic.Unmarshal(trimmed, &batch)
	default:
		var one models.OrderIntent
		err = sonic.Unmarshal(trimmed, &one)
		batch = []models.OrderIntent{one}
	}
	if err != nil {
		http.Error(w, "bad intent json: "+err.Error(), http.StatusBadRequest)
		return
	}

	n, err := h.inbox.Submit(batch...)
	resp := map[string]any{"accepted": n, "queued": h.inbox.Len()}
	if err != nil {
		logger.Warn("[HTTP] intents: accepted %d of %d: %v", n, len(batch), err)
		resp["error"] = err.Error()
		writeJSON(w, http.StatusTooManyRequests, resp)
		return
	}
	logger.Info("[HTTP] intents: queued %d", n)
	writeJSON(w, http.StatusAccepted, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(raw)
}
