package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/metrics"
	"agent_trader/internal/models"
	"agent_trader/internal/modules/config"
	"agent_trader/pkg/logger"
	"agent_trader/pkg/tracing"
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

const (
	tsLayout = "2006-01-02T15:04:05.000Z"

	markTTL = 30 * time.Second
)

// Client: единственная точка общения с OKX. Сырые ответы превращаются в models.* только здесь.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	passph    string
	simulated bool

	http    *http.Client
	limiter *RateLimiter
	sem     *semaphore.Weighted
	timeout time.Duration

	triggerTicks    map[string]float64
	isolatedOnly    func(symbol string) bool
	slippage        float64
	fillsLookback   int
	connectAttempts uint
	connectBackoff  time.Duration

	degraded atomic.Bool

	candles     *Cache[[]models.Candle]
	books       *Cache[models.OrderBook]
	funding     *Cache[models.Funding]
	constraints *Cache[models.SymbolConstraints]
	tickers     *Cache[models.Ticker]
	pnl         *Cache[models.PnLWindows]

	markMu sync.RWMutex
	marks  map[string]markPoint

	now func() time.Time
}

type markPoint struct {
	price float64
	at    time.Time
}

func NewClient(cfg *config.Config) *Client {
	ex := cfg.Exchange
	ticks := make(map[string]float64, len(ex.TriggerTicks))
	for sym, t := range ex.TriggerTicks {
		ticks[strings.ToUpper(sym)] = t
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.OKX.BaseURL, "/"),
		apiKey:    cfg.OKX.APIKey,
		apiSecret: cfg.OKX.APISecret,
		passph:    cfg.OKX.Passphrase,
		simulated: cfg.OKX.Simulated,

		http:    &http.Client{Timeout: ex.CallTimeout + time.Second},
		limiter: NewRateLimiter(ex.MinGap, ex.CooldownWindow, ex.CooldownGap),
		sem:     semaphore.NewWeighted(max(ex.MaxConcurrency, 1)),
		timeout: ex.CallTimeout,

		triggerTicks:    ticks,
		isolatedOnly:    cfg.IsIsolatedOnly,
		slippage:        ex.Slippage,
		fillsLookback:   ex.FillsLookback,
		connectAttempts: ex.ConnectAttempts,
		connectBackoff:  ex.ConnectMaxBackoff,

		candles: NewCache[[]models.Candle](KindCandles, func(key string) time.Duration {
			// ключ: SYMBOL|tf|limit
			parts := strings.Split(key, "|")
			if len(parts) < 2 {
				return helper.CandleTTL("")
			}
			return helper.CandleTTL(parts[1])
		}),
		books:       NewCache[models.OrderBook](KindOrderBook, FixedTTL(15*time.Second)),
		funding:     NewCache[models.Funding](KindFunding, FixedTTL(60*time.Second)),
		constraints: NewCache[models.SymbolConstraints](KindConstraints, FixedTTL(300*time.Second)),
		tickers:     NewCache[models.Ticker](KindTicker, FixedTTL(5*time.Second)),
		pnl:         NewCache[models.PnLWindows](KindPnL, FixedTTL(60*time.Second)),

		marks: make(map[string]markPoint),
		now:   time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = "https://www.okx.com"
	}
	if c.fillsLookback <= 0 {
		c.fillsLookback = 50
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	return c
}

// Limiter: общий лимитер клиента.
func (c *Client) Limiter() *RateLimiter { return c.limiter }

// Degraded: клиент не смог подключиться на старте: чтение работает, запись запрещена.
func (c *Client) Degraded() bool { return c.degraded.Load() }

func (c *Client) setDegraded(on bool) {
	if c.degraded.Swap(on) != on {
		if on {
			logger.Warn("[OKX] entering degraded mode: writes disabled, reads from cache/defaults")
		} else {
			logger.Info("[OKX] exchange connectivity restored")
		}
	}
	metrics.SetDegraded(on)
}

// TriggerTick: тик для условных ордеров: переопределение из конфига или общий тик.
func (c *Client) TriggerTick(symbol string, sc models.SymbolConstraints) float64 {
	if t, ok := c.triggerTicks[strings.ToUpper(symbol)]; ok && t > 0 {
		return t
	}
	return sc.TickSize.InexactFloat64()
}

// SetMark: цена марки из websocket.
func (c *Client) SetMark(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	c.markMu.Lock()
	c.marks[strings.ToUpper(symbol)] = markPoint{price: price, at: at}
	c.markMu.Unlock()
}

func (c *Client) wsMark(symbol string) (float64, bool) {
	c.markMu.RLock()
	p, ok := c.marks[strings.ToUpper(symbol)]
	c.markMu.RUnlock()
	if !ok || c.now().Sub(p.at) > markTTL {
		return 0, false
	}
	return p.price, true
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ===== вызов API =====

// ErrKind: класс ошибки биржевого вызова.
type ErrKind string

const (
	KindNone        ErrKind = ""
	KindTransient   ErrKind = "transient"
	KindRateLimited ErrKind = "rate_limited"
	KindMalformed   ErrKind = "malformed"
	KindRejected    ErrKind = "rejected"
	KindDegraded    ErrKind = "degraded"
)

// CallError: ошибка вызова с классом.
type CallError struct {
	Kind ErrKind
	Op   string
	Code string
	Msg  string
	Err  error
}

func (e *CallError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, " msg=%s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf: класс ошибки; KindTransient для всего незнакомого.
func KindOf(err error) ErrKind {
	if err == nil {
		return KindNone
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// WriteResult: итог записи. Ошибки записи не бросаются, а возвращаются здесь.
type WriteResult struct {
	OK      bool    `json:"ok"`
	Detail  string  `json:"detail"`
	Kind    ErrKind `json:"kind,omitempty"`
	OrderID string  `json:"order_id,omitempty"`
}

func writeFailed(err error) WriteResult {
	return WriteResult{OK: false, Detail: err.Error(), Kind: KindOf(err)}
}

type okxResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	private bool
}

// rateLimitCodes: коды OKX о превышении лимита.
var rateLimitCodes = map[string]bool{"50011": true, "50061": true}

// call проходит лимитер, семафор и таймаут и разбирает конверт OKX.
// Data возвращается и при ошибке кода: в ней лежат sCode/sMsg отказа.
func call[T any](ctx context.Context, c *Client, r request) (data []T, err error) {
	span, ctx := tracing.StartSpan(ctx, "okx."+r.op)
	span.SetTag("http.method", r.method)
	span.SetTag("okx.path", r.path)

	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = string(KindOf(err))
		}
		metrics.ObserveExchangeCall(r.op, result, time.Since(started))
		tracing.Finish(span, err)
	}()

	if err = c.sem.Acquire(ctx, 1); err != nil {
		return nil, &CallError{Kind: KindTransient, Op: r.op, Err: err}
	}
	defer c.sem.Release(1)

	c.limiter.Throttle(ctx)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestPath := r.path
	if len(r.query) > 0 {
		requestPath += "?" + r.query.Encode()
	}

	var payload []byte
	if r.body != nil {
		payload, err = sonic.Marshal(r.body)
		if err != nil {
			return nil, &CallError{Kind: KindMalformed, Op: r.op, Err: errors.Wrap(err, "marshal body")}
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &CallError{Kind: KindMalformed, Op: r.op, Err: errors.Wrap(err, "new request")}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}
	if r.private {
		ts := c.now().UTC().Format(tsLayout)
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, r.method, requestPath, string(payload)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &CallError{Kind: KindTransient, Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Kind: KindTransient, Op: r.op, Err: errors.Wrap(err, "read body")}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.MarkRateLimited()
		return nil, &CallError{Kind: KindRateLimited, Op: r.op, Code: "429", Msg: truncate(raw)}
	case resp.StatusCode >= 500:
		return nil, &CallError{Kind: KindTransient, Op: r.op, Code: fmt.Sprint(resp.StatusCode), Msg: truncate(raw)}
	}

	var env okxResponse[T]
	if err := sonic.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, &CallError{Kind: KindRejected, Op: r.op, Code: fmt.Sprint(resp.StatusCode), Msg: truncate(raw)}
		}
		return nil, &CallError{Kind: KindMalformed, Op: r.op, Err: errors.Wrapf(err, "decode body=%s", truncate(raw))}
	}

	if env.Code != "0" {
		if rateLimitCodes[env.Code] {
			c.limiter.MarkRateLimited()
			return env.Data, &CallError{Kind: KindRateLimited, Op: r.op, Code: env.Code, Msg: env.Msg}
		}
		if env.Code == "" {
			return nil, &CallError{Kind: KindMalformed, Op: r.op, Msg: "empty code: " + truncate(raw)}
		}
		return env.Data, &CallError{Kind: KindRejected, Op: r.op, Code: env.Code, Msg: env.Msg}
	}
	// подписанный запрос прошёл: ключи и сеть в порядке
	if r.private && c.apiKey != "" && c.degraded.Load() {
		c.setDegraded(false)
	}
	return env.Data, nil
}

func truncate(b []byte) string {
	const maxLen = 512
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
