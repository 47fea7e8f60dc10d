package service

import (
	"agent_trader/internal/helper"
	"agent_trader/pkg/logger"
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

type markFrame struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		MarkPx string `json:"markPx"`
		TS     string `json:"ts"`
	} `json:"data"`
}

type markTick struct {
	symbol string
	price  float64
	at     time.Time
}

// parseMarkFrame разбирает кадр mark-price; служебные кадры (subscribe, pong) дают пустой результат.
func parseMarkFrame(msg []byte) ([]markTick, error) {
	if string(msg) == "pong" {
		return nil, nil
	}
	var f markFrame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	if f.Event == "error" {
		return nil, errors.Errorf("okx ws error: %s", f.Msg)
	}
	if f.Arg.Channel != "mark-price" || len(f.Data) == 0 {
		return nil, nil
	}

	out := make([]markTick, 0, len(f.Data))
	for _, d := range f.Data {
		px, err := strconv.ParseFloat(d.MarkPx, 64)
		if err != nil || px <= 0 {
			continue
		}
		at := time.Now()
		if ms, err := strconv.ParseInt(d.TS, 10, 64); err == nil && ms > 0 {
			at = time.UnixMilli(ms)
		}
		out = append(out, markTick{symbol: helper.SymbolFromInstID(d.InstID), price: px, at: at})
	}
	return out, nil
}

// run переподключается с экспоненциальной паузой, пока жив ctx.
func (c *Client) run(ctx context.Context, args []map[string]string) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = time.Minute

	for {
		started := time.Now()
		err := c.session(ctx, args)
		if ctx.Err() != nil {
			logger.Info("[WS] mark-price stream stopped")
			return
		}
		// долгая сессия, сбрасываем паузу
		if time.Since(started) > 5*time.Minute {
			b.Reset()
		}
		sleep := b.NextBackOff()
		logger.Warn("[WS] mark-price session ended: %v; reconnect in %s", err, sleep.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// session: одно подключение: подписка, пинг каждые 25s, чтение до ошибки.
func (c *Client) session(ctx context.Context, args []map[string]string) error {
	conn, _, err := c.wsDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	logger.Info("[WS] mark-price subscribed: %d symbols", len(args))

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(c.pingEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				// разблокируем ReadMessage
				_ = conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				// OKX рвёт соединение без трафика ~30s
				_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		ticks, err := parseMarkFrame(msg)
		if err != nil {
			logger.Warn("[WS] %v", err)
			continue
		}
		for _, t := range ticks {
			c.touch(t.at)
			c.sink.SetMark(t.symbol, t.price, t.at)
		}
	}
}
