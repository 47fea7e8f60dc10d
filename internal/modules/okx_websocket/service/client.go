package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/modules/config"
	"agent_trader/pkg/logger"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MarkSink: куда складываем цены марки (REST-клиент OKX).
type MarkSink interface {
	SetMark(symbol string, price float64, at time.Time)
}

// Client держит один websocket на публичный канал mark-price по списку символов.
type Client struct {
	url      string
	wsDialer *websocket.Dialer
	sink     MarkSink

	mu      sync.RWMutex
	symbols []string
	lastMsg time.Time

	pingEvery time.Duration
}

func NewClient(cfg *config.Config, sink MarkSink) *Client {
	syms := make([]string, 0, len(cfg.Runner.WatchSymbols))
	for _, s := range cfg.Runner.WatchSymbols {
		syms = append(syms, strings.ToUpper(s))
	}
	return &Client{
		url:       cfg.OKX.WSURL,
		wsDialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		sink:      sink,
		symbols:   syms,
		pingEvery: 25 * time.Second,
	}
}

// Symbols: текущий список подписки.
func (c *Client) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.symbols...)
}

// LastMessage: время последнего кадра с ценой, для health.
func (c *Client) LastMessage() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMsg
}

func (c *Client) touch(at time.Time) {
	c.mu.Lock()
	c.lastMsg = at
	c.mu.Unlock()
}

// Start запускает стрим в фоне; без символов ничего не делает.
func (c *Client) Start(ctx context.Context) {
	syms := c.Symbols()
	if len(syms) == 0 || c.url == "" {
		logger.Info("[WS] mark-price stream disabled: no watch symbols")
		return
	}

	args := make([]map[string]string, 0, len(syms))
	for _, s := range syms {
		args = append(args, map[string]string{
			"channel": "mark-price",
			"instId":  helper.InstID(s),
		})
	}
	go c.run(ctx, args)
}
