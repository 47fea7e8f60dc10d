package service

import (
	"agent_trader/internal/helper"
	"agent_trader/internal/models"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Ticker: последняя цена и лучшие bid/ask (кеш 5s).
func (c *Client) Ticker(ctx context.Context, symbol string) models.Ticker {
	symbol = strings.ToUpper(symbol)
	t, _ := c.tickers.GetOrFetch(symbol, func() (models.Ticker, error) {
		data, err := call[wireTicker](ctx, c, request{
			op:     "ticker",
			method: http.MethodGet,
			path:   "/api/v5/market/ticker",
			query:  url.Values{"instId": {helper.InstID(symbol)}},
		})
		if err != nil {
			return models.Ticker{}, err
		}
		if len(data) == 0 || pf(data[0].Last) <= 0 {
			return models.Ticker{}, &CallError{Kind: KindMalformed, Op: "ticker", Msg: "no last price for " + symbol}
		}
		w := data[0]
		return models.Ticker{
			Symbol: symbol,
			Last:   pf(w.Last),
			Bid:    pf(w.BidPx),
			Ask:    pf(w.AskPx),
			TS:     pms(w.TS),
		}, nil
	})
	if mark, ok := c.wsMark(symbol); ok {
		t.Mark = mark
	}
	return t
}

// MarkPrice: марка из websocket, если свежая, иначе last из тикера. 0, цены нет.
func (c *Client) MarkPrice(ctx context.Context, symbol string) float64 {
	if mark, ok := c.wsMark(symbol); ok {
		return mark
	}
	return c.Ticker(ctx, symbol).Last
}

// Candles: свечи по возрастанию времени. TTL зависит от таймфрейма.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) []models.Candle {
	symbol = strings.ToUpper(symbol)
	if limit <= 0 || limit > 300 {
		limit = 100
	}
	key := symbol + "|" + helper.NormTF(interval) + "|" + strconv.Itoa(limit)

	out, _ := c.candles.GetOrFetch(key, func() ([]models.Candle, error) {
		rows, err := call[[]string](ctx, c, request{
			op:     "candles",
			method: http.MethodGet,
			path:   "/api/v5/market/candles",
			query: url.Values{
				"instId": {helper.InstID(symbol)},
				"bar":    {helper.OKXBar(interval)},
				"limit":  {strconv.Itoa(limit)},
			},
		})
		if err != nil {
			return nil, err
		}
		// OKX отдаёт от новых к старым: [ts, o, h, l, c, vol, ...]
		candles := make([]models.Candle, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			row := rows[i]
			if len(row) < 6 {
				return nil, &CallError{Kind: KindMalformed, Op: "candles", Msg: fmt.Sprintf("short row %v", row)}
			}
			candles = append(candles, models.Candle{
				Start:  pms(row[0]),
				Open:   pf(row[1]),
				High:   pf(row[2]),
				Low:    pf(row[3]),
				Close:  pf(row[4]),
				Volume: pf(row[5]),
			})
		}
		return candles, nil
	})
	return out
}

// OrderBook: стакан глубины depth (кеш 15s).
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) models.OrderBook {
	symbol = strings.ToUpper(symbol)
	if depth <= 0 || depth > 400 {
		depth = 20
	}
	key := symbol + "|" + strconv.Itoa(depth)

	book, _ := c.books.GetOrFetch(key, func() (models.OrderBook, error) {
		data, err := call[wireBook](ctx, c, request{
			op:     "books",
			method: http.MethodGet,
			path:   "/api/v5/market/books",
			query:  url.Values{"instId": {helper.InstID(symbol)}, "sz": {strconv.Itoa(depth)}},
		})
		if err != nil {
			return models.OrderBook{}, err
		}
		if len(data) == 0 {
			return models.OrderBook{}, &CallError{Kind: KindMalformed, Op: "books", Msg: "empty book"}
		}
		sc := c.Constraints(ctx, symbol)
		return models.OrderBook{
			Symbol: symbol,
			Bids:   parseLevels(data[0].Bids, sc),
			Asks:   parseLevels(data[0].Asks, sc),
			TS:     pms(data[0].TS),
		}, nil
	})
	return book
}

func parseLevels(rows [][]string, sc models.SymbolConstraints) []models.BookLevel {
	out := make([]models.BookLevel, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		out = append(out, models.BookLevel{Price: pf(r[0]), Size: toBase(r[1], sc)})
	}
	return out
}

// Funding: ставка финансирования и открытый интерес (кеш 60s).
func (c *Client) Funding(ctx context.Context, symbol string) models.Funding {
	symbol = strings.ToUpper(symbol)
	f, _ := c.funding.GetOrFetch(symbol, func() (models.Funding, error) {
		instID := helper.InstID(symbol)
		rates, err := call[wireFunding](ctx, c, request{
			op:     "funding_rate",
			method: http.MethodGet,
			path:   "/api/v5/public/funding-rate",
			query:  url.Values{"instId": {instID}},
		})
		if err != nil {
			return models.Funding{}, err
		}
		if len(rates) == 0 {
			return models.Funding{}, &CallError{Kind: KindMalformed, Op: "funding_rate", Msg: "empty data"}
		}

		out := models.Funding{
			Symbol:      symbol,
			Rate:        pf(rates[0].FundingRate),
			NextRate:    pf(rates[0].NextFundingRate),
			NextFunding: pms(rates[0].NextFundingTime),
		}

		// открытый интерес не критичен: без него отдаём ставку
		oi, err := call[wireOpenInterest](ctx, c, request{
			op:     "open_interest",
			method: http.MethodGet,
			path:   "/api/v5/public/open-interest",
			query:  url.Values{"instType": {"SWAP"}, "instId": {instID}},
		})
		if err == nil && len(oi) > 0 {
			out.OpenInterest = pf(oi[0].OICcy)
		}
		return out, nil
	})
	return f
}
