package service

import (
	"agent_trader/internal/models"
	"agent_trader/pkg/logger"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	warmupInterval = "1h"
	warmupCandles  = 50
)

// Source: кешируемые чтения клиента, которые стоит прогреть до первого тика.
type Source interface {
	Constraints(ctx context.Context, symbol string) models.SymbolConstraints
	Candles(ctx context.Context, symbol, interval string, limit int) []models.Candle
	Funding(ctx context.Context, symbol string) models.Funding
}

type Warmuper struct {
	src Source

	// ограничитель параллелизма, чтобы не словить rate limit
	parallel int
}

func NewWarmuper(src Source) *Warmuper {
	return &Warmuper{src: src, parallel: 4}
}

// Warmup подтягивает ограничения, свечи и фандинг по символам в кеш клиента.
// Ошибка перечисляет символы без валидных ограничений: по ним ордера будут отклоняться.
func (w *Warmuper) Warmup(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		missing []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)

	for _, sym := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(sym))
		g.Go(func() error {
			sc := w.src.Constraints(gctx, sym)
			w.src.Candles(gctx, sym, warmupInterval, warmupCandles)
			w.src.Funding(gctx, sym)
			if !sc.Valid() {
				mu.Lock()
				missing = append(missing, sym)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Errorf("no constraints for %s", strings.Join(missing, ","))
	}
	logger.Info("[BOOT] warmup done: %d symbols", len(symbols))
	return nil
}
